package syncbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
)

// RedisConfig Redis 总线配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Channel  string
}

// RedisBus 基于 Redis Pub/Sub 的总线实现
type RedisBus struct {
	client  *redis.Client
	channel string
	pubsub  *redis.PubSub
}

// NewRedis 创建 Redis 总线并验证连接
func NewRedis(cfg RedisConfig) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info(context.Background(), "Redis sync bus connected",
		"addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		"channel", cfg.Channel,
	)

	return &RedisBus{
		client:  client,
		channel: cfg.Channel,
	}, nil
}

// Publish 发布通知到频道
func (b *RedisBus) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe 订阅频道并在后台循环回调处理器
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	b.pubsub = b.client.Subscribe(ctx, b.channel)

	// 等待订阅确认，确保不丢早期消息
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe channel %s: %w", b.channel, err)
	}

	ch := b.pubsub.Channel()
	go func() {
		for msg := range ch {
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				logger.Warn(ctx, "Failed to decode bus notification", "payload", msg.Payload, "error", err)
				continue
			}
			h(n)
		}
	}()

	return nil
}

// Close 关闭订阅与连接
func (b *RedisBus) Close() error {
	if b.pubsub != nil {
		b.pubsub.Close()
	}
	return b.client.Close()
}
