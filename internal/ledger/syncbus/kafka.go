package syncbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
)

// KafkaConfig Kafka 总线配置
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaBus 基于 Kafka 主题的总线实现
// 广播语义要求每个进程使用独立的 GroupID：共享 group 的进程会瓜分
// 通知流而不是各收一份。GroupID 留空时在创建阶段生成进程唯一值。
type KafkaBus struct {
	writer *kafka.Writer
	reader *kafka.Reader
	config KafkaConfig
}

// NewKafka 创建 Kafka 总线
func NewKafka(cfg KafkaConfig) (*KafkaBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka bus requires at least one broker")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "economy-" + uuid.NewString()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		WriteBackoffMin:        10 * time.Millisecond,
		WriteBackoffMax:        100 * time.Millisecond,
	}

	logger.Info(context.Background(), "Kafka sync bus created",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"group_id", cfg.GroupID,
	)

	return &KafkaBus{
		writer: writer,
		config: cfg,
	}, nil
}

// Publish 发布通知到主题
func (b *KafkaBus) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.AccountID),
		Value: data,
	})
}

// Subscribe 从最新偏移订阅主题并在后台循环回调处理器
func (b *KafkaBus) Subscribe(ctx context.Context, h Handler) error {
	b.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.config.Brokers,
		Topic:       b.config.Topic,
		GroupID:     b.config.GroupID,
		StartOffset: kafka.LastOffset,
		MaxBytes:    10e6,
	})

	go func() {
		for {
			msg, err := b.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				logger.Warn(ctx, "Failed to read bus notification", "error", err)
				continue
			}
			var n Notification
			if err := json.Unmarshal(msg.Value, &n); err != nil {
				logger.Warn(ctx, "Failed to decode bus notification", "error", err)
				continue
			}
			h(n)
		}
	}()

	return nil
}

// Close 关闭读写端
func (b *KafkaBus) Close() error {
	if b.reader != nil {
		b.reader.Close()
	}
	return b.writer.Close()
}
