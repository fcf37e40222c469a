// 包 syncbus 跨进程余额变更通知总线
// 总线是一致性加速器而非依赖：发布失败被记录并吞掉，订阅端的处理器必须幂等。
// 投递语义为 at-least-once 且跨订阅者无序。
package syncbus

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification 余额变更通知（线上 JSON 对象）
// 所有共享同一频道的进程都会看到全部消息，接收方自行按 account_id 过滤。
type Notification struct {
	// 账户 ID
	AccountID string `json:"account_id"`
	// 变更后的余额
	Balance decimal.Decimal `json:"balance"`
	// 变更类型：set, add, take, pay, reset, shop_buy, shop_sell
	Kind string `json:"kind"`
	// 发起方标签，可为空
	Actor string `json:"actor,omitempty"`
	// 需要向玩家展示的消息，可为空（为空表示只做缓存失效）
	Message string `json:"message,omitempty"`
}

// Handler 通知处理器，必须幂等
type Handler func(Notification)

// Bus 消息总线契约
type Bus interface {
	// Publish 发布通知；调用方不得依赖其成功
	Publish(ctx context.Context, n Notification) error
	// Subscribe 订阅本频道并在后台回调处理器
	Subscribe(ctx context.Context, h Handler) error
	// Close 关闭总线
	Close() error
}

// Presence 本进程的玩家在线信息协作者
// Deliver 在目标玩家位于本进程时投递消息并返回 true，否则返回 false。
type Presence interface {
	Deliver(id uuid.UUID, message string) bool
}

// Noop 未启用总线时的空实现
type Noop struct{}

// Publish 丢弃通知
func (Noop) Publish(ctx context.Context, n Notification) error { return nil }

// Subscribe 不做任何事
func (Noop) Subscribe(ctx context.Context, h Handler) error { return nil }

// Close 不做任何事
func (Noop) Close() error { return nil }
