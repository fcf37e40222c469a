// 包 domain 箱子商店的领域模型
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction 商店交易方向
type Direction string

const (
	// ShopSells 商店向访客出售货物
	ShopSells Direction = "sells"
	// ShopBuys 商店向访客收购货物
	ShopBuys Direction = "buys"
)

// Location 商店位置键：区域 ID + 坐标
type Location struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Z     int    `json:"z"`
}

// String 渲染位置
func (l Location) String() string {
	return fmt.Sprintf("%s(%d, %d, %d)", l.World, l.X, l.Y, l.Z)
}

// ItemRef 交易物品描述符
type ItemRef struct {
	ID string `json:"id"`
}

// Shop 商店实体
type Shop struct {
	// 所在位置，注册表主键
	Location Location `json:"location"`
	// 店主账户 ID
	OwnerID uuid.UUID `json:"owner_id"`
	// 店主显示名称
	OwnerName string `json:"owner_name"`
	// 交易物品
	Item ItemRef `json:"item"`
	// 单价，>= 0
	Price decimal.Decimal `json:"price"`
	// 交易方向
	Direction Direction `json:"direction"`
	// 管理员商店：库存无限，店主余额不动
	Admin bool `json:"admin"`
	// 参考库存，仅非管理员商店维护；真实容器内容才是事实
	Stock int `json:"stock"`
}

// Available 商店是否可按数量供货
func (s *Shop) Available(amount int) bool {
	if s.Admin {
		return true
	}
	return s.Stock >= amount
}

// Total 按数量计算总价
func (s *Shop) Total(amount int) decimal.Decimal {
	return s.Price.Mul(decimal.NewFromInt(int64(amount)))
}

// PendingInteraction 待定交互
// 每位玩家至多一个，等待其下一条文本输入给出交易数量。
type PendingInteraction struct {
	Location  Location
	Direction Direction
	CreatedAt time.Time
}

// Expired 交互是否超过有效期
func (p *PendingInteraction) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(p.CreatedAt) > ttl
}

// Registry 商店注册表持久化契约
type Registry interface {
	// Load 加载全部商店
	Load(ctx context.Context) ([]*Shop, error)
	// Save 整体保存商店列表
	Save(ctx context.Context, shops []*Shop) error
}
