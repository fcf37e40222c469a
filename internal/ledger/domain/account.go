// 包 domain 账本服务的领域模型
package domain

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account 账户实体
// 代表一名玩家的货币账户。余额使用十进制精确表示，永不以二进制浮点持久化。
type Account struct {
	// 账户 ID，不可变的 128 位标识
	ID uuid.UUID `json:"id"`
	// 显示名称，可变，后写覆盖
	Name string `json:"name"`
	// 余额，提交后永不为负
	Balance decimal.Decimal `json:"balance"`
	// 版本号，从 0 开始，每次提交写入 +1，用作 CAS 条件
	Version int64 `json:"version"`
}

// NormalizeName 归一化显示名称，用于名称索引
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Store 账户持久化后端契约
// 所有实现必须保证 SetBalanceCAS 的条件写入是原子的：只有当存储中的版本
// 等于 expectedVersion 时写入才生效，并将版本 +1。
type Store interface {
	// Load 加载全部账户
	Load(ctx context.Context) ([]Account, error)
	// Get 根据 ID 获取账户，不存在时返回 (nil, nil)
	Get(ctx context.Context, id uuid.UUID) (*Account, error)
	// SetBalance 无条件覆盖余额，账户不存在则创建
	SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	// SetBalanceCAS 条件写入余额，版本不匹配时返回 (false, nil)
	SetBalanceCAS(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error)
	// Create 创建账户（余额为 initial）；已存在时仅在名称变化时更新名称
	Create(ctx context.Context, id uuid.UUID, name string, initial decimal.Decimal) error
	// Delete 删除账户
	Delete(ctx context.Context, id uuid.UUID) error
	// Has 账户是否存在
	Has(ctx context.Context, id uuid.UUID) (bool, error)
	// IDByName 根据归一化名称查找账户 ID
	IDByName(ctx context.Context, name string) (uuid.UUID, bool, error)
	// Names 全部已知显示名称
	Names(ctx context.Context) ([]string, error)
	// Top 余额降序的前 n 个账户，余额相同时按 ID 升序
	Top(ctx context.Context, n int) ([]Account, error)
	// Close 关闭后端
	Close() error
}
