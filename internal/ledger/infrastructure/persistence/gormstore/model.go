package gormstore

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountModel 账户持久化对象
type AccountModel struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
	// 账户 ID (业务主键)，全局唯一
	AccountID string `gorm:"column:account_id;type:varchar(36);uniqueIndex;not null"`
	// 显示名称
	Name string `gorm:"column:name;type:varchar(64);index;not null"`
	// 余额
	Balance decimal.Decimal `gorm:"column:balance;type:decimal(32,18);default:0;not null"`
	// 版本号，乐观锁条件
	Version int64 `gorm:"column:version;default:0;not null"`
}

// TableName 指定表名
func (AccountModel) TableName() string {
	return "economy_accounts"
}
