// 包 gormstore 基于 GORM 的账户持久化后端，支持 mysql/postgres/sqlite
// CAS 语义由单条条件 UPDATE（WHERE account_id = ? AND version = ?）实现，
// 因此同一账户上的跨进程竞争由数据库本身裁决。
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/internal/ledger/domain"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config 数据库配置
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store GORM 后端
type Store struct {
	db *gorm.DB
}

// New 打开数据库连接并迁移账户表
func New(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&AccountModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate accounts table: %w", err)
	}

	return &Store{db: db}, nil
}

// toAccount 转换持久化对象为领域实体
func toAccount(m *AccountModel) (*domain.Account, error) {
	id, err := uuid.Parse(m.AccountID)
	if err != nil {
		return nil, fmt.Errorf("corrupt account id %q: %w", m.AccountID, err)
	}
	return &domain.Account{
		ID:      id,
		Name:    m.Name,
		Balance: m.Balance,
		Version: m.Version,
	}, nil
}

// Load 加载全部账户
func (s *Store) Load(ctx context.Context) ([]domain.Account, error) {
	var models []AccountModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(models))
	for i := range models {
		acc, err := toAccount(&models[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

// Get 根据 ID 获取账户
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var model AccountModel
	err := s.db.WithContext(ctx).Where("account_id = ?", id.String()).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAccount(&model)
}

// SetBalance 无条件覆盖余额；账户不存在时以占位名称创建
func (s *Store) SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&AccountModel{}).
			Where("account_id = ?", id.String()).
			Updates(map[string]any{
				"balance": amount,
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&AccountModel{
			AccountID: id.String(),
			Name:      "Unknown",
			Balance:   amount,
			Version:   0,
		}).Error
	})
}

// SetBalanceCAS 条件写入余额，版本不匹配时不生效
func (s *Store) SetBalanceCAS(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	result := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("account_id = ? AND version = ?", id.String(), expectedVersion).
		Updates(map[string]any{
			"balance": amount,
			"version": expectedVersion + 1,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Create 创建账户；已存在时仅在名称变化时更新
func (s *Store) Create(ctx context.Context, id uuid.UUID, name string, initial decimal.Decimal) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AccountModel
		err := tx.Where("account_id = ?", id.String()).First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&AccountModel{
				AccountID: id.String(),
				Name:      name,
				Balance:   initial,
				Version:   0,
			}).Error
		}
		if err != nil {
			return err
		}
		if model.Name != name {
			return tx.Model(&AccountModel{}).
				Where("account_id = ?", id.String()).
				Update("name", name).Error
		}
		return nil
	})
}

// Delete 删除账户
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("account_id = ?", id.String()).
		Delete(&AccountModel{}).Error
}

// Has 账户是否存在
func (s *Store) Has(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("account_id = ?", id.String()).
		Count(&count).Error
	return count > 0, err
}

// IDByName 根据归一化名称查找账户 ID
func (s *Store) IDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	var model AccountModel
	err := s.db.WithContext(ctx).
		Where("LOWER(name) = ?", domain.NormalizeName(name)).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(model.AccountID)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// Names 全部已知显示名称
func (s *Store) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&AccountModel{}).
		Order("name ASC").
		Pluck("name", &names).Error
	return names, err
}

// Top 余额降序的前 n 个账户
func (s *Store) Top(ctx context.Context, n int) ([]domain.Account, error) {
	var models []AccountModel
	err := s.db.WithContext(ctx).
		Order("balance DESC, account_id ASC").
		Limit(n).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(models))
	for i := range models {
		acc, err := toAccount(&models[i])
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
