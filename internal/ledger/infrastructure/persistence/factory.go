// 包 persistence 按配置选择账户持久化后端
package persistence

import (
	"fmt"
	"time"

	"github.com/wyfcoding/gameeconomy/internal/ledger/domain"
	"github.com/wyfcoding/gameeconomy/internal/ledger/infrastructure/persistence/gormstore"
	"github.com/wyfcoding/gameeconomy/internal/ledger/infrastructure/persistence/jsonfile"
	"github.com/wyfcoding/gameeconomy/pkg/config"
)

// Open 根据 storage.type 创建后端实例
func Open(cfg config.StorageConfig) (domain.Store, error) {
	switch cfg.Type {
	case "json":
		return jsonfile.New(cfg.Path)
	case "sqlite", "mysql", "postgres":
		return gormstore.New(gormstore.Config{
			Driver:          cfg.Type,
			DSN:             cfg.DSN,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.ConnMaxLifetime) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
