package application

import (
	"context"
	"time"

	"github.com/wyfcoding/gameeconomy/internal/shop/domain"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
)

// Reconcile 对照真实容器修正全部商店
// 容器消失的商店（被拆除、区域回滚）作为孤儿移除；参考库存与容器内容
// 不一致的商店以容器为准重算。
func (e *Engine) Reconcile(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	dirty := false
	for loc, shop := range e.shops {
		kind, err := e.containers.Kind(loc)
		if err != nil || kind != domain.ContainerKind {
			logger.Warn(ctx, "Removing orphaned shop", "location", loc.String(),
				"item", shop.Item.ID, "owner", shop.OwnerName)
			delete(e.shops, loc)
			if e.audit != nil {
				e.audit.Record("SHOP_REMOVE", "Server", loc.String(), shop.Price,
					"orphaned shop reclaimed")
			}
			dirty = true
			continue
		}
		if shop.Admin {
			continue
		}
		count, err := e.containers.Count(loc, shop.Item)
		if err != nil {
			logger.Warn(ctx, "Failed to count shop container", "location", loc.String(), "error", err)
			continue
		}
		if count != shop.Stock {
			logger.Info(ctx, "Reconciled shop stock", "location", loc.String(),
				"recorded", shop.Stock, "actual", count)
			shop.Stock = count
			e.refreshSign(ctx, shop)
			dirty = true
		}
	}

	if dirty {
		e.save(ctx)
	}
}

// Run 周期对账循环，ctx 取消后返回
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.ReconcileInterval
	if interval <= 0 {
		interval = DefaultConfig().ReconcileInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Reconcile(ctx)
		}
	}
}
