package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/internal/shop/domain"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
)

// ItemWorth 物品的服务器收购单价；未配置的物品返回零值
func (e *Engine) ItemWorth(itemID string) decimal.Decimal {
	return e.worth[itemID]
}

// SellItems 玩家把物品直接卖给服务器，按全局价目表计价
// qty <= 0 表示全部出售。货币凭空铸造，不经过任何商店。
func (e *Engine) SellItems(ctx context.Context, actor uuid.UUID, actorName string, item domain.ItemRef, qty int) (decimal.Decimal, int, error) {
	price := e.worth[item.ID]
	if price.Sign() <= 0 {
		return decimal.Zero, 0, domain.ErrItemNotSellable
	}

	held, err := e.inventory.Count(actor, item)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("count items: %w", err)
	}
	if qty <= 0 {
		qty = held
	}
	if qty == 0 {
		return decimal.Zero, 0, domain.ErrNothingToTrade
	}
	if held < qty {
		return decimal.Zero, 0, domain.ErrNotEnoughItems
	}

	removed, err := e.inventory.Remove(actor, item, qty)
	if err != nil || removed < qty {
		if removed > 0 {
			if gerr := e.inventory.Grant(actor, item, removed); gerr != nil {
				logger.Error(ctx, "Failed to return items after short removal", "actor", actor, "error", gerr)
			}
		}
		if err != nil {
			return decimal.Zero, 0, fmt.Errorf("remove items: %w", err)
		}
		return decimal.Zero, 0, domain.ErrNotEnoughItems
	}

	total := price.Mul(decimal.NewFromInt(int64(qty)))

	if ok, err := e.ledger.AddBalance(ctx, actor, total, true); !ok {
		if gerr := e.inventory.Grant(actor, item, qty); gerr != nil {
			logger.Error(ctx, "Failed to return items after credit failure", "actor", actor, "error", gerr)
		}
		return decimal.Zero, 0, err
	}

	if e.audit != nil {
		e.audit.Record("SELL", actorName, "Server", total,
			fmt.Sprintf("Sold %dx %s", qty, item.ID))
	}
	if e.metrics != nil {
		e.metrics.ShopTransactionsTotal.WithLabelValues("worth").Inc()
	}
	return total, qty, nil
}
