package application

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/gameeconomy/internal/shop/domain"
)

// BeginInteraction 记录玩家点击商店后的待定交互，等待玩家给出数量
// 同一玩家的旧待定交互被直接覆盖。
func (e *Engine) BeginInteraction(actor uuid.UUID, loc domain.Location) error {
	e.mu.Lock()
	shop, ok := e.shops[loc]
	var direction domain.Direction
	if ok {
		direction = shop.Direction
	}
	e.mu.Unlock()
	if !ok {
		return domain.ErrShopNotFound
	}

	e.pmu.Lock()
	e.pending[actor] = &domain.PendingInteraction{
		Location:  loc,
		Direction: direction,
		CreatedAt: time.Now(),
	}
	e.pmu.Unlock()
	return nil
}

// takePending 取出并消费玩家的待定交互；过期的交互视同不存在
func (e *Engine) takePending(actor uuid.UUID) (*domain.PendingInteraction, error) {
	e.pmu.Lock()
	defer e.pmu.Unlock()

	p, ok := e.pending[actor]
	if !ok {
		return nil, domain.ErrNoPending
	}
	delete(e.pending, actor)
	if p.Expired(e.cfg.PendingTTL, time.Now()) {
		return nil, domain.ErrPendingExpired
	}
	return p, nil
}

// CancelInteraction 放弃玩家的待定交互
func (e *Engine) CancelInteraction(actor uuid.UUID) {
	e.pmu.Lock()
	delete(e.pending, actor)
	e.pmu.Unlock()
}

// ResolveInteraction 用玩家的应答结算其待定交互
// 应答必须是正整数或 "all"；其余输入视为取消，返回 ErrBadQuantity。
// 无论结算成功与否，待定交互都被消费。
func (e *Engine) ResolveInteraction(ctx context.Context, actor uuid.UUID, actorName, reply string) error {
	p, err := e.takePending(actor)
	if err != nil {
		return err
	}

	var qty int
	reply = strings.TrimSpace(reply)
	if strings.EqualFold(reply, "all") {
		qty, err = e.resolveAll(ctx, actor, p)
		if err != nil {
			return err
		}
	} else {
		qty, err = strconv.Atoi(reply)
		if err != nil || qty <= 0 {
			return domain.ErrBadQuantity
		}
		if qty > e.cfg.MaxBatch {
			qty = e.cfg.MaxBatch
		}
	}

	if p.Direction == domain.ShopSells {
		return e.Buy(ctx, actor, actorName, p.Location, qty)
	}
	return e.Sell(ctx, actor, actorName, p.Location, qty)
}

// resolveAll 计算 "all" 对应的最大可结算数量
// 卖给玩家的商店取 min(买家买得起的数量, 商店库存)；收购玩家货物的商店
// 取玩家持有数量。两者都不超过 MaxBatch。
func (e *Engine) resolveAll(ctx context.Context, actor uuid.UUID, p *domain.PendingInteraction) (int, error) {
	e.mu.Lock()
	shop, ok := e.shops[p.Location]
	if !ok {
		e.mu.Unlock()
		return 0, domain.ErrShopNotFound
	}
	s := e.copyShop(shop)
	e.mu.Unlock()

	qty := e.cfg.MaxBatch
	if p.Direction == domain.ShopSells {
		if s.Price.Sign() > 0 {
			balance, err := e.ledger.GetBalance(ctx, actor)
			if err != nil {
				return 0, err
			}
			afford := int(balance.Div(s.Price).IntPart())
			if afford < qty {
				qty = afford
			}
		}
		if !s.Admin && s.Stock < qty {
			qty = s.Stock
		}
	} else {
		held, err := e.inventory.Count(actor, s.Item)
		if err != nil {
			return 0, err
		}
		if held < qty {
			qty = held
		}
	}

	if qty <= 0 {
		return 0, domain.ErrNothingToTrade
	}
	return qty, nil
}
