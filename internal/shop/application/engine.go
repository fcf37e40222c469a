// 包 application 箱子商店交易引擎
// 在账本之上执行货物与货币的原子交换。所有前置校验都发生在第一笔账本
// 变更之前（fail-closed）；账本变更提交之后的发货与招牌刷新只尽力而为
// （fail-open），失败只记录日志，不再撤销交易。
package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/internal/audit"
	ledgerapp "github.com/wyfcoding/gameeconomy/internal/ledger/application"
	ledgerdomain "github.com/wyfcoding/gameeconomy/internal/ledger/domain"
	"github.com/wyfcoding/gameeconomy/internal/shop/domain"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
	"github.com/wyfcoding/gameeconomy/pkg/metrics"
)

// adminShopLabel 管理员商店在通知与审计中的标签
const adminShopLabel = "Admin Shop"

// Config 商店引擎配置
type Config struct {
	// 待定交互有效期
	PendingTTL time.Duration
	// 单笔交易最大数量，限定 "all" 结算的最坏发货规模
	MaxBatch int
	// 库存对账周期
	ReconcileInterval time.Duration
}

// DefaultConfig 默认商店配置
func DefaultConfig() Config {
	return Config{
		PendingTTL:        30 * time.Second,
		MaxBatch:          2304,
		ReconcileInterval: 5 * time.Minute,
	}
}

// Engine 商店交易引擎
type Engine struct {
	ledger     *ledgerapp.Ledger
	registry   domain.Registry
	containers domain.ContainerAccess
	inventory  domain.Inventory
	signage    domain.Signage
	audit      *audit.Logger
	metrics    *metrics.Metrics
	cfg        Config
	worth      map[string]decimal.Decimal

	mu    sync.Mutex
	shops map[domain.Location]*domain.Shop

	pmu     sync.Mutex
	pending map[uuid.UUID]*domain.PendingInteraction
}

// NewEngine 创建商店引擎并从注册表加载已有商店
func NewEngine(ctx context.Context, ledger *ledgerapp.Ledger, registry domain.Registry, containers domain.ContainerAccess, inventory domain.Inventory, signage domain.Signage, auditLog *audit.Logger, m *metrics.Metrics, worth map[string]decimal.Decimal, cfg Config) (*Engine, error) {
	e := &Engine{
		ledger:     ledger,
		registry:   registry,
		containers: containers,
		inventory:  inventory,
		signage:    signage,
		audit:      auditLog,
		metrics:    m,
		cfg:        cfg,
		worth:      worth,
		shops:      make(map[domain.Location]*domain.Shop),
		pending:    make(map[uuid.UUID]*domain.PendingInteraction),
	}

	shops, err := registry.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load shop registry: %w", err)
	}
	for _, s := range shops {
		e.shops[s.Location] = s
	}
	return e, nil
}

// save 持久化全部商店，调用方必须持有 e.mu
// 交易已经完成后的持久化失败只记录日志（注册表会在对账周期内自愈）。
func (e *Engine) save(ctx context.Context) {
	shops := make([]*domain.Shop, 0, len(e.shops))
	for _, s := range e.shops {
		shops = append(shops, s)
	}
	if err := e.registry.Save(ctx, shops); err != nil {
		logger.Error(ctx, "Failed to persist shop registry", "error", err)
	}
}

// CreateShop 创建商店
func (e *Engine) CreateShop(ctx context.Context, loc domain.Location, owner uuid.UUID, ownerName string, item domain.ItemRef, price decimal.Decimal, direction domain.Direction, admin bool) (*domain.Shop, error) {
	if price.Sign() < 0 {
		return nil, fmt.Errorf("shop price must not be negative")
	}

	kind, err := e.containers.Kind(loc)
	if err != nil {
		return nil, fmt.Errorf("inspect container at %s: %w", loc, err)
	}
	if kind != domain.ContainerKind {
		return nil, domain.ErrContainerMissing
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.shops[loc]; exists {
		return nil, domain.ErrShopExists
	}

	shop := &domain.Shop{
		Location:  loc,
		OwnerID:   owner,
		OwnerName: ownerName,
		Item:      item,
		Price:     price,
		Direction: direction,
		Admin:     admin,
	}
	if !admin {
		stock, err := e.containers.Count(loc, item)
		if err != nil {
			return nil, fmt.Errorf("count container at %s: %w", loc, err)
		}
		shop.Stock = stock
	}

	e.shops[loc] = shop
	e.save(ctx)
	e.refreshSign(ctx, shop)

	if e.audit != nil {
		e.audit.Record("SHOP_CREATE", ownerName, loc.String(), price,
			fmt.Sprintf("%s shop for %s", direction, item.ID))
	}
	return e.copyShop(shop), nil
}

// RemoveShop 移除商店；只有店主或管理员可以移除
func (e *Engine) RemoveShop(ctx context.Context, loc domain.Location, actor uuid.UUID, actorIsAdmin bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	shop, ok := e.shops[loc]
	if !ok {
		return domain.ErrShopNotFound
	}
	if shop.OwnerID != actor && !actorIsAdmin {
		return domain.ErrNotShopOwner
	}

	delete(e.shops, loc)
	e.save(ctx)

	if e.audit != nil {
		e.audit.Record("SHOP_REMOVE", shop.OwnerName, loc.String(), shop.Price,
			fmt.Sprintf("removed %s shop", shop.Item.ID))
	}
	return nil
}

// ShopAt 查询位置上的商店
func (e *Engine) ShopAt(loc domain.Location) (*domain.Shop, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	shop, ok := e.shops[loc]
	if !ok {
		return nil, false
	}
	return e.copyShop(shop), true
}

// SetPrice 修改单价；只有店主或管理员可以修改
func (e *Engine) SetPrice(ctx context.Context, loc domain.Location, actor uuid.UUID, actorIsAdmin bool, price decimal.Decimal) error {
	if price.Sign() < 0 {
		return fmt.Errorf("shop price must not be negative")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	shop, ok := e.shops[loc]
	if !ok {
		return domain.ErrShopNotFound
	}
	if shop.OwnerID != actor && !actorIsAdmin {
		return domain.ErrNotShopOwner
	}

	shop.Price = price
	e.save(ctx)
	e.refreshSign(ctx, shop)
	return nil
}

// MakeAdmin 将商店转换为管理员商店（无限库存，店主余额不动）
func (e *Engine) MakeAdmin(ctx context.Context, loc domain.Location) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	shop, ok := e.shops[loc]
	if !ok {
		return domain.ErrShopNotFound
	}
	shop.Admin = true
	e.save(ctx)
	e.refreshSign(ctx, shop)
	return nil
}

// ListShops 某店主的全部商店
func (e *Engine) ListShops(owner uuid.UUID) []*domain.Shop {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*domain.Shop
	for _, s := range e.shops {
		if s.OwnerID == owner {
			out = append(out, e.copyShop(s))
		}
	}
	return out
}

// copyShop 返回商店快照，避免调用方看到加锁区外的并发修改
func (e *Engine) copyShop(s *domain.Shop) *domain.Shop {
	c := *s
	return &c
}

// refreshSign 刷新招牌，失败只记录
func (e *Engine) refreshSign(ctx context.Context, shop *domain.Shop) {
	if err := e.signage.Update(shop.Location, shop); err != nil {
		logger.Warn(ctx, "Failed to refresh shop sign", "location", shop.Location.String(), "error", err)
	}
}

// Buy 访客从商店购入货物
// 任何失败的前置条件都在第一笔账本变更之前中止；店主入账失败会整体
// 回滚（退款 + 归还容器），因为此时货物还没有交付给访客。
func (e *Engine) Buy(ctx context.Context, visitor uuid.UUID, visitorName string, loc domain.Location, qty int) error {
	if qty <= 0 {
		return domain.ErrNothingToTrade
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	shop, ok := e.shops[loc]
	if !ok {
		return domain.ErrShopNotFound
	}
	if shop.Direction != domain.ShopSells {
		return fmt.Errorf("shop at %s is not selling", loc)
	}

	if !shop.Available(qty) {
		e.countAbort()
		return domain.ErrOutOfStock
	}

	total := shop.Total(qty)

	balance, err := e.ledger.GetBalance(ctx, visitor)
	if err != nil {
		return err
	}
	if balance.LessThan(total) {
		e.countAbort()
		return ledgerdomain.ErrInsufficientFunds
	}

	// 非管理员商店：先从真实容器取货，容器是事实来源
	if !shop.Admin {
		removed, err := e.containers.Remove(loc, shop.Item, qty)
		if err != nil {
			e.countAbort()
			return fmt.Errorf("%w: %v", domain.ErrContainerMissing, err)
		}
		if removed < qty {
			// 参考库存撒了谎：归还已取出的货物，对账后中止
			if removed > 0 {
				if aerr := e.containers.Add(loc, shop.Item, removed); aerr != nil {
					logger.Error(ctx, "Failed to return items after container mismatch",
						"location", loc.String(), "count", removed, "error", aerr)
				}
			}
			e.reconcileStock(ctx, shop)
			e.countAbort()
			return domain.ErrContainerMismatch
		}
		shop.Stock -= removed
	}

	// 扣减买家余额；失败则归还货物，完整回滚
	if ok, err := e.ledger.RemoveBalance(ctx, visitor, total, false); !ok {
		if !shop.Admin {
			if aerr := e.containers.Add(loc, shop.Item, qty); aerr != nil {
				logger.Error(ctx, "Failed to restore container after debit failure",
					"location", loc.String(), "count", qty, "error", aerr)
			}
			shop.Stock += qty
		}
		e.countAbort()
		return err
	}

	// 店主入账；失败则退款并归还货物
	if !shop.Admin {
		if ok, err := e.ledger.AddBalance(ctx, shop.OwnerID, total, false); !ok {
			logger.Error(ctx, "Owner credit failed, rolling back purchase",
				"location", loc.String(), "owner", shop.OwnerID, "error", err)
			if refunded, rerr := e.ledger.AddBalance(ctx, visitor, total, false); !refunded {
				logger.Error(ctx, "Buyer refund failed", "visitor", visitor, "error", rerr)
			}
			if aerr := e.containers.Add(loc, shop.Item, qty); aerr != nil {
				logger.Error(ctx, "Failed to restore container after credit failure",
					"location", loc.String(), "count", qty, "error", aerr)
			}
			shop.Stock += qty
			e.countAbort()
			return fmt.Errorf("owner credit failed: %w", err)
		}
	}

	// 此后货币变更已提交，余下步骤尽力而为
	e.save(ctx)

	if err := e.inventory.Grant(visitor, shop.Item, qty); err != nil {
		logger.Error(ctx, "Failed to grant purchased items",
			"visitor", visitor, "item", shop.Item.ID, "count", qty, "error", err)
	}
	e.refreshSign(ctx, shop)

	if !shop.Admin {
		e.ledger.PublishTransaction(ctx, shop.OwnerID, "shop_buy", visitorName,
			fmt.Sprintf("Received %s from shop sale", e.ledger.Format(total)))
	}
	// 买家通知不带消息，只用于其他进程的缓存失效
	e.ledger.PublishTransaction(ctx, visitor, "shop_buy", "Shop", "")

	target := shop.OwnerName
	if shop.Admin {
		target = adminShopLabel
	}
	if e.audit != nil {
		e.audit.Record("SHOP_BUY", visitorName, target, total,
			fmt.Sprintf("Bought %dx %s", qty, shop.Item.ID))
	}
	if e.metrics != nil {
		e.metrics.ShopTransactionsTotal.WithLabelValues("buy").Inc()
	}
	return nil
}

// Sell 访客向商店出售货物
func (e *Engine) Sell(ctx context.Context, visitor uuid.UUID, visitorName string, loc domain.Location, qty int) error {
	if qty <= 0 {
		return domain.ErrNothingToTrade
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	shop, ok := e.shops[loc]
	if !ok {
		return domain.ErrShopNotFound
	}
	if shop.Direction != domain.ShopBuys {
		return fmt.Errorf("shop at %s is not buying", loc)
	}

	held, err := e.inventory.Count(visitor, shop.Item)
	if err != nil {
		return fmt.Errorf("count visitor items: %w", err)
	}
	if held < qty {
		e.countAbort()
		return domain.ErrNotEnoughItems
	}

	total := shop.Total(qty)

	// 非管理员商店：店主出得起钱、容器放得下货，缺一不可
	if !shop.Admin {
		ownerBalance, err := e.ledger.GetBalance(ctx, shop.OwnerID)
		if err != nil {
			return err
		}
		if ownerBalance.LessThan(total) {
			e.countAbort()
			return domain.ErrOwnerInsufficientFunds
		}

		hasSpace, err := e.containers.SpaceFor(loc, shop.Item, qty)
		if err != nil {
			e.countAbort()
			return fmt.Errorf("%w: %v", domain.ErrContainerMissing, err)
		}
		if !hasSpace {
			e.countAbort()
			return domain.ErrContainerFull
		}
	}

	// 从访客处取货
	removed, err := e.inventory.Remove(visitor, shop.Item, qty)
	if err != nil || removed < qty {
		if removed > 0 {
			if gerr := e.inventory.Grant(visitor, shop.Item, removed); gerr != nil {
				logger.Error(ctx, "Failed to return items to visitor", "visitor", visitor, "error", gerr)
			}
		}
		e.countAbort()
		if err != nil {
			return fmt.Errorf("remove visitor items: %w", err)
		}
		return domain.ErrNotEnoughItems
	}

	// 扣减店主余额；失败则把货还给访客
	if !shop.Admin {
		if ok, err := e.ledger.RemoveBalance(ctx, shop.OwnerID, total, false); !ok {
			if gerr := e.inventory.Grant(visitor, shop.Item, qty); gerr != nil {
				logger.Error(ctx, "Failed to return items after owner debit failure",
					"visitor", visitor, "error", gerr)
			}
			e.countAbort()
			return err
		}
	}

	// 给访客入账；失败则退还店主并把货还给访客
	if ok, err := e.ledger.AddBalance(ctx, visitor, total, false); !ok {
		logger.Error(ctx, "Visitor credit failed, rolling back sale",
			"location", loc.String(), "visitor", visitor, "error", err)
		if !shop.Admin {
			if refunded, rerr := e.ledger.AddBalance(ctx, shop.OwnerID, total, false); !refunded {
				logger.Error(ctx, "Owner refund failed", "owner", shop.OwnerID, "error", rerr)
			}
		}
		if gerr := e.inventory.Grant(visitor, shop.Item, qty); gerr != nil {
			logger.Error(ctx, "Failed to return items after credit failure", "visitor", visitor, "error", gerr)
		}
		e.countAbort()
		return fmt.Errorf("visitor credit failed: %w", err)
	}

	// 货币已结清，货物入柜与招牌刷新尽力而为
	if !shop.Admin {
		if err := e.containers.Add(loc, shop.Item, qty); err != nil {
			logger.Error(ctx, "Failed to store sold items in container",
				"location", loc.String(), "count", qty, "error", err)
		} else {
			shop.Stock += qty
		}
	}

	e.save(ctx)
	e.refreshSign(ctx, shop)

	source := shop.OwnerName
	actor := "Shop"
	if shop.Admin {
		source = adminShopLabel
		actor = adminShopLabel
	}
	e.ledger.PublishTransaction(ctx, visitor, "shop_sell", actor,
		fmt.Sprintf("Received %s from selling items", e.ledger.Format(total)))
	if !shop.Admin {
		e.ledger.PublishTransaction(ctx, shop.OwnerID, "shop_sell", visitorName, "")
	}

	if e.audit != nil {
		e.audit.Record("SHOP_SELL", source, visitorName, total,
			fmt.Sprintf("Sold %dx %s", qty, shop.Item.ID))
	}
	if e.metrics != nil {
		e.metrics.ShopTransactionsTotal.WithLabelValues("sell").Inc()
	}
	return nil
}

// reconcileStock 以真实容器内容重算参考库存，调用方必须持有 e.mu
func (e *Engine) reconcileStock(ctx context.Context, shop *domain.Shop) {
	if shop.Admin {
		return
	}
	count, err := e.containers.Count(shop.Location, shop.Item)
	if err != nil {
		logger.Warn(ctx, "Failed to reconcile shop stock", "location", shop.Location.String(), "error", err)
		return
	}
	shop.Stock = count
}

// countAbort 记录交易中止指标
func (e *Engine) countAbort() {
	if e.metrics != nil {
		e.metrics.ShopAbortsTotal.Inc()
	}
}
