// 包 application 账本应用服务
// 余额变更的唯一正确性机制是存储后端上以版本为条件的写入：读取最新
// (余额, 版本)，计算新余额，条件写入；冲突则失效缓存并从读取步骤重试。
// 全程不持有任何跨进程锁。
package application

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/internal/audit"
	"github.com/wyfcoding/gameeconomy/internal/ledger/cache"
	"github.com/wyfcoding/gameeconomy/internal/ledger/domain"
	"github.com/wyfcoding/gameeconomy/internal/ledger/syncbus"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
	"github.com/wyfcoding/gameeconomy/pkg/metrics"
)

// placeholderName 隐式创建账户时的占位名称
const placeholderName = "Unknown"

// Config 账本行为配置
type Config struct {
	// 新账户默认余额
	DefaultBalance decimal.Decimal
	// 货币符号
	CurrencySymbol string
	// 符号是否位于金额之前
	SymbolBeforeAmount bool
	// CAS 最大重试次数
	MaxRetries int
	// 重试退避基准，实际带随机抖动以拆散竞争写入方
	Backoff time.Duration
}

// DefaultConfig 默认账本配置
func DefaultConfig() Config {
	return Config{
		DefaultBalance:     decimal.NewFromInt(1000),
		CurrencySymbol:     "$",
		SymbolBeforeAmount: true,
		MaxRetries:         10,
		Backoff:            10 * time.Millisecond,
	}
}

// Ledger 账本服务
type Ledger struct {
	store    domain.Store
	cache    *cache.Cache
	bus      syncbus.Bus
	presence syncbus.Presence
	audit    *audit.Logger
	metrics  *metrics.Metrics
	cfg      Config
}

// NewLedger 创建账本服务。bus、presence、auditLog 与 m 均可为 nil。
func NewLedger(store domain.Store, c *cache.Cache, bus syncbus.Bus, presence syncbus.Presence, auditLog *audit.Logger, m *metrics.Metrics, cfg Config) *Ledger {
	if bus == nil {
		bus = syncbus.Noop{}
	}
	if c == nil {
		c = cache.New(cache.DefaultConfig())
	}
	return &Ledger{
		store:    store,
		cache:    c,
		bus:      bus,
		presence: presence,
		audit:    auditLog,
		metrics:  m,
		cfg:      cfg,
	}
}

// Audit 返回底层审计日志，可为 nil
func (l *Ledger) Audit() *audit.Logger {
	return l.audit
}

// loadAccount 经由缓存读取账户；未命中回源并回填。不存在时返回 (nil, nil)。
func (l *Ledger) loadAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if acct, ok := l.cache.Account(id); ok {
		l.countCache(true)
		return &acct, nil
	}
	l.countCache(false)

	acct, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if acct == nil {
		return nil, nil
	}
	l.cache.PutAccount(*acct)
	return acct, nil
}

// GetBalance 查询余额；账户不存在时返回默认余额且不产生任何副作用
func (l *Ledger) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	acct, err := l.loadAccount(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if acct == nil {
		return l.cfg.DefaultBalance, nil
	}
	return acct.Balance, nil
}

// SetBalance 无条件覆盖余额
// 不依赖先读，因此不重试；用于管理性覆盖与重置。
func (l *Ledger) SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, publish bool) error {
	if err := l.store.SetBalance(ctx, id, amount); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	l.cache.InvalidateAccount(id)
	l.countOp("set")
	if publish {
		l.publish(syncbus.Notification{
			AccountID: id.String(),
			Balance:   amount,
			Kind:      "set",
		})
	}
	return nil
}

// AddBalance 增加余额，乐观并发控制
// 返回 (true, nil) 表示已提交；任何失败路径都保证未发生部分变更。
func (l *Ledger) AddBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, publish bool) (bool, error) {
	return l.mutate(ctx, id, "add", publish, func(current decimal.Decimal) (decimal.Decimal, error) {
		return current.Add(amount), nil
	})
}

// RemoveBalance 扣减余额，乐观并发控制
// 余额不足立即失败且不重试：用当前数据判定失败不是可以靠重试越过的竞争。
func (l *Ledger) RemoveBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal, publish bool) (bool, error) {
	return l.mutate(ctx, id, "take", publish, func(current decimal.Decimal) (decimal.Decimal, error) {
		if current.LessThan(amount) {
			return decimal.Zero, domain.ErrInsufficientFunds
		}
		return current.Sub(amount), nil
	})
}

// mutate 读取-计算-条件写入循环
func (l *Ledger) mutate(ctx context.Context, id uuid.UUID, kind string, publish bool, apply func(decimal.Decimal) (decimal.Decimal, error)) (bool, error) {
	for attempt := 0; attempt < l.cfg.MaxRetries; attempt++ {
		acct, err := l.loadAccount(ctx, id)
		if err != nil {
			return false, err
		}
		if acct == nil {
			// 账户不存在：以默认余额隐式创建后重读
			if err := l.store.Create(ctx, id, placeholderName, l.cfg.DefaultBalance); err != nil {
				return false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
			}
			l.cache.InvalidateNames()
			continue
		}

		newBalance, err := apply(acct.Balance)
		if err != nil {
			return false, err
		}

		ok, err := l.store.SetBalanceCAS(ctx, id, newBalance, acct.Version)
		if err != nil {
			return false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		if ok {
			acct.Balance = newBalance
			acct.Version++
			l.cache.PutAccount(*acct)
			l.countOp(kind)
			if publish {
				l.publish(syncbus.Notification{
					AccountID: id.String(),
					Balance:   newBalance,
					Kind:      kind,
				})
			}
			return true, nil
		}

		// 版本冲突：另一写入方先提交，失效缓存后重读最新状态
		if l.metrics != nil {
			l.metrics.CASConflictsTotal.Inc()
		}
		l.cache.InvalidateAccount(id)
		l.sleepJitter()
	}

	if l.metrics != nil {
		l.metrics.CASExhaustedTotal.Inc()
	}
	return false, domain.ErrConflictExhausted
}

// sleepJitter 随机化退避，拆散相互竞争的写入方
func (l *Ledger) sleepJitter() {
	base := l.cfg.Backoff
	if base <= 0 {
		return
	}
	time.Sleep(base/2 + time.Duration(rand.Int63n(int64(base))))
}

// HasAccount 账户是否存在
func (l *Ledger) HasAccount(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, ok := l.cache.Account(id); ok {
		return true, nil
	}
	has, err := l.store.Has(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return has, nil
}

// CreateAccount 创建账户，幂等；已存在时仅在名称变化时更新名称
func (l *Ledger) CreateAccount(ctx context.Context, id uuid.UUID, name string) error {
	if err := l.store.Create(ctx, id, name, l.cfg.DefaultBalance); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	l.cache.InvalidateAccount(id)
	l.cache.PutName(name, id)
	l.cache.InvalidateNames()
	return nil
}

// DeleteAccount 删除账户及其派生缓存
func (l *Ledger) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	acct, err := l.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if acct == nil {
		return nil
	}
	if err := l.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	l.cache.InvalidateAccount(id)
	l.cache.InvalidateName(acct.Name)
	l.cache.InvalidateNames()
	return nil
}

// IDByName 根据显示名称（大小写不敏感）查找账户 ID
func (l *Ledger) IDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	if id, ok := l.cache.IDByName(name); ok {
		return id, true, nil
	}
	id, found, err := l.store.IDByName(ctx, name)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if found {
		l.cache.PutName(name, id)
	}
	return id, found, nil
}

// KnownNames 全部已知显示名称
func (l *Ledger) KnownNames(ctx context.Context) ([]string, error) {
	if names, ok := l.cache.Names(); ok {
		return names, nil
	}
	names, err := l.store.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	l.cache.PutNames(names)
	return names, nil
}

// TopAccounts 余额排行榜
// 由存储后端计算：本地缓存不保证完整，不能用来扫描。
func (l *Ledger) TopAccounts(ctx context.Context, n int) ([]domain.Account, error) {
	accounts, err := l.store.Top(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return accounts, nil
}

// ResetBalance 重置为默认余额
func (l *Ledger) ResetBalance(ctx context.Context, id uuid.UUID, publish bool) error {
	if err := l.SetBalance(ctx, id, l.cfg.DefaultBalance, false); err != nil {
		return err
	}
	if publish {
		l.publish(syncbus.Notification{
			AccountID: id.String(),
			Balance:   l.cfg.DefaultBalance,
			Kind:      "reset",
		})
	}
	return nil
}

// Pay 两账户间转账
// 非分布式事务：两次相互独立、各自安全的单账户变更。扣款成功而入账
// 失败时尽力退款。
func (l *Ledger) Pay(ctx context.Context, from, to uuid.UUID, fromName, toName string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("payment amount must be positive")
	}

	if ok, err := l.RemoveBalance(ctx, from, amount, true); !ok {
		return err
	}

	if ok, err := l.AddBalance(ctx, to, amount, false); !ok {
		logger.Error(ctx, "Payment credit failed, refunding payer",
			"from", from, "to", to, "amount", amount, "error", err)
		if refunded, rerr := l.AddBalance(ctx, from, amount, true); !refunded {
			logger.Error(ctx, "Payment refund failed",
				"from", from, "amount", amount, "error", rerr)
		}
		return fmt.Errorf("payment credit failed: %w", err)
	}

	l.PublishTransaction(ctx, to, "pay", fromName,
		fmt.Sprintf("Received %s from %s", l.Format(amount), fromName))
	l.countOp("pay")
	if l.audit != nil {
		l.audit.Record("PAY", fromName, toName, amount, "player payment")
	}
	return nil
}

// PublishTransaction 读取账户当前余额并发布带消息的通知
// 供命令层与商店引擎在变更提交后通知另一进程上的玩家。
func (l *Ledger) PublishTransaction(ctx context.Context, id uuid.UUID, kind, actor, message string) {
	balance, err := l.GetBalance(ctx, id)
	if err != nil {
		logger.Warn(ctx, "Skipping bus notification, balance read failed", "account", id, "error", err)
		return
	}
	l.publish(syncbus.Notification{
		AccountID: id.String(),
		Balance:   balance,
		Kind:      kind,
		Actor:     actor,
		Message:   message,
	})
}

// publish 发布通知，完全脱离变更成功路径
// 发布在变更已持久化之后发生，错误被记录并吞掉，绝不回传给变更调用方。
func (l *Ledger) publish(n syncbus.Notification) {
	go func() {
		if l.metrics != nil {
			l.metrics.BusPublishTotal.Inc()
		}
		if err := l.bus.Publish(context.Background(), n); err != nil {
			if l.metrics != nil {
				l.metrics.BusPublishFailures.Inc()
			}
			logger.Warn(context.Background(), "Sync bus publish failed",
				"account", n.AccountID, "kind", n.Kind, "error", err)
		}
	}()
}

// HandleNotification 处理来自总线的通知（幂等）
// 失效本地缓存条目，强制下一次本地读取回源收敛；携带消息且目标玩家
// 在本进程时投递消息，否则静默丢弃。
func (l *Ledger) HandleNotification(n syncbus.Notification) {
	id, err := uuid.Parse(n.AccountID)
	if err != nil {
		logger.Warn(context.Background(), "Ignoring bus notification with bad account id", "account_id", n.AccountID)
		return
	}

	l.cache.InvalidateAccount(id)
	if l.metrics != nil {
		l.metrics.BusInvalidations.Inc()
	}

	if n.Message != "" && l.presence != nil {
		l.presence.Deliver(id, n.Message)
	}
}

// Format 按固定符号与位置渲染金额
// 展示层唯一入口，所有展示余额的地方都必须使用它以避免漂移。
func (l *Ledger) Format(amount decimal.Decimal) string {
	if l.cfg.SymbolBeforeAmount {
		return l.cfg.CurrencySymbol + amount.String()
	}
	return amount.String() + l.cfg.CurrencySymbol
}

// countOp 记录操作指标
func (l *Ledger) countOp(op string) {
	if l.metrics != nil {
		l.metrics.LedgerOpsTotal.WithLabelValues(op).Inc()
	}
}

// countCache 记录缓存命中指标
func (l *Ledger) countCache(hit bool) {
	if l.metrics == nil {
		return
	}
	if hit {
		l.metrics.CacheHitsTotal.Inc()
	} else {
		l.metrics.CacheMissesTotal.Inc()
	}
}
