package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/gameeconomy/internal/ledger/cache"
	"github.com/wyfcoding/gameeconomy/internal/ledger/domain"
	"github.com/wyfcoding/gameeconomy/internal/ledger/syncbus"
)

// memStore 带 CAS 语义的内存存储
type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[uuid.UUID]*domain.Account)}
}

func (s *memStore) Load(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (s *memStore) SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		s.accounts[id] = &domain.Account{ID: id, Name: "Unknown", Balance: amount}
		return nil
	}
	a.Balance = amount
	a.Version++
	return nil
}

func (s *memStore) SetBalanceCAS(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.Version != expectedVersion {
		return false, nil
	}
	a.Balance = amount
	a.Version++
	return true, nil
}

func (s *memStore) Create(ctx context.Context, id uuid.UUID, name string, initial decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		if name != "" && a.Name != name {
			a.Name = name
		}
		return nil
	}
	s.accounts[id] = &domain.Account{ID: id, Name: name, Balance: initial}
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	return nil
}

func (s *memStore) Has(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[id]
	return ok, nil
}

func (s *memStore) IDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := domain.NormalizeName(name)
	for id, a := range s.accounts {
		if domain.NormalizeName(a.Name) == want {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (s *memStore) Names(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.accounts))
	for _, a := range s.accounts {
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStore) Top(ctx context.Context, n int) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Balance.Equal(out[j].Balance) {
			return out[i].Balance.GreaterThan(out[j].Balance)
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

// conflictStore 的条件写入永远失败，用于验证重试耗尽路径
type conflictStore struct {
	*memStore
}

func (s *conflictStore) SetBalanceCAS(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	return false, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 50
	cfg.Backoff = time.Millisecond
	return cfg
}

func newTestLedger(store domain.Store) *Ledger {
	return NewLedger(store, cache.New(cache.DefaultConfig()), syncbus.Noop{}, nil, nil, nil, testConfig())
}

func TestGetBalanceAbsentReturnsDefault(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	id := uuid.New()

	balance, err := l.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)))

	// 纯读取不得产生任何副作用
	has, err := store.Has(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAddBalanceImplicitCreate(t *testing.T) {
	l := newTestLedger(newMemStore())
	id := uuid.New()

	ok, err := l.AddBalance(context.Background(), id, decimal.NewFromInt(250), false)
	require.NoError(t, err)
	require.True(t, ok)

	balance, err := l.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1250)), "got %s", balance)
}

func TestRemoveBalanceInsufficientIsNoop(t *testing.T) {
	l := newTestLedger(newMemStore())
	id := uuid.New()

	// 先隐式创建，余额为默认值 1000
	ok, err := l.AddBalance(context.Background(), id, decimal.Zero, false)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.RemoveBalance(context.Background(), id, decimal.NewFromInt(1500), false)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	balance, err := l.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000)))
}

func TestSetBalancePreservesDecimalExactly(t *testing.T) {
	l := newTestLedger(newMemStore())
	id := uuid.New()
	amount := decimal.RequireFromString("123.45")

	require.NoError(t, l.SetBalance(context.Background(), id, amount, false))

	balance, err := l.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount), "got %s", balance)
}

func TestConcurrentAddsConverge(t *testing.T) {
	l := newTestLedger(newMemStore())
	id := uuid.New()

	const writers = 8
	const addsPerWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < addsPerWriter; j++ {
				ok, err := l.AddBalance(context.Background(), id, decimal.NewFromInt(1), false)
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()

	balance, err := l.GetBalance(context.Background(), id)
	require.NoError(t, err)
	want := decimal.NewFromInt(1000 + writers*addsPerWriter)
	assert.True(t, balance.Equal(want), "got %s, want %s", balance, want)
}

func TestCASExhaustion(t *testing.T) {
	store := &conflictStore{newMemStore()}
	id := uuid.New()
	require.NoError(t, store.memStore.Create(context.Background(), id, "Victim", decimal.NewFromInt(1000)))

	cfg := testConfig()
	cfg.MaxRetries = 5
	cfg.Backoff = 0
	l := NewLedger(store, cache.New(cache.DefaultConfig()), syncbus.Noop{}, nil, nil, nil, cfg)

	ok, err := l.AddBalance(context.Background(), id, decimal.NewFromInt(1), false)
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrConflictExhausted)

	// 变更失败后余额必须保持不变
	acct, err := store.memStore.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(1000)))
}

func TestHandleNotificationInvalidatesCache(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)
	id := uuid.New()

	require.NoError(t, l.SetBalance(context.Background(), id, decimal.NewFromInt(100), false))

	// 预热缓存
	_, err := l.GetBalance(context.Background(), id)
	require.NoError(t, err)

	// 模拟另一进程直接改写存储
	require.NoError(t, store.SetBalance(context.Background(), id, decimal.NewFromInt(777)))

	l.HandleNotification(syncbus.Notification{
		AccountID: id.String(),
		Balance:   decimal.NewFromInt(777),
		Kind:      "set",
	})

	balance, err := l.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(777)), "got %s", balance)
}

type recordingPresence struct {
	mu       sync.Mutex
	online   map[uuid.UUID]bool
	messages []string
}

func (p *recordingPresence) Deliver(id uuid.UUID, message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[id] {
		return false
	}
	p.messages = append(p.messages, message)
	return true
}

func TestHandleNotificationDeliversToPresentActor(t *testing.T) {
	online := uuid.New()
	offline := uuid.New()
	presence := &recordingPresence{online: map[uuid.UUID]bool{online: true}}

	l := NewLedger(newMemStore(), cache.New(cache.DefaultConfig()), syncbus.Noop{}, presence, nil, nil, testConfig())

	l.HandleNotification(syncbus.Notification{
		AccountID: online.String(),
		Kind:      "pay",
		Message:   "Received $5 from Alice",
	})
	l.HandleNotification(syncbus.Notification{
		AccountID: offline.String(),
		Kind:      "pay",
		Message:   "Received $5 from Alice",
	})

	presence.mu.Lock()
	defer presence.mu.Unlock()
	require.Len(t, presence.messages, 1)
	assert.Equal(t, "Received $5 from Alice", presence.messages[0])
}

func TestPayMovesFundsBetweenAccounts(t *testing.T) {
	l := newTestLedger(newMemStore())
	from := uuid.New()
	to := uuid.New()

	require.NoError(t, l.SetBalance(context.Background(), from, decimal.NewFromInt(100), false))
	require.NoError(t, l.SetBalance(context.Background(), to, decimal.NewFromInt(10), false))

	require.NoError(t, l.Pay(context.Background(), from, to, "Alice", "Bob", decimal.NewFromInt(40)))

	fromBalance, err := l.GetBalance(context.Background(), from)
	require.NoError(t, err)
	toBalance, err := l.GetBalance(context.Background(), to)
	require.NoError(t, err)
	assert.True(t, fromBalance.Equal(decimal.NewFromInt(60)))
	assert.True(t, toBalance.Equal(decimal.NewFromInt(50)))
}

func TestPayRejectsNonPositiveAmount(t *testing.T) {
	l := newTestLedger(newMemStore())
	err := l.Pay(context.Background(), uuid.New(), uuid.New(), "a", "b", decimal.Zero)
	assert.Error(t, err)
}

func TestPayInsufficientFundsLeavesBothUntouched(t *testing.T) {
	l := newTestLedger(newMemStore())
	from := uuid.New()
	to := uuid.New()

	require.NoError(t, l.SetBalance(context.Background(), from, decimal.NewFromInt(5), false))
	require.NoError(t, l.SetBalance(context.Background(), to, decimal.NewFromInt(5), false))

	err := l.Pay(context.Background(), from, to, "Alice", "Bob", decimal.NewFromInt(40))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	fromBalance, _ := l.GetBalance(context.Background(), from)
	toBalance, _ := l.GetBalance(context.Background(), to)
	assert.True(t, fromBalance.Equal(decimal.NewFromInt(5)))
	assert.True(t, toBalance.Equal(decimal.NewFromInt(5)))
}

func TestDeleteAccountClearsNameIndex(t *testing.T) {
	l := newTestLedger(newMemStore())
	id := uuid.New()

	require.NoError(t, l.CreateAccount(context.Background(), id, "Steve"))

	got, found, err := l.IDByName(context.Background(), "steve")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)

	require.NoError(t, l.DeleteAccount(context.Background(), id))

	_, found, err = l.IDByName(context.Background(), "steve")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTopAccountsOrdering(t *testing.T) {
	store := newMemStore()
	l := newTestLedger(store)

	rich := uuid.New()
	mid := uuid.New()
	poor := uuid.New()
	require.NoError(t, l.SetBalance(context.Background(), rich, decimal.NewFromInt(900), false))
	require.NoError(t, l.SetBalance(context.Background(), mid, decimal.NewFromInt(500), false))
	require.NoError(t, l.SetBalance(context.Background(), poor, decimal.NewFromInt(10), false))

	top, err := l.TopAccounts(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, rich, top[0].ID)
	assert.Equal(t, mid, top[1].ID)
}

func TestFormat(t *testing.T) {
	cfg := testConfig()
	l := NewLedger(newMemStore(), nil, nil, nil, nil, nil, cfg)
	assert.Equal(t, "$12.5", l.Format(decimal.RequireFromString("12.5")))

	cfg.CurrencySymbol = "coins"
	cfg.SymbolBeforeAmount = false
	l = NewLedger(newMemStore(), nil, nil, nil, nil, nil, cfg)
	assert.Equal(t, "12.5coins", l.Format(decimal.RequireFromString("12.5")))
}
