package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "balances.json"))
	require.NoError(t, err)
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	require.NoError(t, s.Create(context.Background(), id, "Steve", decimal.NewFromInt(1000)))

	acct, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "Steve", acct.Name)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(0), acct.Version)
}

func TestGetAbsentReturnsNil(t *testing.T) {
	s := newTestStore(t)

	acct, err := s.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, acct)
}

func TestCreateIsIdempotentAndUpdatesName(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	require.NoError(t, s.Create(context.Background(), id, "Steve", decimal.NewFromInt(1000)))
	require.NoError(t, s.SetBalance(context.Background(), id, decimal.NewFromInt(42)))

	// 二次创建不得重置余额，但要更新名称
	require.NoError(t, s.Create(context.Background(), id, "Steven", decimal.NewFromInt(1000)))

	acct, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Steven", acct.Name)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(42)))
}

func TestSetBalanceCAS(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	require.NoError(t, s.Create(context.Background(), id, "Steve", decimal.NewFromInt(1000)))

	ok, err := s.SetBalanceCAS(context.Background(), id, decimal.NewFromInt(900), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	// 旧版本的写入必须被拒绝
	ok, err = s.SetBalanceCAS(context.Background(), id, decimal.NewFromInt(800), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	acct, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(900)))
	assert.Equal(t, int64(1), acct.Version)
}

func TestSetBalanceCASAbsentAccount(t *testing.T) {
	s := newTestStore(t)

	ok, err := s.SetBalanceCAS(context.Background(), uuid.New(), decimal.NewFromInt(1), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetBalanceCreatesPlaceholder(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()

	require.NoError(t, s.SetBalance(context.Background(), id, decimal.NewFromInt(77)))

	acct, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "Unknown", acct.Name)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(77)))
	// 隐式创建与显式 Create 一样从版本 0 起，与 gormstore 保持一致
	assert.Equal(t, int64(0), acct.Version)
}

func TestFailedPersistLeavesStateUntouched(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	s, err := New(filepath.Join(dir, "balances.json"))
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, s.Create(context.Background(), id, "Steve", decimal.NewFromInt(1000)))

	// 只读目录使临时文件创建失败，强制落盘出错
	require.NoError(t, os.Chmod(dir, 0555))
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	ok, err := s.SetBalanceCAS(context.Background(), id, decimal.NewFromInt(5000), 0)
	assert.Error(t, err)
	assert.False(t, ok)

	// 失败的变更对后续读取必须完全不可见
	acct, gerr := s.Get(context.Background(), id)
	require.NoError(t, gerr)
	require.NotNil(t, acct)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(1000)), "got %s", acct.Balance)
	assert.Equal(t, int64(0), acct.Version)

	assert.Error(t, s.SetBalance(context.Background(), id, decimal.NewFromInt(7)))
	acct, _ = s.Get(context.Background(), id)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(0), acct.Version)

	assert.Error(t, s.Delete(context.Background(), id))
	has, herr := s.Has(context.Background(), id)
	require.NoError(t, herr)
	assert.True(t, has)

	other := uuid.New()
	assert.Error(t, s.Create(context.Background(), other, "Alex", decimal.NewFromInt(1000)))
	has, herr = s.Has(context.Background(), other)
	require.NoError(t, herr)
	assert.False(t, has)

	// 目录恢复可写后同一写入成功，版本正常推进
	require.NoError(t, os.Chmod(dir, 0755))
	ok, err = s.SetBalanceCAS(context.Background(), id, decimal.NewFromInt(5000), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	acct, _ = s.Get(context.Background(), id)
	assert.True(t, acct.Balance.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, int64(1), acct.Version)
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balances.json")
	id := uuid.New()
	amount := decimal.RequireFromString("123.45")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), id, "Steve", decimal.NewFromInt(1000)))
	require.NoError(t, s.SetBalance(context.Background(), id, amount))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)

	acct, err := reopened.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, "Steve", acct.Name)
	assert.True(t, acct.Balance.Equal(amount), "got %s", acct.Balance)
}

func TestIDByNameCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	require.NoError(t, s.Create(context.Background(), id, "Steve", decimal.NewFromInt(1000)))

	got, found, err := s.IDByName(context.Background(), "STEVE")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got)

	_, found, err = s.IDByName(context.Background(), "alex")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTopOrdering(t *testing.T) {
	s := newTestStore(t)

	ids := make([]uuid.UUID, 3)
	balances := []int64{10, 500, 900}
	for i, b := range balances {
		ids[i] = uuid.New()
		require.NoError(t, s.Create(context.Background(), ids[i], "p", decimal.NewFromInt(b)))
	}

	top, err := s.Top(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, ids[2], top[0].ID)
	assert.Equal(t, ids[1], top[1].ID)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	id := uuid.New()
	require.NoError(t, s.Create(context.Background(), id, "Steve", decimal.NewFromInt(1000)))

	require.NoError(t, s.Delete(context.Background(), id))

	has, err := s.Has(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, has)
}
