// 包 jsonfile 基于单个 JSON 文档的账户持久化后端
// 账户全量驻留内存，写入时整体序列化并通过临时文件 + rename 原子落盘。
// CAS 语义在进程内由读写锁保证（该后端仅适用于单进程独占数据文件的部署）。
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/internal/ledger/domain"
)

// record 磁盘上的账户记录
type record struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
	Version int64           `json:"version"`
}

// Store JSON 文件后端
type Store struct {
	mu       sync.RWMutex
	path     string
	accounts map[uuid.UUID]*record
}

// New 创建并加载 JSON 文件后端
func New(path string) (*Store, error) {
	s := &Store{
		path:     path,
		accounts: make(map[uuid.UUID]*record),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read balance file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.accounts); err != nil {
			return nil, fmt.Errorf("parse balance file: %w", err)
		}
	}
	return s, nil
}

// persist 将全量账户落盘，调用方必须持有写锁
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "balances-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace balance file: %w", err)
	}
	return nil
}

// Load 加载全部账户
func (s *Store) Load(ctx context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(s.accounts))
	for id, rec := range s.accounts {
		accounts = append(accounts, domain.Account{
			ID:      id,
			Name:    rec.Name,
			Balance: rec.Balance,
			Version: rec.Version,
		})
	}
	return accounts, nil
}

// Get 根据 ID 获取账户
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &domain.Account{
		ID:      id,
		Name:    rec.Name,
		Balance: rec.Balance,
		Version: rec.Version,
	}, nil
}

// SetBalance 无条件覆盖余额，账户不存在则以占位名称创建（版本从 0 起）
// 落盘失败时回滚内存状态：返回错误即等价于变更从未发生。
func (s *Store) SetBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		s.accounts[id] = &record{Name: "Unknown", Balance: amount}
		if err := s.persist(); err != nil {
			delete(s.accounts, id)
			return err
		}
		return nil
	}

	prev := *rec
	rec.Balance = amount
	rec.Version++
	if err := s.persist(); err != nil {
		*rec = prev
		return err
	}
	return nil
}

// SetBalanceCAS 条件写入余额
// 内存变更仅在落盘成功后保留；失败路径上读取方看不到新余额或新版本。
func (s *Store) SetBalanceCAS(ctx context.Context, id uuid.UUID, amount decimal.Decimal, expectedVersion int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return false, nil
	}
	if rec.Version != expectedVersion {
		return false, nil
	}

	prev := *rec
	rec.Balance = amount
	rec.Version++
	if err := s.persist(); err != nil {
		*rec = prev
		return false, err
	}
	return true, nil
}

// Create 创建账户；已存在时仅在名称变化时更新
func (s *Store) Create(ctx context.Context, id uuid.UUID, name string, initial decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		s.accounts[id] = &record{Name: name, Balance: initial}
		if err := s.persist(); err != nil {
			delete(s.accounts, id)
			return err
		}
		return nil
	}
	if rec.Name != name {
		prev := rec.Name
		rec.Name = name
		if err := s.persist(); err != nil {
			rec.Name = prev
			return err
		}
	}
	return nil
}

// Delete 删除账户
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return nil
	}
	delete(s.accounts, id)
	if err := s.persist(); err != nil {
		s.accounts[id] = rec
		return err
	}
	return nil
}

// Has 账户是否存在
func (s *Store) Has(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[id]
	return ok, nil
}

// IDByName 根据归一化名称查找账户 ID
func (s *Store) IDByName(ctx context.Context, name string) (uuid.UUID, bool, error) {
	normalized := domain.NormalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, rec := range s.accounts {
		if domain.NormalizeName(rec.Name) == normalized {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

// Names 全部已知显示名称
func (s *Store) Names(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.accounts))
	for _, rec := range s.accounts {
		names = append(names, rec.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Top 余额降序的前 n 个账户，余额相同时按 ID 升序
func (s *Store) Top(ctx context.Context, n int) ([]domain.Account, error) {
	accounts, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(accounts, func(i, j int) bool {
		cmp := accounts[i].Balance.Cmp(accounts[j].Balance)
		if cmp != 0 {
			return cmp > 0
		}
		return accounts[i].ID.String() < accounts[j].ID.String()
	})

	if len(accounts) > n {
		accounts = accounts[:n]
	}
	return accounts, nil
}

// Close 关闭后端
func (s *Store) Close() error {
	return nil
}
