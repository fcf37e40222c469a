// 包 cache 账本的进程内缓存层
// 三个相互独立的有界 TTL 缓存：账户、名称索引、全量名称快照。
// 缓存只是便利，不是义务：存储后端始终是权威，任何路径都可以随时绕过
// 或失效缓存而不破坏正确性。
package cache

import (
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/wyfcoding/gameeconomy/internal/ledger/domain"
)

// allNamesKey 全量名称快照缓存的唯一键
const allNamesKey = "all"

// Config 缓存容量与 TTL 配置
type Config struct {
	AccountSize int
	AccountTTL  time.Duration
	NameSize    int
	NameTTL     time.Duration
	NamesTTL    time.Duration
}

// DefaultConfig 默认缓存配置
func DefaultConfig() Config {
	return Config{
		AccountSize: 10000,
		AccountTTL:  10 * time.Minute,
		NameSize:    10000,
		NameTTL:     time.Hour,
		NamesTTL:    time.Minute,
	}
}

// Cache 账本缓存
type Cache struct {
	accounts *expirable.LRU[uuid.UUID, domain.Account]
	names    *expirable.LRU[string, uuid.UUID]
	allNames *expirable.LRU[string, []string]
}

// New 创建缓存实例
func New(cfg Config) *Cache {
	return &Cache{
		accounts: expirable.NewLRU[uuid.UUID, domain.Account](cfg.AccountSize, nil, cfg.AccountTTL),
		names:    expirable.NewLRU[string, uuid.UUID](cfg.NameSize, nil, cfg.NameTTL),
		allNames: expirable.NewLRU[string, []string](1, nil, cfg.NamesTTL),
	}
}

// Account 查询账户缓存
func (c *Cache) Account(id uuid.UUID) (domain.Account, bool) {
	return c.accounts.Get(id)
}

// PutAccount 写入账户缓存
func (c *Cache) PutAccount(account domain.Account) {
	c.accounts.Add(account.ID, account)
}

// InvalidateAccount 失效账户缓存条目
func (c *Cache) InvalidateAccount(id uuid.UUID) {
	c.accounts.Remove(id)
}

// IDByName 查询名称索引缓存（归一化名称）
func (c *Cache) IDByName(name string) (uuid.UUID, bool) {
	return c.names.Get(domain.NormalizeName(name))
}

// PutName 写入名称索引缓存
func (c *Cache) PutName(name string, id uuid.UUID) {
	c.names.Add(domain.NormalizeName(name), id)
}

// InvalidateName 失效名称索引条目
func (c *Cache) InvalidateName(name string) {
	c.names.Remove(domain.NormalizeName(name))
}

// Names 查询全量名称快照
func (c *Cache) Names() ([]string, bool) {
	return c.allNames.Get(allNamesKey)
}

// PutNames 写入全量名称快照
func (c *Cache) PutNames(names []string) {
	c.allNames.Add(allNamesKey, names)
}

// InvalidateNames 整体失效全量名称快照
// 创建/删除账户都意味着快照指向一份不同的派生列表。
func (c *Cache) InvalidateNames() {
	c.allNames.Remove(allNamesKey)
}
