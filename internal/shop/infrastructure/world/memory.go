// Package world 协作方接口的内存实现
// 独立运行时由游戏桥接层通过管理接口喂入世界状态；测试里直接调用
// Put 系列方法构造场景。
package world

import (
	"sync"

	"github.com/google/uuid"
	"github.com/wyfcoding/gameeconomy/internal/shop/domain"
)

// 单个容器可容纳的最大物品数
const containerCapacity = 1728

// Memory 容器、随身物品、招牌与在线状态的内存世界
type Memory struct {
	mu          sync.RWMutex
	containers  map[domain.Location]*containerState
	inventories map[uuid.UUID]map[string]int
	signs       map[domain.Location]domain.Shop
	online      map[uuid.UUID]bool
	messages    map[uuid.UUID][]string
}

type containerState struct {
	kind  string
	items map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		containers:  make(map[domain.Location]*containerState),
		inventories: make(map[uuid.UUID]map[string]int),
		signs:       make(map[domain.Location]domain.Shop),
		online:      make(map[uuid.UUID]bool),
		messages:    make(map[uuid.UUID][]string),
	}
}

// PutContainer 放置容器并设定内容物
func (m *Memory) PutContainer(loc domain.Location, kind string, items map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	contents := make(map[string]int, len(items))
	for id, n := range items {
		contents[id] = n
	}
	m.containers[loc] = &containerState{kind: kind, items: contents}
}

// RemoveContainer 拆除容器
func (m *Memory) RemoveContainer(loc domain.Location) {
	m.mu.Lock()
	delete(m.containers, loc)
	m.mu.Unlock()
}

// Kind 实现 domain.ContainerAccess
func (m *Memory) Kind(loc domain.Location) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.containers[loc]
	if !ok {
		return "", nil
	}
	return c.kind, nil
}

// Count 实现 domain.ContainerAccess
func (m *Memory) Count(loc domain.Location, item domain.ItemRef) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.containers[loc]
	if !ok {
		return 0, domain.ErrContainerMissing
	}
	return c.items[item.ID], nil
}

// Remove 实现 domain.ContainerAccess
func (m *Memory) Remove(loc domain.Location, item domain.ItemRef, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[loc]
	if !ok {
		return 0, domain.ErrContainerMissing
	}
	have := c.items[item.ID]
	if have < n {
		n = have
	}
	c.items[item.ID] = have - n
	return n, nil
}

// Add 实现 domain.ContainerAccess
func (m *Memory) Add(loc domain.Location, item domain.ItemRef, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[loc]
	if !ok {
		return domain.ErrContainerMissing
	}
	c.items[item.ID] += n
	return nil
}

// SpaceFor 实现 domain.ContainerAccess
func (m *Memory) SpaceFor(loc domain.Location, item domain.ItemRef, n int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.containers[loc]
	if !ok {
		return false, domain.ErrContainerMissing
	}
	total := 0
	for _, count := range c.items {
		total += count
	}
	return total+n <= containerCapacity, nil
}

// PutInventory 设定访客持有的物品数量
func (m *Memory) PutInventory(actor uuid.UUID, itemID string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.inventories[actor]
	if !ok {
		inv = make(map[string]int)
		m.inventories[actor] = inv
	}
	inv[itemID] = n
}

// InventoryCount 读取访客持有数量（管理接口与测试用）
func (m *Memory) InventoryCount(actor uuid.UUID, itemID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inventories[actor][itemID]
}

// Inventory 随身物品视图，实现 domain.Inventory
// Count/Remove 与容器接口同名，须经视图区分
func (m *Memory) Inventory() domain.Inventory {
	return inventoryView{m}
}

type inventoryView struct {
	m *Memory
}

func (v inventoryView) Count(actor uuid.UUID, item domain.ItemRef) (int, error) {
	return v.m.countHeld(actor, item)
}

func (v inventoryView) Remove(actor uuid.UUID, item domain.ItemRef, n int) (int, error) {
	return v.m.removeHeld(actor, item, n)
}

func (v inventoryView) Grant(actor uuid.UUID, item domain.ItemRef, n int) error {
	return v.m.Grant(actor, item, n)
}

func (m *Memory) countHeld(actor uuid.UUID, item domain.ItemRef) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inventories[actor][item.ID], nil
}

func (m *Memory) removeHeld(actor uuid.UUID, item domain.ItemRef, n int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv := m.inventories[actor]
	have := inv[item.ID]
	if have < n {
		n = have
	}
	if inv != nil {
		inv[item.ID] = have - n
	}
	return n, nil
}

// Grant 实现 domain.Inventory
func (m *Memory) Grant(actor uuid.UUID, item domain.ItemRef, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.inventories[actor]
	if !ok {
		inv = make(map[string]int)
		m.inventories[actor] = inv
	}
	inv[item.ID] += n
	return nil
}

// Update 实现 domain.Signage
func (m *Memory) Update(loc domain.Location, s *domain.Shop) error {
	m.mu.Lock()
	m.signs[loc] = *s
	m.mu.Unlock()
	return nil
}

// Sign 读取招牌状态（测试用）
func (m *Memory) Sign(loc domain.Location) (domain.Shop, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.signs[loc]
	return s, ok
}

// SetOnline 标记玩家在线状态
func (m *Memory) SetOnline(actor uuid.UUID, online bool) {
	m.mu.Lock()
	if online {
		m.online[actor] = true
	} else {
		delete(m.online, actor)
	}
	m.mu.Unlock()
}

// Deliver 实现 syncbus.Presence：仅投递给在线玩家
func (m *Memory) Deliver(actor uuid.UUID, message string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.online[actor] {
		return false
	}
	m.messages[actor] = append(m.messages[actor], message)
	return true
}

// DrainMessages 取走并清空某玩家的待读消息
func (m *Memory) DrainMessages(actor uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[actor]
	delete(m.messages, actor)
	return msgs
}
