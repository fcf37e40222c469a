package domain

import "github.com/google/uuid"

// ContainerKind 商店容器的期望类型
const ContainerKind = "chest"

// ContainerAccess 商店背后真实容器的抽象
// 容器内容是库存的事实来源；参考库存只是提示。返回的结果被引擎无条件信任。
type ContainerAccess interface {
	// Kind 位置上容器的类型；容器不存在时返回空串
	Kind(loc Location) (string, error)
	// Count 容器内匹配物品的数量
	Count(loc Location, item ItemRef) (int, error)
	// Remove 从容器移除至多 n 个匹配物品，返回实际移除数
	Remove(loc Location, item ItemRef, n int) (int, error)
	// Add 向容器加入 n 个物品
	Add(loc Location, item ItemRef, n int) error
	// SpaceFor 容器是否还能容纳 n 个该物品
	SpaceFor(loc Location, item ItemRef, n int) (bool, error)
}

// Inventory 访客随身物品的抽象
type Inventory interface {
	// Count 访客持有的匹配物品数量
	Count(actor uuid.UUID, item ItemRef) (int, error)
	// Remove 从访客移除至多 n 个匹配物品，返回实际移除数
	Remove(actor uuid.UUID, item ItemRef, n int) (int, error)
	// Grant 给予访客 n 个物品（尽力而为，放不下的部分由实现自行处置）
	Grant(actor uuid.UUID, item ItemRef, n int) error
}

// Signage 商店招牌刷新的抽象
type Signage interface {
	// Update 按商店当前状态刷新招牌
	Update(loc Location, s *Shop) error
}
