package domain

import "errors"

var (
	// ErrShopNotFound 位置上不存在商店
	ErrShopNotFound = errors.New("no shop at this location")
	// ErrShopExists 位置上已有商店
	ErrShopExists = errors.New("a shop already exists at this location")
	// ErrNotShopOwner 非店主操作
	ErrNotShopOwner = errors.New("not the shop owner")
	// ErrOutOfStock 商店库存不足
	ErrOutOfStock = errors.New("shop does not have enough stock")
	// ErrContainerMissing 商店容器不存在或类型不符
	ErrContainerMissing = errors.New("shop container not found")
	// ErrContainerMismatch 参考库存与真实容器内容不一致，交易中止
	ErrContainerMismatch = errors.New("container contents disagree with advisory stock")
	// ErrContainerFull 容器空间不足
	ErrContainerFull = errors.New("shop container is full")
	// ErrNotEnoughItems 访客持有的物品不足
	ErrNotEnoughItems = errors.New("not enough matching items")
	// ErrOwnerInsufficientFunds 店主余额不足，无力收购
	ErrOwnerInsufficientFunds = errors.New("shop owner cannot afford this sale")
	// ErrNoPending 没有待定交互
	ErrNoPending = errors.New("no pending shop interaction")
	// ErrPendingExpired 待定交互已过期
	ErrPendingExpired = errors.New("shop interaction expired")
	// ErrBadQuantity 数量输入无法解析
	ErrBadQuantity = errors.New("quantity must be a positive integer or \"all\"")
	// ErrNothingToTrade 结算数量为零
	ErrNothingToTrade = errors.New("nothing to trade")
	// ErrItemNotSellable 物品不在收购价表内
	ErrItemNotSellable = errors.New("this item cannot be sold")
)
