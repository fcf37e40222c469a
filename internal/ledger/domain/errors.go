package domain

import "errors"

var (
	// ErrInsufficientFunds 余额不足，变更未发生
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflictExhausted CAS 重试耗尽，变更未发生，调用方可稍后重试
	ErrConflictExhausted = errors.New("concurrency conflict: retries exhausted")
	// ErrAccountNotFound 账户不存在
	ErrAccountNotFound = errors.New("account not found")
	// ErrStorageUnavailable 持久化后端不可用
	ErrStorageUnavailable = errors.New("storage unavailable")
)
