// 包 jsonfile 基于单个 JSON 文档的商店注册表
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/wyfcoding/gameeconomy/internal/shop/domain"
)

// Registry JSON 文件商店注册表
type Registry struct {
	mu   sync.Mutex
	path string
}

// New 创建注册表
func New(path string) *Registry {
	return &Registry{path: path}
}

// Load 加载全部商店
func (r *Registry) Load(ctx context.Context) ([]*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read shop file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var shops []*domain.Shop
	if err := json.Unmarshal(data, &shops); err != nil {
		return nil, fmt.Errorf("parse shop file: %w", err)
	}
	return shops, nil
}

// Save 整体保存商店列表（临时文件 + rename 原子替换）
func (r *Registry) Save(ctx context.Context, shops []*domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(shops, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal shops: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "shops-*.json")
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
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace shop file: %w", err)
	}
	return nil
}
