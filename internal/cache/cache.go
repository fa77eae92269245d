// Package cache 视频分析结果缓存，按文件标识和解码选项存取
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMiss 缓存中没有
var ErrMiss = errors.New("cache miss")

// Store 缓存后端
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close()
}

// Key 分析结果的缓存键; variant 区分同一文件的不同解码选项
func Key(fileHash, variant string) string {
	return "geotag:video:" + fileHash + ":" + variant
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory 进程内缓存
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory 创建进程内缓存
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now}
}

// Get 读取，过期视为不存在
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || (!e.expires.IsZero() && m.now().After(e.expires)) {
		return nil, ErrMiss
	}
	return e.value, nil
}

// Set 写入，ttl<=0 表示不过期
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Delete 删除
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() {}
