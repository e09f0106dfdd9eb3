package permission

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	value    any
	expireAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && now.After(e.expireAt)
}

// MemoryCache 进程内缓存。读路径不加锁，过期条目由后台协程定期清理。
type MemoryCache struct {
	entries   sync.Map // key -> *memoryEntry
	versions  sync.Map // name -> *atomic.Uint64
	stop      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// NewMemoryCache cleanupInterval <= 0 时不启动清理协程
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	c := &MemoryCache{stop: make(chan struct{}), now: time.Now}
	if cleanupInterval > 0 {
		go c.janitor(cleanupInterval)
	}
	return c
}

func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) deleteExpired() {
	now := c.now()
	c.entries.Range(func(key, value any) bool {
		if value.(*memoryEntry).expired(now) {
			c.entries.Delete(key)
		}
		return true
	})
}

func (c *MemoryCache) Get(_ context.Context, key string, _ func([]byte) (any, error)) (any, bool, error) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(*memoryEntry)
	if entry.expired(c.now()) {
		c.entries.CompareAndDelete(key, v)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expireAt = c.now().Add(ttl)
	}
	c.entries.Store(key, entry)
	return nil
}

func (c *MemoryCache) counter(name string) *atomic.Uint64 {
	if v, ok := c.versions.Load(name); ok {
		return v.(*atomic.Uint64)
	}
	v, _ := c.versions.LoadOrStore(name, new(atomic.Uint64))
	return v.(*atomic.Uint64)
}

func (c *MemoryCache) Versions(_ context.Context, names ...string) ([]uint64, error) {
	out := make([]uint64, len(names))
	for i, name := range names {
		if v, ok := c.versions.Load(name); ok {
			out[i] = v.(*atomic.Uint64).Load()
		}
	}
	return out, nil
}

func (c *MemoryCache) Bump(_ context.Context, name string) error {
	c.counter(name).Add(1)
	return nil
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.entries.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
		}
		return true
	})
	return nil
}

// Len 当前条目数（含未清理的过期条目）
func (c *MemoryCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}
