// Package cache 提供进程内的泛型缓存
//
// Cache 以可比较的键存放值，超过容量时按 LRU 驱逐，可选基于访问时间的 TTL。
// 除了按键读写外，DeleteFunc 支持按谓词批量删除，查询层用它按命名空间整体失效列表页。
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Cache 并发安全的 LRU + TTL 缓存
type Cache[K comparable, V any] struct {
	name   string
	config Config

	items   map[K]*cacheEntry[K, V]
	lruList *list.List // 最近使用的在前

	mu    sync.RWMutex
	stats CacheStats
	now   func() time.Time
}

type cacheEntry[K comparable, V any] struct {
	key        K
	value      V
	createdAt  time.Time
	accessedAt time.Time
	lruElement *list.Element
}

// Config 缓存配置
type Config struct {
	// Name 缓存名称（用于日志和统计）
	Name string

	// MaxSize 最大条目数，0 表示不限制
	MaxSize int

	// TTL 基于访问时间的过期时间，0 表示永不过期
	TTL time.Duration

	// OnEvict 条目被移除时回调（驱逐、过期、删除、清空）
	OnEvict func(key, value any)
}

// CacheStats 缓存统计信息
type CacheStats struct {
	Hits          int64 // 命中次数
	Misses        int64 // 未命中次数
	Evictions     int64 // LRU 驱逐次数
	Expires       int64 // TTL 过期次数
	Invalidations int64 // DeleteFunc 批量删除的条目数
	Size          int   // 当前条目数
}

// New 创建新的缓存实例
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	return &Cache[K, V]{
		name:    config.Name,
		config:  config,
		items:   make(map[K]*cacheEntry[K, V]),
		lruList: list.New(),
		now:     time.Now,
	}
}

// Get 获取缓存值，并刷新访问时间与 LRU 位置
func (c *Cache[K, V]) Get(key K) (value V, found bool) {
	// Get 会修改访问时间、LRU 顺序和统计，因此持写锁
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		return value, false
	}
	if c.isExpired(entry) {
		c.removeEntryUnsafe(entry)
		c.stats.Misses++
		c.stats.Expires++
		return value, false
	}

	entry.accessedAt = c.now()
	c.lruList.MoveToFront(entry.lruElement)
	c.stats.Hits++
	return entry.value, true
}

// Peek 读取值但不影响 LRU 顺序、访问时间与统计
func (c *Cache[K, V]) Peek(key K) (value V, found bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.items[key]
	if !exists || c.isExpired(entry) {
		return value, false
	}
	return entry.value, true
}

// Set 设置缓存值，已存在时覆盖并重置创建时间
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry, exists := c.items[key]; exists {
		entry.value = value
		entry.createdAt = now
		entry.accessedAt = now
		c.lruList.MoveToFront(entry.lruElement)
		return
	}

	if c.config.MaxSize > 0 && len(c.items) >= c.config.MaxSize {
		c.evictOldestUnsafe()
	}

	entry := &cacheEntry[K, V]{key: key, value: value, createdAt: now, accessedAt: now}
	entry.lruElement = c.lruList.PushFront(entry)
	c.items[key] = entry
	c.stats.Size = len(c.items)
}

// Age 返回条目自写入以来的时长
func (c *Cache[K, V]) Age(key K) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.items[key]
	if !exists {
		return 0, false
	}
	return c.now().Sub(entry.createdAt), true
}

// Delete 删除缓存条目，返回是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeEntryUnsafe(entry)
	return true
}

// DeleteFunc 删除所有满足谓词的条目，返回删除数量
func (c *Cache[K, V]) DeleteFunc(match func(key K, value V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, entry := range c.items {
		if match(entry.key, entry.value) {
			c.removeEntryUnsafe(entry)
			removed++
		}
	}
	c.stats.Invalidations += int64(removed)
	return removed
}

// Keys 返回当前键的快照，按最近使用排序
func (c *Cache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.items))
	for el := c.lruList.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*cacheEntry[K, V]).key)
	}
	return keys
}

// Clear 清空所有缓存
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.OnEvict != nil {
		for _, entry := range c.items {
			c.config.OnEvict(entry.key, entry.value)
		}
	}
	c.items = make(map[K]*cacheEntry[K, V])
	c.lruList = list.New()
	c.stats.Size = 0
}

// CleanExpired 清理过期条目，返回清理数量
func (c *Cache[K, V]) CleanExpired() int {
	if c.config.TTL <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	for _, entry := range c.items {
		if c.isExpired(entry) {
			c.removeEntryUnsafe(entry)
			cleaned++
		}
	}
	c.stats.Expires += int64(cleaned)
	return cleaned
}

// Stats 获取统计信息副本
func (c *Cache[K, V]) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = len(c.items)
	return stats
}

// Size 获取当前条目数
func (c *Cache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// HitRate 获取命中率
func (c *Cache[K, V]) HitRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.stats.Hits + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits) / float64(total)
}

// isExpired 需持锁调用
func (c *Cache[K, V]) isExpired(entry *cacheEntry[K, V]) bool {
	if c.config.TTL <= 0 {
		return false
	}
	return c.now().Sub(entry.accessedAt) >= c.config.TTL
}

// evictOldestUnsafe 需持锁调用
func (c *Cache[K, V]) evictOldestUnsafe() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	c.removeEntryUnsafe(oldest.Value.(*cacheEntry[K, V]))
	c.stats.Evictions++
}

// removeEntryUnsafe 需持锁调用
func (c *Cache[K, V]) removeEntryUnsafe(entry *cacheEntry[K, V]) {
	if c.config.OnEvict != nil {
		c.config.OnEvict(entry.key, entry.value)
	}
	if entry.lruElement != nil {
		c.lruList.Remove(entry.lruElement)
	}
	delete(c.items, entry.key)
	c.stats.Size = len(c.items)
}

// String 返回缓存信息的字符串表示
func (c *Cache[K, V]) String() string {
	stats := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d, hits=%d, misses=%d, hit_rate=%.2f%%, evictions=%d, expires=%d, invalidations=%d",
		c.name, stats.Size, c.config.MaxSize, stats.Hits, stats.Misses,
		c.HitRate()*100, stats.Evictions, stats.Expires, stats.Invalidations)
}
