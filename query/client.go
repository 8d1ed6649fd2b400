// Package query 提供列表视图的查询状态层
//
// 包含分页与过滤状态、规范化的查询键、带单飞合并和命名空间失效的查询缓存、
// 丢弃过期响应的列表加载器，以及在成功后失效相关缓存的变更操作。
package query

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"invdash/cache"
	"invdash/errors"
	"invdash/logging"
)

const (
	// DefaultStaleTime 缓存条目视为新鲜的时长
	DefaultStaleTime = 30 * time.Second
	// DefaultMaxEntries 进程内缓存的最大条目数
	DefaultMaxEntries = 512
)

// SharedStore 跨进程共享的二级缓存
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	DeleteNamespace(ctx context.Context, namespace string) (int, error)
}

// InvalidationPublisher 将命名空间失效广播给其它进程
type InvalidationPublisher interface {
	PublishInvalidation(ctx context.Context, namespace string) error
}

// FetchFunc 实际访问服务端的函数
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options QueryClient 配置
type Options struct {
	// StaleTime 条目保持新鲜的时长；0 表示永不过期（只靠失效刷新），负数取 DefaultStaleTime
	StaleTime  time.Duration
	MaxEntries int
	Store      SharedStore
	Logger     logging.Logger
}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Client 查询缓存
//
// 相同键的并发请求合并为一次；命名空间失效会删除该命名空间下全部条目，
// 并递增代号，失效之前发出的请求返回后不再写回缓存。
type Client struct {
	pages     *cache.Cache[QueryKey, entry]
	group     singleflight.Group
	store     SharedStore
	staleTime time.Duration
	logger    logging.Logger
	now       func() time.Time

	mu          sync.Mutex
	publisher   InvalidationPublisher
	generations map[string]uint64
	listeners   map[string]map[uint64]func()
	nextID      uint64
}

// NewClient 创建查询缓存
func NewClient(opts Options) *Client {
	if opts.StaleTime < 0 {
		opts.StaleTime = DefaultStaleTime
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("query.client")
	}
	return &Client{
		pages:       cache.New[QueryKey, entry](cache.Config{Name: "query-pages", MaxSize: opts.MaxEntries}),
		store:       opts.Store,
		staleTime:   opts.StaleTime,
		logger:      opts.Logger,
		now:         time.Now,
		generations: make(map[string]uint64),
		listeners:   make(map[string]map[uint64]func()),
	}
}

// SetPublisher 设置失效广播
func (c *Client) SetPublisher(p InvalidationPublisher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publisher = p
}

// Fetch 读取键对应的数据
//
// 新鲜的缓存直接返回；否则依次尝试二级缓存与 fn。相同键的并发调用共享一次 fn。
// 发起者被取消时，仍在等待的调用者会自行重新发起请求。
func Fetch[T any](ctx context.Context, c *Client, key QueryKey, fn FetchFunc[T]) (T, error) {
	var zero T
	if v, ok := lookup[T](c, key, true); ok {
		return v, nil
	}

	for {
		gen := c.generation(key.Namespace)
		flight := key.String() + "#" + strconv.FormatUint(gen, 10)
		ch := c.group.DoChan(flight, func() (any, error) {
			return load(ctx, c, key, gen, fn)
		})

		select {
		case <-ctx.Done():
			return zero, errors.Normalize(ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				if errors.IsCanceled(res.Err) && ctx.Err() == nil {
					continue
				}
				return zero, res.Err
			}
			v, ok := res.Val.(T)
			if !ok {
				return zero, errors.NewError(errors.ErrCodeInternal, "cached value type mismatch for "+key.String())
			}
			return v, nil
		}
	}
}

// Peek 返回缓存中的数据（不论是否新鲜），不会发起请求
func Peek[T any](c *Client, key QueryKey) (T, bool) {
	return lookup[T](c, key, false)
}

func lookup[T any](c *Client, key QueryKey, freshOnly bool) (T, bool) {
	var zero T
	get := c.pages.Peek
	if freshOnly {
		get = c.pages.Get
	}
	e, ok := get(key)
	if !ok {
		return zero, false
	}
	if freshOnly && c.staleTime > 0 && c.now().Sub(e.fetchedAt) >= c.staleTime {
		return zero, false
	}
	v, ok := e.value.(T)
	return v, ok
}

func load[T any](ctx context.Context, c *Client, key QueryKey, gen uint64, fn FetchFunc[T]) (any, error) {
	if c.store != nil {
		if v, ok := sharedGet[T](ctx, c, key); ok {
			c.commit(key, gen, v)
			return v, nil
		}
	}

	start := time.Now()
	v, err := fn(ctx)
	if err != nil {
		return nil, errors.Normalize(err)
	}
	c.logger.Debug(ctx, "query fetched",
		logging.String("key", key.String()),
		logging.Duration("elapsed", time.Since(start)))

	if c.commit(key, gen, v) && c.store != nil {
		sharedSet(ctx, c, key, v)
	}
	return v, nil
}

// commit 代号未变时写入缓存，返回是否写入
func (c *Client) commit(key QueryKey, gen uint64, v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[key.Namespace] != gen {
		c.logger.Debug(context.Background(), "discarding result fetched before invalidation",
			logging.String("key", key.String()))
		return false
	}
	c.pages.Set(key, entry{value: v, fetchedAt: c.now()})
	return true
}

func sharedGet[T any](ctx context.Context, c *Client, key QueryKey) (T, bool) {
	var v T
	data, ok, err := c.store.Get(ctx, key.String())
	if err != nil {
		c.logger.Warn(ctx, "shared cache read failed", logging.String("key", key.String()), logging.Error(err))
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn(ctx, "shared cache entry undecodable", logging.String("key", key.String()), logging.Error(err))
		return v, false
	}
	return v, true
}

func sharedSet(ctx context.Context, c *Client, key QueryKey, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn(ctx, "shared cache encode failed", logging.String("key", key.String()), logging.Error(err))
		return
	}
	if err := c.store.Set(ctx, key.String(), data); err != nil {
		c.logger.Warn(ctx, "shared cache write failed", logging.String("key", key.String()), logging.Error(err))
	}
}

func (c *Client) generation(namespace string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[namespace]
}

// InvalidateNamespace 失效命名空间下的全部条目
//
// 本地缓存总会被清理；二级缓存与广播的失败只记录日志并作为错误返回。
// 订阅了该命名空间的加载器随后会重新请求。
func (c *Client) InvalidateNamespace(ctx context.Context, namespace string) error {
	removed := c.invalidateLocal(namespace)
	c.logger.Debug(ctx, "namespace invalidated",
		logging.String("namespace", namespace),
		logging.Int("removed", removed))

	var errs []error
	if c.store != nil {
		if _, err := c.store.DeleteNamespace(ctx, namespace); err != nil {
			c.logger.Warn(ctx, "shared cache invalidation failed", logging.String("namespace", namespace), logging.Error(err))
			errs = append(errs, errors.WrapError(err, errors.ErrCodeCache, "shared cache invalidation failed"))
		}
	}

	c.mu.Lock()
	publisher := c.publisher
	c.mu.Unlock()
	if publisher != nil {
		if err := publisher.PublishInvalidation(ctx, namespace); err != nil {
			c.logger.Warn(ctx, "invalidation broadcast failed", logging.String("namespace", namespace), logging.Error(err))
			errs = append(errs, errors.WrapError(err, errors.ErrCodeQueue, "invalidation broadcast failed"))
		}
	}

	c.notify(namespace)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ApplyRemoteInvalidation 处理其它进程广播的失效，只清理本地
func (c *Client) ApplyRemoteInvalidation(namespace string) {
	c.invalidateLocal(namespace)
	c.notify(namespace)
}

func (c *Client) invalidateLocal(namespace string) int {
	c.mu.Lock()
	c.generations[namespace]++
	removed := c.pages.DeleteFunc(func(k QueryKey, _ entry) bool {
		return k.InNamespace(namespace)
	})
	c.mu.Unlock()
	return removed
}

// Subscribe 注册命名空间失效回调，返回取消函数
func (c *Client) Subscribe(namespace string, fn func()) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.listeners[namespace] == nil {
		c.listeners[namespace] = make(map[uint64]func())
	}
	c.listeners[namespace][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners[namespace], id)
		})
	}
}

func (c *Client) notify(namespace string) {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners[namespace]))
	for _, fn := range c.listeners[namespace] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Cached 缓存中的键，最近使用的在前
func (c *Client) Cached() []QueryKey { return c.pages.Keys() }

// Stats 进程内缓存统计
func (c *Client) Stats() cache.CacheStats { return c.pages.Stats() }
