package query

import (
	"context"
	"sync"
	"time"

	"invdash/errors"
	"invdash/logging"
)

// Status 加载状态
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Page 一页数据与服务端总数
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// LoadFunc 按键加载一页数据
type LoadFunc[T any] func(ctx context.Context, key QueryKey) (Page[T], error)

// State 加载器对外暴露的状态
type State[T any] struct {
	Status Status
	Key    QueryKey
	Page   Page[T]
	// Err 加载失败的原因；视图快照中 STALE 表示结果属于旧键
	Err       error
	UpdatedAt time.Time
}

type request struct {
	seq    uint64
	key    QueryKey
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (r *request) settle() { r.once.Do(func() { close(r.done) }) }

// ListFetcher 为一个列表视图加载数据
//
// 任一时刻只有一个当前请求。发起新请求会取消上一个；响应只有在其键与
// 序号仍是当前值时才会提交，取消不会表现为错误状态。
// 所属命名空间被失效后自动按当前键重新加载。
type ListFetcher[T any] struct {
	client    *Client
	namespace string
	load      LoadFunc[T]
	onChange  func(State[T])
	logger    logging.Logger

	mu          sync.Mutex
	seq         uint64
	current     *request
	state       State[T]
	closed      bool
	unsubscribe func()
}

// FetcherOption 加载器选项
type FetcherOption[T any] func(*ListFetcher[T])

// WithOnChange 状态变化回调，在加载器锁外调用
func WithOnChange[T any](fn func(State[T])) FetcherOption[T] {
	return func(f *ListFetcher[T]) { f.onChange = fn }
}

// WithFetcherLogger 指定日志
func WithFetcherLogger[T any](logger logging.Logger) FetcherOption[T] {
	return func(f *ListFetcher[T]) { f.logger = logger }
}

// NewListFetcher 创建加载器并订阅命名空间失效
func NewListFetcher[T any](client *Client, namespace string, load LoadFunc[T], opts ...FetcherOption[T]) *ListFetcher[T] {
	f := &ListFetcher[T]{
		client:    client,
		namespace: namespace,
		load:      load,
		logger:    logging.ComponentLogger("query.fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.unsubscribe = client.Subscribe(namespace, f.Refetch)
	return f
}

// Load 以 key 发起请求，取代任何进行中的请求
func (f *ListFetcher[T]) Load(key QueryKey) {
	f.start(func(*request) (QueryKey, bool) { return key, true })
}

// Refetch 以当前键重新加载，尚未加载过时忽略
//
// 读取当前键与发起请求在同一把锁内完成，不会用旧键覆盖期间发起的新请求。
func (f *ListFetcher[T]) Refetch() {
	f.start(func(cur *request) (QueryKey, bool) {
		if cur == nil {
			return QueryKey{}, false
		}
		return cur.key, true
	})
}

// loadIf 仅当当前请求的键仍为 expected 时以 key 发起请求
func (f *ListFetcher[T]) loadIf(expected, key QueryKey) bool {
	return f.start(func(cur *request) (QueryKey, bool) {
		return key, cur != nil && cur.key == expected
	})
}

// start 在锁内由 pick 根据当前请求决定是否以及用哪个键发起新请求
func (f *ListFetcher[T]) start(pick func(cur *request) (QueryKey, bool)) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	key, ok := pick(f.current)
	if !ok {
		f.mu.Unlock()
		return false
	}
	if f.current != nil {
		f.current.cancel()
		f.current.settle()
	}

	f.seq++
	ctx, cancel := context.WithCancel(context.Background())
	req := &request{seq: f.seq, key: key, cancel: cancel, done: make(chan struct{})}
	f.current = req
	f.state = State[T]{Status: StatusLoading, Key: key, Page: f.state.Page}
	state := f.state
	f.mu.Unlock()

	f.emit(state)
	go f.run(ctx, req)
	return true
}

func (f *ListFetcher[T]) run(ctx context.Context, req *request) {
	page, err := Fetch[Page[T]](ctx, f.client, req.key, func(ctx context.Context) (Page[T], error) {
		return f.load(ctx, req.key)
	})
	f.commit(req, page, err)
}

func (f *ListFetcher[T]) commit(req *request, page Page[T], err error) {
	f.mu.Lock()
	defer req.settle()

	if f.closed || f.current != req || f.seq != req.seq {
		f.mu.Unlock()
		f.logger.Debug(context.Background(), "dropping superseded response",
			logging.String("key", req.key.String()))
		return
	}
	req.cancel()
	if errors.IsCanceled(err) {
		f.mu.Unlock()
		return
	}

	if err != nil {
		f.state = State[T]{Status: StatusError, Key: req.key, Err: err, UpdatedAt: time.Now()}
	} else {
		f.state = State[T]{Status: StatusSuccess, Key: req.key, Page: page, UpdatedAt: time.Now()}
	}
	state := f.state
	f.mu.Unlock()

	if err != nil {
		f.logger.Warn(context.Background(), "list load failed",
			logging.String("key", req.key.String()), logging.Error(err))
	}
	f.emit(state)
}

func (f *ListFetcher[T]) emit(state State[T]) {
	if f.onChange != nil {
		f.onChange(state)
	}
}

// State 当前状态快照
func (f *ListFetcher[T]) State() State[T] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Key 当前键，尚未加载过时第二个返回值为 false
func (f *ListFetcher[T]) Key() (QueryKey, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return QueryKey{}, false
	}
	return f.current.key, true
}

// Wait 等待当前请求结束；期间被新请求取代时继续等待新请求
func (f *ListFetcher[T]) Wait(ctx context.Context) (State[T], error) {
	for {
		f.mu.Lock()
		req := f.current
		f.mu.Unlock()
		if req == nil {
			return f.State(), nil
		}

		select {
		case <-ctx.Done():
			return f.State(), ctx.Err()
		case <-req.done:
		}

		f.mu.Lock()
		settled := f.current == req || f.closed
		state := f.state
		f.mu.Unlock()
		if settled {
			return state, nil
		}
	}
}

// Close 取消进行中的请求并退订失效通知
func (f *ListFetcher[T]) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	if f.current != nil {
		f.current.cancel()
		f.current.settle()
	}
	unsubscribe := f.unsubscribe
	f.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
