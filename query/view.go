package query

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"

	"invdash/errors"
	"invdash/logging"
	"invdash/table"
)

// ViewConfig 列表视图配置
type ViewConfig[T any] struct {
	Namespace string
	Schema    *FilterSchema
	PageSize  int
	Columns   []table.Column[T]
	Load      LoadFunc[T]
	// OnChange 每次加载状态变化后调用
	OnChange func(Snapshot[T])
	Logger   logging.Logger
}

// Snapshot 视图在某一时刻的完整状态
type Snapshot[T any] struct {
	Key       QueryKey
	Page      int
	PageSize  int
	PageCount int
	Offset    int
	FirstItem int
	LastItem  int
	Total     int
	CanPrev   bool
	CanNext   bool
	Filters   map[string]string
	State     State[T]
}

// Stale 已完成的结果属于旧键，视图仍在等待当前键的数据
func (s Snapshot[T]) Stale() bool {
	return errors.IsErrorCode(s.State.Err, errors.ErrCodeStale)
}

// Pager 分页栏数据
func (s Snapshot[T]) Pager() table.Pager {
	return table.Pager{
		PageSizes: PageSizes,
		PageSize:  s.PageSize,
		Page:      s.Page,
		PageCount: s.PageCount,
		First:     s.FirstItem,
		Last:      s.LastItem,
		Total:     s.Total,
		CanPrev:   s.CanPrev,
		CanNext:   s.CanNext,
	}
}

// ErrStaleResult 快照中的结果不属于视图当前的键
var ErrStaleResult = errors.NewError(errors.ErrCodeStale, "result belongs to a previous view key")

// TableView 分页、可过滤的服务端列表
//
// 分页或过滤变化时立即以新键加载；任何过滤变化都会回到第 0 页。
// 数据变化导致当前页越界时收敛到最后一页并重新加载。
type TableView[T any] struct {
	namespace string
	columns   []table.Column[T]
	onChange  func(Snapshot[T])
	logger    logging.Logger

	mu         sync.Mutex
	pagination Pagination
	filters    *FilterState
	fetcher    *ListFetcher[T]
}

// NewTableView 创建视图，不会自动加载
func NewTableView[T any](client *Client, cfg ViewConfig[T]) *TableView[T] {
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("query.view").WithFields(logging.String("namespace", cfg.Namespace))
	}
	v := &TableView[T]{
		namespace:  cfg.Namespace,
		columns:    cfg.Columns,
		onChange:   cfg.OnChange,
		logger:     cfg.Logger,
		pagination: NewPagination(cfg.PageSize),
		filters:    NewFilterState(cfg.Schema),
	}
	v.fetcher = NewListFetcher(client, cfg.Namespace, cfg.Load,
		WithOnChange(v.handleState),
		WithFetcherLogger[T](cfg.Logger))
	return v
}

func (v *TableView[T]) handleState(state State[T]) {
	v.mu.Lock()
	if state.Status == StatusSuccess && state.Key == v.keyLocked() {
		if v.pagination.SetTotal(state.Page.Total) {
			v.logger.Debug(context.Background(), "page out of range after data change, clamping",
				logging.Int("page", v.pagination.Page()))
			key := v.keyLocked()
			v.mu.Unlock()
			// 期间已有新请求时不再覆盖
			v.fetcher.loadIf(state.Key, key)
			return
		}
	}
	snap := v.snapshotLocked(state)
	v.mu.Unlock()

	if v.onChange != nil {
		v.onChange(snap)
	}
}

// Key 当前状态对应的查询键
func (v *TableView[T]) Key() QueryKey {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keyLocked()
}

func (v *TableView[T]) keyLocked() QueryKey {
	return NewQueryKey(v.namespace, v.pagination.Offset(), v.pagination.PageSize(), v.filters.Params())
}

// mutate 在锁内修改状态，状态改变时以新键加载
func (v *TableView[T]) mutate(fn func() (bool, error)) error {
	v.mu.Lock()
	changed, err := fn()
	key := v.keyLocked()
	v.mu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		v.fetcher.Load(key)
	}
	return nil
}

// Refresh 以当前键加载（首次展示、手动刷新）
func (v *TableView[T]) Refresh() {
	v.fetcher.Load(v.Key())
}

// SetPage 跳转到第 n 页（从 0 开始）
func (v *TableView[T]) SetPage(n int) error {
	return v.mutate(func() (bool, error) {
		prev := v.pagination.Page()
		if err := v.pagination.SetPage(n); err != nil {
			return false, err
		}
		return prev != n, nil
	})
}

func (v *TableView[T]) NextPage() error {
	return v.mutate(func() (bool, error) {
		if !v.pagination.CanNext() {
			return false, ErrPageOutOfRange
		}
		return true, v.pagination.SetPage(v.pagination.Page() + 1)
	})
}

func (v *TableView[T]) PrevPage() error {
	return v.mutate(func() (bool, error) {
		if !v.pagination.CanPrev() {
			return false, ErrPageOutOfRange
		}
		return true, v.pagination.SetPage(v.pagination.Page() - 1)
	})
}

func (v *TableView[T]) FirstPage() error { return v.SetPage(0) }

func (v *TableView[T]) LastPage() error {
	return v.mutate(func() (bool, error) {
		last := max(v.pagination.PageCount()-1, 0)
		prev := v.pagination.Page()
		if err := v.pagination.SetPage(last); err != nil {
			return false, err
		}
		return prev != last, nil
	})
}

// SetPageSize 修改页大小并回到第 0 页
func (v *TableView[T]) SetPageSize(size int) error {
	return v.mutate(func() (bool, error) {
		if err := v.pagination.SetPageSize(size); err != nil {
			return false, err
		}
		return true, nil
	})
}

// SetFilter 修改过滤条件，有变化时回到第 0 页
func (v *TableView[T]) SetFilter(name, value string) error {
	return v.mutate(func() (bool, error) {
		changed, err := v.filters.Set(name, value)
		if err != nil || !changed {
			return false, err
		}
		v.pagination.Reset()
		return true, nil
	})
}

// ClearFilter 恢复单个过滤条件的默认值
func (v *TableView[T]) ClearFilter(name string) error {
	return v.mutate(func() (bool, error) {
		if _, ok := v.filters.Schema().Field(name); !ok {
			return false, errors.NewError(errors.ErrCodeInvalidInput, "unknown filter: "+name)
		}
		if !v.filters.Clear(name) {
			return false, nil
		}
		v.pagination.Reset()
		return true, nil
	})
}

// ResetFilters 恢复全部过滤条件
func (v *TableView[T]) ResetFilters() error {
	return v.mutate(func() (bool, error) {
		if !v.filters.Reset() {
			return false, nil
		}
		v.pagination.Reset()
		return true, nil
	})
}

// Filter 当前过滤值
func (v *TableView[T]) Filter(name string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filters.Get(name)
}

// URL 可分享的视图地址，只包含与默认值不同的参数
//
// page 以 1 开始计数。
func (v *TableView[T]) URL() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	params := v.filters.Encode()
	if p := v.pagination.Page(); p > 0 {
		params.Set("page", strconv.Itoa(p+1))
	}
	if s := v.pagination.PageSize(); s != DefaultPageSize {
		params.Set("size", strconv.Itoa(s))
	}
	if len(params) == 0 {
		return "/" + v.namespace
	}
	return "/" + v.namespace + "?" + params.Encode()
}

// ApplyURL 从视图地址恢复状态并加载
//
// 缺失或非法的参数取默认值；总数未知时页码不做上界校验，加载后再收敛。
func (v *TableView[T]) ApplyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "invalid view url")
	}
	params := u.Query()
	return v.mutate(func() (bool, error) {
		v.filters = DecodeFilters(v.filters.Schema(), params)
		size, _ := strconv.Atoi(params.Get("size"))
		v.pagination = NewPagination(size)
		if page, err := strconv.Atoi(params.Get("page")); err == nil && page > 1 {
			_ = v.pagination.SetPage(page - 1)
		}
		return true, nil
	})
}

// Snapshot 当前状态
func (v *TableView[T]) Snapshot() Snapshot[T] {
	state := v.fetcher.State()
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked(state)
}

func (v *TableView[T]) snapshotLocked(state State[T]) Snapshot[T] {
	p := &v.pagination
	key := v.keyLocked()
	if state.Key != key && (state.Status == StatusSuccess || state.Status == StatusError) {
		// 结果属于旧键，新键的请求尚未完成
		state = State[T]{Status: StatusLoading, Key: state.Key, Page: state.Page, Err: ErrStaleResult, UpdatedAt: state.UpdatedAt}
	}
	return Snapshot[T]{
		Key:       key,
		Page:      p.Page(),
		PageSize:  p.PageSize(),
		PageCount: p.PageCount(),
		Offset:    p.Offset(),
		FirstItem: p.FirstItemIndex(),
		LastItem:  p.LastItemIndex(),
		Total:     p.Total(),
		CanPrev:   p.CanPrev(),
		CanNext:   p.CanNext(),
		Filters:   v.filters.Values(),
		State:     state,
	}
}

// Wait 等待当前加载结束
func (v *TableView[T]) Wait(ctx context.Context) (Snapshot[T], error) {
	if _, err := v.fetcher.Wait(ctx); err != nil {
		return v.Snapshot(), err
	}
	return v.Snapshot(), nil
}

// Render 渲染表格与分页栏
func (v *TableView[T]) Render(w io.Writer) {
	snap := v.Snapshot()
	headers := table.Headers(v.columns)
	switch snap.State.Status {
	case StatusIdle, StatusLoading:
		table.RenderMessage(w, headers, "Loading...")
	case StatusError:
		table.RenderMessage(w, headers, fmt.Sprintf("Error: %s", errorText(snap.State.Err)))
	default:
		table.Render(w, v.columns, snap.State.Page.Items)
	}
	table.RenderPager(w, snap.Pager())
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	if appErr, ok := err.(errors.IError); ok {
		return appErr.Message()
	}
	return err.Error()
}

// Close 取消进行中的请求并退订
func (v *TableView[T]) Close() { v.fetcher.Close() }
