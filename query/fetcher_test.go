package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invdash/errors"
	"invdash/logging"
)

// stubLoader 每个键一个带缓冲的应答通道，ignoreCancel 模拟不响应取消的传输
type stubLoader struct {
	mu           sync.Mutex
	replies      map[QueryKey]chan reply
	calls        map[QueryKey]int
	ignoreCancel bool
}

type reply struct {
	page Page[string]
	err  error
}

func newStubLoader() *stubLoader {
	return &stubLoader{replies: make(map[QueryKey]chan reply), calls: make(map[QueryKey]int)}
}

func (s *stubLoader) ch(key QueryKey) chan reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.replies[key]
	if !ok {
		c = make(chan reply, 4)
		s.replies[key] = c
	}
	return c
}

func (s *stubLoader) callCount(key QueryKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

func (s *stubLoader) load(ctx context.Context, key QueryKey) (Page[string], error) {
	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()

	c := s.ch(key)
	if s.ignoreCancel {
		r := <-c
		return r.page, r.err
	}
	select {
	case r := <-c:
		return r.page, r.err
	case <-ctx.Done():
		return Page[string]{}, ctx.Err()
	}
}

func (s *stubLoader) respond(key QueryKey, items ...string) {
	s.ch(key) <- reply{page: Page[string]{Items: items, Total: len(items)}}
}

func (s *stubLoader) fail(key QueryKey, err error) {
	s.ch(key) <- reply{err: err}
}

func waitState[T any](t *testing.T, f *ListFetcher[T]) State[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	state, err := f.Wait(ctx)
	require.NoError(t, err)
	return state
}

func newTestFetcher(c *Client, s *stubLoader, states *[]Status) *ListFetcher[string] {
	var mu sync.Mutex
	return NewListFetcher(c, "products", s.load,
		WithFetcherLogger[string](logging.NewNoopLogger()),
		WithOnChange(func(st State[string]) {
			if states != nil {
				mu.Lock()
				*states = append(*states, st.Status)
				mu.Unlock()
			}
		}))
}

func TestListFetcher_LoadSuccess(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	var states []Status
	f := newTestFetcher(c, s, &states)
	defer f.Close()

	assert.Equal(t, StatusIdle, f.State().Status)

	key := NewQueryKey("products", 0, 10, nil)
	s.respond(key, "a", "b")
	f.Load(key)
	state := waitState(t, f)

	assert.Equal(t, StatusSuccess, state.Status)
	assert.Equal(t, key, state.Key)
	assert.Equal(t, []string{"a", "b"}, state.Page.Items)
	assert.Equal(t, []Status{StatusLoading, StatusSuccess}, states)
}

func TestListFetcher_SupersededResponseIsDropped(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	s.ignoreCancel = true
	var states []Status
	f := newTestFetcher(c, s, &states)
	defer f.Close()

	first := NewQueryKey("products", 0, 10, nil)
	second := NewQueryKey("products", 10, 10, nil)

	f.Load(first)
	require.Eventually(t, func() bool { return s.callCount(first) == 1 }, time.Second, time.Millisecond)
	f.Load(second)
	s.respond(second, "page-2")
	state := waitState(t, f)
	require.Equal(t, second, state.Key)

	// 旧请求的响应晚到
	s.respond(first, "page-1")
	time.Sleep(30 * time.Millisecond)

	state = f.State()
	assert.Equal(t, StatusSuccess, state.Status)
	assert.Equal(t, second, state.Key)
	assert.Equal(t, []string{"page-2"}, state.Page.Items)
	assert.NotContains(t, states, StatusError, "cancellation is never surfaced as an error")
}

func TestListFetcher_CommitRejectsStaleRequest(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	f := newTestFetcher(c, s, nil)
	defer f.Close()

	first := NewQueryKey("products", 0, 10, nil)
	second := NewQueryKey("products", 10, 10, nil)
	f.Load(first)
	f.mu.Lock()
	stale := f.current
	f.mu.Unlock()
	f.Load(second)

	f.commit(stale, Page[string]{Items: []string{"stale"}, Total: 1}, nil)
	state := f.State()
	assert.Equal(t, StatusLoading, state.Status)
	assert.Equal(t, second, state.Key)

	s.respond(second, "fresh")
	assert.Equal(t, []string{"fresh"}, waitState(t, f).Page.Items)
}

func TestListFetcher_LoadIfRequiresExpectedKey(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	f := newTestFetcher(c, s, nil)
	defer f.Close()

	first := NewQueryKey("products", 0, 10, nil)
	second := NewQueryKey("products", 10, 10, nil)
	third := NewQueryKey("products", 20, 10, nil)

	assert.False(t, f.loadIf(first, third), "nothing loaded yet")
	f.Load(first)
	f.Load(second)

	assert.False(t, f.loadIf(first, third))
	key, ok := f.Key()
	require.True(t, ok)
	assert.Equal(t, second, key)

	assert.True(t, f.loadIf(second, third))
	key, _ = f.Key()
	assert.Equal(t, third, key)
}

func TestListFetcher_RefetchUsesLatestKey(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	f := newTestFetcher(c, s, nil)
	defer f.Close()

	first := NewQueryKey("products", 0, 10, nil)
	second := NewQueryKey("products", 10, 10, nil)
	s.respond(first, "a")
	f.Load(first)
	waitState(t, f)

	// 失效通知与翻页交错：重新加载只能针对翻页后的键
	f.Load(second)
	require.NoError(t, c.InvalidateNamespace(context.Background(), "products"))
	s.respond(second, "b")
	s.respond(second, "b")
	state := waitState(t, f)

	assert.Equal(t, second, state.Key)
	assert.Equal(t, []string{"b"}, state.Page.Items)
	assert.Equal(t, 1, s.callCount(first))
}

func TestListFetcher_Error(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	f := newTestFetcher(c, s, nil)
	defer f.Close()

	key := NewQueryKey("products", 0, 10, nil)
	s.fail(key, errors.FromStatus(500, "Internal Server Error"))
	f.Load(key)
	state := waitState(t, f)

	assert.Equal(t, StatusError, state.Status)
	require.Error(t, state.Err)
	assert.True(t, errors.IsErrorCode(state.Err, errors.ErrCodeServiceUnavailable))
	assert.Empty(t, state.Page.Items, "error state does not show stale data")
}

func TestListFetcher_RefetchOnInvalidation(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	f := newTestFetcher(c, s, nil)
	defer f.Close()

	key := NewQueryKey("products", 0, 10, nil)
	s.respond(key, "v1")
	f.Load(key)
	assert.Equal(t, []string{"v1"}, waitState(t, f).Page.Items)

	s.respond(key, "v1", "v2")
	require.NoError(t, c.InvalidateNamespace(context.Background(), "products"))
	state := waitState(t, f)
	assert.Equal(t, []string{"v1", "v2"}, state.Page.Items)
	assert.Equal(t, 2, s.callCount(key))

	// 其它命名空间的失效不触发重新加载
	require.NoError(t, c.InvalidateNamespace(context.Background(), "categories"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, s.callCount(key))
}

func TestListFetcher_CachedKeyDoesNotRefetch(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	f := newTestFetcher(c, s, nil)
	defer f.Close()

	a := NewQueryKey("products", 0, 10, nil)
	b := NewQueryKey("products", 10, 10, nil)
	s.respond(a, "a")
	s.respond(b, "b")

	f.Load(a)
	waitState(t, f)
	f.Load(b)
	waitState(t, f)
	f.Load(a)
	state := waitState(t, f)

	assert.Equal(t, []string{"a"}, state.Page.Items)
	assert.Equal(t, 1, s.callCount(a))
}

func TestListFetcher_Close(t *testing.T) {
	c := newTestClient()
	s := newStubLoader()
	var states []Status
	f := newTestFetcher(c, s, &states)

	key := NewQueryKey("products", 0, 10, nil)
	f.Load(key)
	f.Close()
	f.Close()

	state := waitState(t, f)
	assert.Equal(t, StatusLoading, state.Status)

	f.Load(key)
	require.NoError(t, c.InvalidateNamespace(context.Background(), "products"))
	assert.Equal(t, []Status{StatusLoading}, states)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "idle", StatusIdle.String())
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "error", StatusError.String())
}
