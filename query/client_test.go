package query

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invdash/errors"
	"invdash/logging"
)

func newTestClient(opts ...func(*Options)) *Client {
	o := Options{Logger: logging.NewNoopLogger()}
	for _, fn := range opts {
		fn(&o)
	}
	return NewClient(o)
}

type fakeStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	deleted   []string
	deleteErr error
}

func newFakeStore() *fakeStore { return &fakeStore{data: make(map[string][]byte)} }

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeStore) DeleteNamespace(_ context.Context, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, namespace)
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	n := 0
	for k := range s.data {
		if strings.HasPrefix(k, namespace+"?") {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	namespaces []string
}

func (p *recordingPublisher) PublishInvalidation(_ context.Context, ns string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.namespaces = append(p.namespaces, ns)
	return nil
}

func constant[T any](v T, calls *atomic.Int32) FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		calls.Add(1)
		return v, nil
	}
}

func TestFetch_CachesFreshResult(t *testing.T) {
	c := newTestClient()
	key := NewQueryKey("categories", 0, 10, nil)
	var calls atomic.Int32

	for i := 0; i < 3; i++ {
		v, err := Fetch(context.Background(), c, key, constant(42, &calls))
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_StaleEntryRefetched(t *testing.T) {
	c := newTestClient(func(o *Options) { o.StaleTime = time.Minute })
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	key := NewQueryKey("categories", 0, 10, nil)
	var calls atomic.Int32

	_, err := Fetch(context.Background(), c, key, constant(1, &calls))
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, _ = Fetch(context.Background(), c, key, constant(1, &calls))
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(time.Second)
	_, _ = Fetch(context.Background(), c, key, constant(1, &calls))
	assert.Equal(t, int32(2), calls.Load())

	v, ok := Peek[int](c, key)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestFetch_ZeroStaleTimeNeverStale(t *testing.T) {
	c := newTestClient(func(o *Options) { o.StaleTime = 0 })
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	key := NewQueryKey("categories", 0, 10, nil)
	var calls atomic.Int32

	_, err := Fetch(context.Background(), c, key, constant(1, &calls))
	require.NoError(t, err)
	now = now.Add(24 * time.Hour)
	_, err = Fetch(context.Background(), c, key, constant(1, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// 失效仍然会触发重新加载
	require.NoError(t, c.InvalidateNamespace(context.Background(), "categories"))
	_, err = Fetch(context.Background(), c, key, constant(1, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewClient_NegativeStaleTimeUsesDefault(t *testing.T) {
	c := newTestClient(func(o *Options) { o.StaleTime = -time.Second })
	assert.Equal(t, DefaultStaleTime, c.staleTime)
}

func TestFetch_CoalescesConcurrentCalls(t *testing.T) {
	c := newTestClient()
	key := NewQueryKey("products", 0, 10, nil)
	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "page", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, key, fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "page", r)
	}
}

func TestFetch_ErrorsAreNotCached(t *testing.T) {
	c := newTestClient()
	key := NewQueryKey("products", 0, 10, nil)
	fail := true
	fn := func(ctx context.Context) (int, error) {
		if fail {
			return 0, errors.FromStatus(503, "backend down")
		}
		return 5, nil
	}

	_, err := Fetch(context.Background(), c, key, fn)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeServiceUnavailable))

	fail = false
	v, err := Fetch(context.Background(), c, key, fn)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestFetch_NormalizesPlainErrors(t *testing.T) {
	c := newTestClient()
	_, err := Fetch(context.Background(), c, NewQueryKey("x", 0, 10, nil), func(ctx context.Context) (int, error) {
		return 0, stderrors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.GetErrorCode(err))
}

func TestFetch_CallerCancellation(t *testing.T) {
	c := newTestClient()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	_, err := Fetch(ctx, c, NewQueryKey("products", 0, 10, nil), func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))
	assert.Empty(t, c.Cached())
}

func TestFetch_WaiterRetriesWhenLeaderCanceled(t *testing.T) {
	c := newTestClient()
	key := NewQueryKey("products", 0, 10, nil)
	var calls atomic.Int32
	fn := func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return 9, nil
	}

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := Fetch(leaderCtx, c, key, fn)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	followerVal := make(chan int, 1)
	go func() {
		v, err := Fetch(context.Background(), c, key, fn)
		assert.NoError(t, err)
		followerVal <- v
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()

	assert.True(t, errors.IsCanceled(<-leaderErr))
	assert.Equal(t, 9, <-followerVal)
}

func TestInvalidateNamespace_DropsOnlyThatNamespace(t *testing.T) {
	c := newTestClient()
	var calls atomic.Int32
	cat0 := NewQueryKey("categories", 0, 10, nil)
	cat1 := NewQueryKey("categories", 10, 10, nil)
	prod := NewQueryKey("products", 0, 10, nil)
	for _, k := range []QueryKey{cat0, cat1, prod} {
		_, err := Fetch(context.Background(), c, k, constant(1, &calls))
		require.NoError(t, err)
	}

	require.NoError(t, c.InvalidateNamespace(context.Background(), "categories"))
	assert.Equal(t, []QueryKey{prod}, c.Cached())
	assert.Equal(t, int64(2), c.Stats().Invalidations)

	_, _ = Fetch(context.Background(), c, cat0, constant(1, &calls))
	assert.Equal(t, int32(4), calls.Load())
}

func TestInvalidateNamespace_InFlightResultNotCached(t *testing.T) {
	c := newTestClient()
	key := NewQueryKey("products", 0, 10, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan int, 1)
	go func() {
		v, err := Fetch(context.Background(), c, key, func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		assert.NoError(t, err)
		done <- v
	}()

	<-started
	require.NoError(t, c.InvalidateNamespace(context.Background(), "products"))
	close(release)

	assert.Equal(t, 1, <-done)
	_, ok := Peek[int](c, key)
	assert.False(t, ok, "result fetched before invalidation must not be cached")
}

func TestInvalidateNamespace_JoinsNoPreInvalidationFlight(t *testing.T) {
	c := newTestClient()
	key := NewQueryKey("products", 0, 10, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = Fetch(context.Background(), c, key, func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
	}()
	<-started
	require.NoError(t, c.InvalidateNamespace(context.Background(), "products"))

	v, err := Fetch(context.Background(), c, key, func(ctx context.Context) (string, error) {
		return "new", nil
	})
	close(release)
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestSubscribe(t *testing.T) {
	c := newTestClient()
	var n atomic.Int32
	unsubscribe := c.Subscribe("products", func() { n.Add(1) })
	c.Subscribe("categories", func() { t.Error("unexpected notification") })

	require.NoError(t, c.InvalidateNamespace(context.Background(), "products"))
	c.ApplyRemoteInvalidation("products")
	assert.Equal(t, int32(2), n.Load())

	unsubscribe()
	unsubscribe()
	require.NoError(t, c.InvalidateNamespace(context.Background(), "products"))
	assert.Equal(t, int32(2), n.Load())
}

func TestSharedStore(t *testing.T) {
	store := newFakeStore()
	a := newTestClient(func(o *Options) { o.Store = store })
	b := newTestClient(func(o *Options) { o.Store = store })
	key := NewQueryKey("products", 0, 10, nil)

	var calls atomic.Int32
	page := Page[string]{Items: []string{"a", "b"}, Total: 2}
	_, err := Fetch(context.Background(), a, key, constant(page, &calls))
	require.NoError(t, err)
	assert.Contains(t, store.data, key.String())

	got, err := Fetch(context.Background(), b, key, constant(Page[string]{}, &calls))
	require.NoError(t, err)
	assert.Equal(t, page, got)
	assert.Equal(t, int32(1), calls.Load(), "second client served from shared store")

	require.NoError(t, a.InvalidateNamespace(context.Background(), "products"))
	assert.Empty(t, store.data)
	assert.Equal(t, []string{"products"}, store.deleted)
}

func TestInvalidateNamespace_RemoteFailuresReported(t *testing.T) {
	store := newFakeStore()
	store.deleteErr = stderrors.New("redis down")
	c := newTestClient(func(o *Options) { o.Store = store })
	pub := &recordingPublisher{}
	c.SetPublisher(pub)

	var calls atomic.Int32
	key := NewQueryKey("products", 0, 10, nil)
	_, _ = Fetch(context.Background(), c, key, constant(1, &calls))

	err := c.InvalidateNamespace(context.Background(), "products")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeCache))
	assert.Empty(t, c.Cached(), "local cache is always cleared")
	assert.Equal(t, []string{"products"}, pub.namespaces)
}
