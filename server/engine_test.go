package server

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer 记录生命周期调用顺序
type fakeServer struct {
	mu    sync.Mutex
	steps []string

	loadConfigErr error
	setupErr      error
	runErr        error
	shutdownErr   error
	// blockRun 为 true 时 Run 阻塞到 ctx 取消
	blockRun bool
	bgDone   chan struct{}
}

func (s *fakeServer) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *fakeServer) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func (s *fakeServer) Name() string { return "fake" }

func (s *fakeServer) LoadConfig() error {
	s.record("LoadConfig")
	return s.loadConfigErr
}

func (s *fakeServer) SetupDependencies(ctx context.Context) error {
	s.record("SetupDependencies")
	return s.setupErr
}

func (s *fakeServer) StartBackgroundTasks(ctx context.Context) error {
	s.record("StartBackgroundTasks")
	s.bgDone = make(chan struct{})
	go func() {
		<-ctx.Done()
		close(s.bgDone)
	}()
	return nil
}

func (s *fakeServer) Run(ctx context.Context) error {
	s.record("Run")
	if s.blockRun {
		<-ctx.Done()
		return nil
	}
	return s.runErr
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.record("Shutdown")
	return s.shutdownErr
}

func TestEngine_LifecycleOrder(t *testing.T) {
	srv := &fakeServer{}
	var hooks []string
	e := NewEngine(srv, WithoutSignals(),
		WithBeforeStart(func(context.Context) error { hooks = append(hooks, "before_start"); return nil }),
		WithAfterStop(func(context.Context) error { hooks = append(hooks, "after_stop"); return nil }),
	)
	assert.Equal(t, StatePending, e.State())

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}, srv.Steps())
	assert.Equal(t, []string{"before_start", "after_stop"}, hooks)
	assert.Equal(t, StateStopped, e.State())

	select {
	case <-srv.bgDone:
	case <-time.After(time.Second):
		t.Fatal("background task was not canceled")
	}
}

func TestEngine_CancelParent(t *testing.T) {
	srv := &fakeServer{blockRun: true}
	e := NewEngine(srv, WithoutSignals())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	require.Eventually(t, func() bool { return e.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	assert.Equal(t, StateStopped, e.State())
}

func TestEngine_Errors(t *testing.T) {
	boom := stdErrors.New("boom")
	tests := []struct {
		name  string
		srv   *fakeServer
		steps []string
	}{
		{"加载配置失败", &fakeServer{loadConfigErr: boom}, []string{"LoadConfig"}},
		{"依赖初始化失败", &fakeServer{setupErr: boom}, []string{"LoadConfig", "SetupDependencies"}},
		{"运行失败仍然关闭", &fakeServer{runErr: boom}, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}},
		{"关闭失败", &fakeServer{shutdownErr: boom}, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.srv, WithoutSignals())
			err := e.Start(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.steps, tt.srv.Steps())
			assert.Equal(t, StateError, e.State())
		})
	}
}

func TestEngine_BeforeStartHookFails(t *testing.T) {
	srv := &fakeServer{}
	e := NewEngine(srv, WithoutSignals(), WithBeforeStart(func(context.Context) error { return stdErrors.New("no") }))
	require.Error(t, e.Start(context.Background()))
	assert.NotContains(t, srv.Steps(), "Run")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Unknown", State(99).String())
}

func TestNewEngine_Name(t *testing.T) {
	e := NewEngine(&fakeServer{}, WithName("other"), WithVersion("1.0"))
	assert.Equal(t, "other", e.options.Name)
	assert.Equal(t, "1.0", e.options.Version)
}
