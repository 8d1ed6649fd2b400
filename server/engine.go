// Package server 进程生命周期编排：配置、依赖、后台任务、主服务、优雅关闭
package server

import (
	"context"
	"os/signal"
	"sync/atomic"
	"syscall"

	"invdash/errors"
	"invdash/logging"
)

// IServer 由具体服务实现的生命周期步骤
type IServer interface {
	Name() string

	// LoadConfig 解析配置文件与环境变量
	LoadConfig() error

	// SetupDependencies 打开数据库、准备种子数据、注册路由
	SetupDependencies(ctx context.Context) error

	// StartBackgroundTasks 非阻塞的后台任务
	StartBackgroundTasks(ctx context.Context) error

	// Run 阻塞运行主服务；正常停止返回 nil
	Run(ctx context.Context) error

	// Shutdown 释放资源
	Shutdown(ctx context.Context) error
}

// Engine 按 LoadConfig -> Setup -> Background -> Run -> 等待 -> Shutdown 的顺序驱动 IServer
type Engine struct {
	server  IServer
	options *Options
	state   atomic.Int32
	logger  logging.Logger
}

func NewEngine(server IServer, opts ...Option) *Engine {
	options := DefaultOptions()
	if name := server.Name(); name != "" {
		options.Name = name
	}
	for _, o := range opts {
		o(options)
	}
	return &Engine{
		server:  server,
		options: options,
		logger:  logging.ComponentLogger("server").WithFields(logging.String("app", options.Name)),
	}
}

// State 当前状态，可并发读取
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

func (e *Engine) runHooks(ctx context.Context, hooks []Hook, phase string, fatal bool) error {
	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			if fatal {
				return errors.WrapError(err, errors.ErrCodeInternal, phase+" hook failed")
			}
			e.logger.Warn(ctx, "hook failed", logging.String("phase", phase), logging.Error(err))
		}
	}
	return nil
}

// Start 运行到 parent 取消、收到信号或 Run 返回为止
func (e *Engine) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if e.options.HandleSignals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	e.logger.Info(ctx, "starting", logging.String("version", e.options.Version))

	e.setState(StateInitializing)
	if err := e.server.LoadConfig(); err != nil {
		e.setState(StateError)
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "failed to load config")
	}

	setupCtx, setupCancel := context.WithTimeout(ctx, e.options.StartupTimeout)
	defer setupCancel()
	if err := e.server.SetupDependencies(setupCtx); err != nil {
		e.setState(StateError)
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable, "failed to setup dependencies")
	}
	e.setState(StatePrepared)

	if err := e.runHooks(ctx, e.options.OnBeforeStart, "before_start", true); err != nil {
		e.setState(StateError)
		return err
	}
	if err := e.server.StartBackgroundTasks(ctx); err != nil {
		e.setState(StateError)
		return errors.WrapError(err, errors.ErrCodeInternal, "failed to start background tasks")
	}

	e.setState(StateRunning)
	errCh := make(chan error, 1)
	go func() { errCh <- e.server.Run(ctx) }()
	_ = e.runHooks(ctx, e.options.OnAfterStart, "after_start", false)

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			e.logger.Error(ctx, "server stopped with error", logging.Error(runErr))
		}
	case <-ctx.Done():
		e.logger.Info(context.Background(), "shutdown requested")
	}
	cancel()

	e.setState(StateStopping)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), e.options.ShutdownTimeout)
	defer shutdownCancel()

	_ = e.runHooks(shutdownCtx, e.options.OnBeforeStop, "before_stop", false)
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.setState(StateError)
		e.logger.Error(shutdownCtx, "shutdown failed", logging.Error(err))
		return err
	}
	_ = e.runHooks(shutdownCtx, e.options.OnAfterStop, "after_stop", false)

	if runErr != nil {
		e.setState(StateError)
		return runErr
	}
	e.setState(StateStopped)
	e.logger.Info(shutdownCtx, "shutdown complete")
	return nil
}
