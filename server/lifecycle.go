package server

import (
	"context"
	"time"
)

// State 生命周期状态
type State int32

const (
	StatePending State = iota
	StateInitializing
	// StatePrepared 依赖就绪，等待启动
	StatePrepared
	StateRunning
	// StateStopping 正在优雅关闭
	StateStopping
	StateStopped
	// StateError 不可恢复的错误
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateInitializing:
		return "Initializing"
	case StatePrepared:
		return "Prepared"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Hook 生命周期回调，ctx 用于超时控制
type Hook func(ctx context.Context) error

// Options 引擎选项
type Options struct {
	Name            string
	Version         string
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration

	// HandleSignals 为 true 时 SIGINT/SIGTERM 触发关闭
	HandleSignals bool

	OnBeforeStart []Hook
	OnAfterStart  []Hook
	OnBeforeStop  []Hook
	OnAfterStop   []Hook
}

type Option func(*Options)

func DefaultOptions() *Options {
	return &Options{
		Name:            "invdash",
		Version:         "dev",
		StartupTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		HandleSignals:   true,
	}
}

func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

func WithVersion(version string) Option {
	return func(o *Options) { o.Version = version }
}

func WithStartupTimeout(t time.Duration) Option {
	return func(o *Options) { o.StartupTimeout = t }
}

func WithShutdownTimeout(t time.Duration) Option {
	return func(o *Options) { o.ShutdownTimeout = t }
}

// WithoutSignals 关闭信号处理，只由 ctx 取消触发关闭
func WithoutSignals() Option {
	return func(o *Options) { o.HandleSignals = false }
}

func WithBeforeStart(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStart = append(o.OnBeforeStart, fn) }
}

func WithAfterStart(fn Hook) Option {
	return func(o *Options) { o.OnAfterStart = append(o.OnAfterStart, fn) }
}

func WithBeforeStop(fn Hook) Option {
	return func(o *Options) { o.OnBeforeStop = append(o.OnBeforeStop, fn) }
}

func WithAfterStop(fn Hook) Option {
	return func(o *Options) { o.OnAfterStop = append(o.OnAfterStop, fn) }
}
