// Package notify 提供用户可见的通知（成功、错误、警告）
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"invdash/logging"
)

// Level 通知级别
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notification 一条通知
type Notification struct {
	Level   Level
	Message string
	Time    time.Time
}

// Notifier 通知接收方
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc 函数适配器
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

func send(ctx context.Context, n Notifier, level Level, msg string) {
	if n == nil {
		return
	}
	n.Notify(ctx, Notification{Level: level, Message: msg, Time: time.Now()})
}

func Success(ctx context.Context, n Notifier, msg string) { send(ctx, n, LevelSuccess, msg) }
func Error(ctx context.Context, n Notifier, msg string)   { send(ctx, n, LevelError, msg) }
func Warning(ctx context.Context, n Notifier, msg string) { send(ctx, n, LevelWarning, msg) }
func Info(ctx context.Context, n Notifier, msg string)    { send(ctx, n, LevelInfo, msg) }

// Writer 将通知逐行写到终端
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter 创建终端通知
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

var symbols = map[Level]string{
	LevelInfo:    "i",
	LevelSuccess: "✔",
	LevelWarning: "!",
	LevelError:   "✘",
}

func (w *Writer) Notify(_ context.Context, n Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, "%s %s\n", symbols[n.Level], n.Message)
}

// Log 将通知写入日志
type Log struct {
	logger logging.Logger
}

// NewLog 创建日志通知
func NewLog(logger logging.Logger) *Log {
	if logger == nil {
		logger = logging.ComponentLogger("notify")
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, n Notification) {
	fields := []logging.Field{logging.String("level", n.Level.String())}
	switch n.Level {
	case LevelError:
		l.logger.Error(ctx, n.Message, fields...)
	case LevelWarning:
		l.logger.Warn(ctx, n.Message, fields...)
	default:
		l.logger.Info(ctx, n.Message, fields...)
	}
}

// Recorder 保存收到的通知，供测试与交互式会话回看
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All 返回副本
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last 最近一条
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Reset 清空
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}

// Multi 依次转发给多个接收方
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}
