package query

import (
	"context"
	"sync"

	"invdash/errors"
	"invdash/logging"
	"invdash/notify"
)

// MutationOptions 变更配置
type MutationOptions[In, Out any] struct {
	// Name 用于日志
	Name string
	// Invalidates 成功后失效的命名空间
	Invalidates []string
	// Validate 提交前的本地校验，失败时不发请求也不发通知
	Validate func(In) error
	// SuccessMessage 成功通知，为空则不发送
	SuccessMessage string
	// ErrorMessage 失败通知的前缀
	ErrorMessage string
	// OnSuccess 在失效与成功通知之后调用
	OnSuccess func(ctx context.Context, out Out)
	Notifier  notify.Notifier
	Logger    logging.Logger
}

// Mutation 一次写操作
//
// 成功后失效相关命名空间并发送成功通知；失败时发送错误通知，不自动重试。
type Mutation[In, Out any] struct {
	client *Client
	fn     func(ctx context.Context, in In) (Out, error)
	opts   MutationOptions[In, Out]
}

// NewMutation 创建变更
func NewMutation[In, Out any](client *Client, fn func(ctx context.Context, in In) (Out, error), opts MutationOptions[In, Out]) *Mutation[In, Out] {
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("query.mutation")
	}
	return &Mutation[In, Out]{client: client, fn: fn, opts: opts}
}

// Run 执行变更
func (m *Mutation[In, Out]) Run(ctx context.Context, in In) (Out, error) {
	var zero Out
	if m.opts.Validate != nil {
		if err := m.opts.Validate(in); err != nil {
			return zero, err
		}
	}

	out, err := m.fn(ctx, in)
	if err != nil {
		err = errors.Normalize(err)
		if errors.IsCanceled(err) {
			return zero, err
		}
		m.opts.Logger.Warn(ctx, "mutation failed",
			logging.String("mutation", m.opts.Name), logging.Error(err))
		notify.Error(ctx, m.opts.Notifier, failureMessage(m.opts.ErrorMessage, err))
		return zero, err
	}

	for _, ns := range m.opts.Invalidates {
		// 失效的远端部分失败不影响变更结果
		_ = m.client.InvalidateNamespace(ctx, ns)
	}
	m.opts.Logger.Info(ctx, "mutation succeeded", logging.String("mutation", m.opts.Name))
	if m.opts.SuccessMessage != "" {
		notify.Success(ctx, m.opts.Notifier, m.opts.SuccessMessage)
	}
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(ctx, out)
	}
	return out, nil
}

func failureMessage(prefix string, err error) string {
	detail := err.Error()
	if appErr, ok := err.(errors.IError); ok {
		detail = appErr.Message()
	}
	switch {
	case prefix == "":
		return detail
	case detail == "":
		return prefix
	default:
		return prefix + ": " + detail
	}
}

// Dialog 表单会话：提交成功后关闭并清空输入，失败时保持打开且保留输入
type Dialog[In, Out any] struct {
	mutation *Mutation[In, Out]
	blank    In

	mu      sync.Mutex
	open    bool
	input   In
	lastErr error
}

// NewDialog 创建表单会话，blank 为打开时的初始输入
func NewDialog[In, Out any](m *Mutation[In, Out], blank In) *Dialog[In, Out] {
	return &Dialog[In, Out]{mutation: m, blank: blank}
}

// Open 打开表单；已打开时保留当前输入
func (d *Dialog[In, Out]) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return
	}
	d.open = true
	d.input = d.blank
	d.lastErr = nil
}

// Edit 修改输入
func (d *Dialog[In, Out]) Edit(fn func(*In)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.input)
}

// Input 当前输入
func (d *Dialog[In, Out]) Input() In {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

func (d *Dialog[In, Out]) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Err 最近一次提交的错误
func (d *Dialog[In, Out]) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Submit 提交当前输入
func (d *Dialog[In, Out]) Submit(ctx context.Context) (Out, error) {
	in := d.Input()
	out, err := d.mutation.Run(ctx, in)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErr = err
	if err == nil {
		d.open = false
		d.input = d.blank
	}
	return out, err
}

// Cancel 关闭并丢弃输入
func (d *Dialog[In, Out]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.input = d.blank
	d.lastErr = nil
}
