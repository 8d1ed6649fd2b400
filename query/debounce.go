package query

import (
	"sync"
	"time"
)

// DefaultDebounce 文本过滤输入的默认防抖间隔
const DefaultDebounce = 500 * time.Millisecond

// Debouncer 合并一段静默期内的连续调用，只把最后一个值交给 fn
//
// 每次 Call 都重新计时；fn 在独立 goroutine 中执行。
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(T)
	timer   *time.Timer
	pending T
	armed   bool
	gen     uint64
}

// NewDebouncer 创建防抖器，delay<=0 时使用 DefaultDebounce
func NewDebouncer[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Call 记录最新值并重新计时
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = v
	d.armed = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// 计时器已被新的 Call 取代
	if gen != d.gen || !d.armed {
		d.mu.Unlock()
		return
	}
	v := d.pending
	d.armed = false
	d.mu.Unlock()

	d.fn(v)
}

// Flush 立即执行待处理的值，没有则返回 false
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.armed {
		d.mu.Unlock()
		return false
	}
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	v := d.pending
	d.armed = false
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Stop 丢弃待处理的值
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.armed = false
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Pending 是否有尚未执行的值
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
