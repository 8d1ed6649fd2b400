// Package local 进程内的同步广播传输
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"invdash/messaging"
)

// Config 传输配置
type Config struct {
	// Encode 投递前经过线上编码再解码，处理器看到的载荷与跨进程传输时一致
	Encode bool
}

// Transport 在 Publish 的调用方 goroutine 中依次调用匹配的处理器（含 "*" 通配）
//
// 单进程内的多个查询客户端共用一个实例即可互相失效。
type Transport struct {
	cfg Config

	mu       sync.RWMutex
	handlers map[string][]messaging.IMessageHandler
	running  bool

	published atomic.Int64
	delivered atomic.Int64
}

func NewTransport(cfg Config) *Transport {
	return &Transport{cfg: cfg, handlers: make(map[string][]messaging.IMessageHandler)}
}

// Publish 同步投递；处理器的错误合并后返回
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.RLock()
	if !t.running {
		t.mu.RUnlock()
		return errors.New("local transport is not running")
	}
	handlers := append([]messaging.IMessageHandler(nil), t.handlers[message.GetType()]...)
	handlers = append(handlers, t.handlers["*"]...)
	t.mu.RUnlock()

	if t.cfg.Encode {
		data, err := messaging.Marshal(message)
		if err != nil {
			return fmt.Errorf("encode message %s: %w", message.GetID(), err)
		}
		if message, err = messaging.Unmarshal(data); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
	}

	t.published.Add(1)
	var errs []error
	for _, h := range handlers {
		t.delivered.Add(1)
		if err := h.Handle(ctx, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Type(), err))
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, message := range messages {
		if err := t.Publish(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	return nil
}

// Unsubscribe 未登记的处理器返回错误
func (t *Transport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	handlers := t.handlers[messageType]
	for i, h := range handlers {
		if h == handler {
			t.handlers[messageType] = append(handlers[:i:i], handlers[i+1:]...)
			if len(t.handlers[messageType]) == 0 {
				delete(t.handlers, messageType)
			}
			return nil
		}
	}
	return fmt.Errorf("handler %s not subscribed to %s", handler.Type(), messageType)
}

func (t *Transport) Start(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("local transport is already running")
	}
	t.running = true
	return nil
}

// Close 可重复调用
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	types := make([]string, 0, len(t.handlers))
	for mt, hs := range t.handlers {
		types = append(types, mt)
		count += len(hs)
	}
	return messaging.TransportStats{
		Running:      t.running,
		HandlerCount: count,
		MessageTypes: types,
		Published:    t.published.Load(),
		Delivered:    t.delivered.Load(),
	}
}
