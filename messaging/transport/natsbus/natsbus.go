// Package natsbus 基于 NATS core pub/sub 的广播传输
//
// 与 JetStream 工作队列不同，每个订阅进程都会收到每条消息，适合缓存失效这类
// 只关心在线进程、无需持久化的通知。
package natsbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"invdash/logging"
	"invdash/messaging"
	"invdash/patterns/retry"
)

// subscription 便于测试替换 *nats.Subscription
type subscription interface {
	Unsubscribe() error
}

// conn 只包含用到的连接能力
type conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (subscription, error)
	FlushTimeout(timeout time.Duration) error
	Close()
}

type natsConn struct{ *nats.Conn }

func (c natsConn) Subscribe(subject string, handler nats.MsgHandler) (subscription, error) {
	return c.Conn.Subscribe(subject, handler)
}

// Config 传输配置
type Config struct {
	URL           string
	Name          string
	SubjectPrefix string
	FlushTimeout  time.Duration
	Retry         retry.Config
	Logger        logging.Logger
	Conn          *nats.Conn
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     conn
	ownsConn bool
	dial     func(ctx context.Context) (conn, error)

	handlers map[string][]messaging.IMessageHandler
	subs     map[string]subscription

	mu      sync.RWMutex
	running bool

	published atomic.Int64
	delivered atomic.Int64
}

// NewTransport 创建传输
func NewTransport(cfg Config) *Transport {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "invdash"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "invdash."
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 2 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}
	t := &Transport{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string][]messaging.IMessageHandler),
		subs:     make(map[string]subscription),
	}
	t.dial = t.connect
	return t
}

func (t *Transport) connect(ctx context.Context) (conn, error) {
	if t.cfg.Conn != nil {
		return natsConn{t.cfg.Conn}, nil
	}
	var nc *nats.Conn
	err := retry.Do(ctx, func(ctx context.Context, attempt int) error {
		c, err := nats.Connect(t.cfg.URL,
			nats.Name(t.cfg.Name),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					t.logger.Warn(context.Background(), "nats disconnected", logging.Error(err))
				}
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				t.logger.Info(context.Background(), "nats reconnected", logging.String("url", c.ConnectedUrl()))
			}))
		if err != nil {
			t.logger.Warn(ctx, "nats connect failed",
				logging.String("url", t.cfg.URL), logging.Int("attempt", attempt), logging.Error(err))
			return err
		}
		nc = c
		return nil
	}, t.cfg.Retry)
	if err != nil {
		return nil, err
	}
	t.ownsConn = true
	return natsConn{nc}, nil
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.RLock()
	c := t.conn
	running := t.running
	t.mu.RUnlock()
	if !running || c == nil {
		return errors.New("nats transport not running")
	}
	data, err := messaging.Marshal(message)
	if err != nil {
		return err
	}
	if err := c.Publish(t.subjectName(message.GetType()), data); err != nil {
		return err
	}
	t.published.Add(1)
	return nil
}

// PublishAll 逐条发布后 flush 一次
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	t.mu.RLock()
	c := t.conn
	t.mu.RUnlock()
	if c == nil {
		return nil
	}
	return c.FlushTimeout(t.cfg.FlushTimeout)
}

func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		return t.subscribeLocked(messageType)
	}
	return nil
}

func (t *Transport) Unsubscribe(messageType string, handler messaging.IMessageHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	handlers := t.handlers[messageType]
	for i, h := range handlers {
		if h == handler {
			t.handlers[messageType] = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if len(t.handlers[messageType]) == 0 {
		delete(t.handlers, messageType)
		if sub, ok := t.subs[messageType]; ok {
			_ = sub.Unsubscribe()
			delete(t.subs, messageType)
		}
	}
	return nil
}

// Start 建立连接（带重试）并为已登记的类型订阅
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats transport already running")
	}
	if t.conn == nil {
		c, err := t.dial(ctx)
		if err != nil {
			return err
		}
		t.conn = c
	}
	for mt := range t.handlers {
		if err := t.subscribeLocked(mt); err != nil {
			return err
		}
	}
	t.running = true
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	for mt, sub := range t.subs {
		_ = sub.Unsubscribe()
		delete(t.subs, mt)
	}
	if t.ownsConn && t.conn != nil {
		t.conn.Close()
	}
	t.conn = nil
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handlerCount := 0
	types := make([]string, 0, len(t.handlers))
	for mt, hs := range t.handlers {
		handlerCount += len(hs)
		types = append(types, mt)
	}
	return messaging.TransportStats{
		Running:      t.running,
		HandlerCount: handlerCount,
		MessageTypes: types,
		Published:    t.published.Load(),
		Delivered:    t.delivered.Load(),
	}
}

func (t *Transport) subscribeLocked(messageType string) error {
	if _, exists := t.subs[messageType]; exists {
		return nil
	}
	subject := t.cfg.SubjectPrefix + ">"
	if messageType != "*" {
		subject = t.subjectName(messageType)
	}
	sub, err := t.conn.Subscribe(subject, t.handleMessage(messageType))
	if err != nil {
		return err
	}
	t.subs[messageType] = sub
	return nil
}

func (t *Transport) handleMessage(subscribedType string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		decoded, err := messaging.Unmarshal(msg.Data)
		if err != nil {
			t.logger.Warn(context.Background(), "decode nats message failed",
				logging.String("subject", msg.Subject), logging.Error(err))
			return
		}
		if decoded.Type == "" && subscribedType != "*" {
			decoded.Type = subscribedType
		}
		t.dispatch(context.Background(), subscribedType, decoded)
	}
}

func (t *Transport) dispatch(ctx context.Context, subscribedType string, message messaging.IMessage) {
	t.mu.RLock()
	handlers := append([]messaging.IMessageHandler(nil), t.handlers[subscribedType]...)
	t.mu.RUnlock()

	for _, h := range handlers {
		t.delivered.Add(1)
		if err := h.Handle(ctx, message); err != nil {
			t.logger.Warn(ctx, "message handler failed",
				logging.String("handler", h.Type()),
				logging.String("type", message.GetType()),
				logging.Error(err))
		}
	}
}

func (t *Transport) subjectName(messageType string) string {
	return t.cfg.SubjectPrefix + messageType
}
