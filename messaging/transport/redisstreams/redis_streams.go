// Package redisstreams 基于 Redis Streams 的广播传输
//
// 每个进程从订阅时刻的流尾部开始 XREAD，不使用消费组，因此每条消息会被所有
// 在线进程收到。流长度按 MaxLen 近似裁剪。
package redisstreams

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"invdash/logging"
	"invdash/messaging"
)

// client 用到的 go-redis 命令子集，便于测试替换
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
	XRevRangeN(ctx context.Context, stream, start, stop string, count int64) *redis.XMessageSliceCmd
	Close() error
}

// Config 传输配置
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	MaxLen       int64
	BlockTimeout time.Duration
	ReadCount    int64
	Logger       logging.Logger

	MinReadBackoff time.Duration // 读取出错后的最小退避，默认 100ms
	MaxReadBackoff time.Duration // 最大退避，默认 5s
}

// Transport 实现 messaging.Transport
type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	handlers map[string][]messaging.IMessageHandler
	readers  map[string]bool

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	published atomic.Int64
	delivered atomic.Int64
}

// NewTransport 创建传输；未注入 Client 时按地址建立连接
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "invdash:bus:"
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 1000
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 10
	}
	if cfg.MinReadBackoff <= 0 {
		cfg.MinReadBackoff = 100 * time.Millisecond
	}
	if cfg.MaxReadBackoff <= 0 {
		cfg.MaxReadBackoff = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.redisstreams")
	}

	var cl client
	own := false
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis address not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	return newTransport(cl, cfg, own), nil
}

func newTransport(cl client, cfg Config, own bool) *Transport {
	return &Transport{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    cfg.Logger,
		handlers:  make(map[string][]messaging.IMessageHandler),
		readers:   make(map[string]bool),
	}
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	data, err := messaging.Marshal(message)
	if err != nil {
		return err
	}
	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.streamName(message.GetType()),
		MaxLen: t.cfg.MaxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Err()
	if err != nil {
		return err
	}
	t.published.Add(1)
	return nil
}

// PublishAll 逐条追加，Redis Streams 没有批量 XADD
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe 登记处理器；流按消息类型划分，不支持通配
func (t *Transport) Subscribe(messageType string, handler messaging.IMessageHandler) error {
	if messageType == "*" {
		return errors.New("redis streams transport does not support wildcard subscriptions")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[messageType] = append(t.handlers[messageType], handler)
	if t.running {
		t.startReaderLocked(messageType)
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
	return nil
}

// Start 为已登记的类型启动读取协程
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("redis streams transport already running")
	}
	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for mt := range t.handlers {
		t.startReaderLocked(mt)
	}
	t.running = true
	return nil
}

// Close 停止读取；只关闭自己创建的客户端
func (t *Transport) Close() error {
	t.mu.Lock()
	running := t.running
	t.running = false
	cancel := t.cancel
	t.mu.Unlock()

	if running && cancel != nil {
		cancel()
		t.wg.Wait()
	}
	if t.ownClient {
		return t.client.Close()
	}
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

func (t *Transport) startReaderLocked(messageType string) {
	if t.readers[messageType] {
		return
	}
	t.readers[messageType] = true
	t.wg.Add(1)
	go t.readLoop(t.ctx, messageType)
}

// readLoop 先取流尾部 ID，之后沿用最后读到的 ID
func (t *Transport) readLoop(ctx context.Context, messageType string) {
	defer t.wg.Done()
	stream := t.streamName(messageType)
	lastID := ""
	backoff := t.cfg.MinReadBackoff
	for ctx.Err() == nil {
		var err error
		if lastID == "" {
			lastID, err = t.tailID(ctx, stream)
		} else {
			lastID, err = t.readOnce(ctx, messageType, stream, lastID)
		}
		if err == nil {
			backoff = t.cfg.MinReadBackoff
			continue
		}
		if ctx.Err() != nil {
			return
		}
		t.logger.Warn(ctx, "read stream failed",
			logging.String("stream", stream), logging.Duration("backoff", backoff), logging.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, t.cfg.MaxReadBackoff)
	}
}

// tailID 流中最后一条的 ID，空流为 "0-0"
func (t *Transport) tailID(ctx context.Context, stream string) (string, error) {
	msgs, err := t.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func (t *Transport) readOnce(ctx context.Context, messageType, stream, lastID string) (string, error) {
	res, err := t.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   t.cfg.ReadCount,
		Block:   t.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return lastID, nil
	}
	if err != nil {
		return lastID, err
	}
	for _, sr := range res {
		for _, entry := range sr.Messages {
			lastID = entry.ID
			msg, err := decodeEntry(entry)
			if err != nil {
				t.logger.Warn(ctx, "decode stream entry failed",
					logging.String("stream", stream), logging.String("entry", entry.ID), logging.Error(err))
				continue
			}
			t.dispatch(ctx, messageType, msg)
		}
	}
	return lastID, nil
}

func (t *Transport) dispatch(ctx context.Context, messageType string, message messaging.IMessage) {
	t.mu.RLock()
	handlers := append([]messaging.IMessageHandler(nil), t.handlers[messageType]...)
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

func (t *Transport) streamName(messageType string) string {
	return t.cfg.StreamPrefix + messageType
}

func decodeEntry(entry redis.XMessage) (*messaging.Message, error) {
	data, ok := entry.Values["data"].(string)
	if !ok {
		return nil, errors.New("stream entry without data field")
	}
	return messaging.Unmarshal([]byte(data))
}
