package query

import (
	"context"

	"github.com/google/uuid"

	"invdash/errors"
	"invdash/logging"
	"invdash/messaging"
)

// InvalidationMessageType 命名空间失效消息类型
const InvalidationMessageType = "query.invalidated"

type invalidation struct {
	Namespace string `json:"namespace"`
}

// Broadcaster 在进程间同步命名空间失效
//
// 本进程的失效发布到传输层；收到其它进程的失效后只清理本地缓存。
// 通过发送方标识忽略自己发出的消息。
type Broadcaster struct {
	client    *Client
	transport messaging.Transport
	origin    string
	handler   messaging.IMessageHandler
	logger    logging.Logger
}

// NewBroadcaster 订阅失效消息并注册为 client 的发布者
func NewBroadcaster(client *Client, transport messaging.Transport) (*Broadcaster, error) {
	b := &Broadcaster{
		client:    client,
		transport: transport,
		origin:    uuid.NewString(),
		logger:    logging.ComponentLogger("query.broadcast"),
	}
	b.handler = messaging.NewHandler("query-invalidation", b.handle)
	if err := transport.Subscribe(InvalidationMessageType, b.handler); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeQueue, "subscribe invalidations")
	}
	client.SetPublisher(b)
	return b, nil
}

// Origin 本进程标识
func (b *Broadcaster) Origin() string { return b.origin }

// PublishInvalidation 实现 InvalidationPublisher
func (b *Broadcaster) PublishInvalidation(ctx context.Context, namespace string) error {
	msg := messaging.NewMessage(InvalidationMessageType, invalidation{Namespace: namespace})
	msg.SetMetadata(messaging.MetadataSource, b.origin)
	return b.transport.Publish(ctx, msg)
}

func (b *Broadcaster) handle(ctx context.Context, msg messaging.IMessage) error {
	if messaging.Source(msg) == b.origin {
		return nil
	}
	ns := namespaceOf(msg.GetPayload())
	if ns == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "invalidation without namespace")
	}
	b.logger.Debug(ctx, "remote invalidation",
		logging.String("namespace", ns),
		logging.String("source", messaging.Source(msg)))
	b.client.ApplyRemoteInvalidation(ns)
	return nil
}

// namespaceOf 同时支持本地对象与解码后的通用 JSON
func namespaceOf(payload any) string {
	switch p := payload.(type) {
	case invalidation:
		return p.Namespace
	case *invalidation:
		return p.Namespace
	case map[string]any:
		s, _ := p["namespace"].(string)
		return s
	default:
		return ""
	}
}

// Close 退订并解除发布者
func (b *Broadcaster) Close() error {
	b.client.SetPublisher(nil)
	return b.transport.Unsubscribe(InvalidationMessageType, b.handler)
}
