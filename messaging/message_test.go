package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	msg := &Message{
		ID:        "msg-1",
		Type:      "query.invalidated",
		Timestamp: ts,
		Payload:   map[string]any{"namespace": "products"},
		Metadata:  map[string]any{MetadataSource: "proc-a"},
	}
	data, err := Marshal(msg)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, msg.ID, decoded.GetID())
	assert.Equal(t, msg.Type, decoded.GetType())
	assert.Equal(t, ts.UnixNano(), decoded.GetTimestamp().UnixNano())
	payload := decoded.GetPayload().(map[string]any)
	assert.Equal(t, "products", payload["namespace"])
	assert.Equal(t, "proc-a", Source(decoded))
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte("{"))
	assert.Error(t, err)
}

func TestNewMessage(t *testing.T) {
	a := NewMessage("t", 1)
	b := NewMessage("t", 1)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
	assert.Equal(t, "", Source(a))
	a.SetMetadata(MetadataSource, "me")
	assert.Equal(t, "me", Source(a))
}

func TestNewHandler(t *testing.T) {
	var got string
	h := NewHandler("recorder", func(ctx context.Context, m IMessage) error {
		got = m.GetType()
		return nil
	})
	require.NoError(t, h.Handle(context.Background(), NewMessage("x", nil)))
	assert.Equal(t, "x", got)
	assert.Equal(t, "recorder", h.Type())
}
