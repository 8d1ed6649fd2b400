package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ctx := context.Background()

	Success(ctx, w, "Category created successfully!")
	Error(ctx, w, "Failed to create product")
	Warning(ctx, w, "Products from lines 5, 8 were not imported.")

	assert.Equal(t,
		"✔ Category created successfully!\n✘ Failed to create product\n! Products from lines 5, 8 were not imported.\n",
		buf.String())
}

func TestRecorderAndMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi{a, nil, b}

	Info(context.Background(), m, "hello")
	Error(context.Background(), m, "boom")

	require.Len(t, a.All(), 2)
	require.Len(t, b.All(), 2)
	last, ok := a.Last()
	require.True(t, ok)
	assert.Equal(t, LevelError, last.Level)
	assert.Equal(t, "boom", last.Message)
	assert.False(t, last.Time.IsZero())

	a.Reset()
	_, ok = a.Last()
	assert.False(t, ok)
}

func TestNilNotifierIsIgnored(t *testing.T) {
	assert.NotPanics(t, func() { Success(context.Background(), nil, "x") })
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "success", LevelSuccess.String())
	assert.Equal(t, "warning", LevelWarning.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "info", LevelInfo.String())
}
