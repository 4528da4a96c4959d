package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	inner := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewHandler(inner))
}

func TestNewID(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for iter := 0; iter < 100; iter++ {
		id := NewID()
		assert.Len(t, id, 8)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestID(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc12345"))
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	assert.Len(t, id, 8)

	again, same := Ensure(ctx)
	assert.Equal(t, id, same)
	assert.Equal(t, ctx, again)
}

func TestHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).With("component", "relay")

	logger.InfoContext(WithID(context.Background(), "test1234"), "delivered", "recipients", 2)

	out := buf.String()
	assert.Contains(t, out, "correlation_id=test1234")
	assert.Contains(t, out, "component=relay")
	assert.Contains(t, out, "recipients=2")
}

func TestHandler_NoCorrelationID_WhenMissing(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).InfoContext(context.Background(), "no correlation")

	assert.NotContains(t, buf.String(), "correlation_id")
}

func TestHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).WithGroup("ws")

	logger.InfoContext(WithID(context.Background(), "grp00001"), "open", "id", "x")

	assert.Contains(t, buf.String(), "ws.id=x")
}
