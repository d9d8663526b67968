package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{
		Level:     slog.LevelDebug,
		Component: ComponentApp,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))

	sl.LogError(context.Background(), "Saving transactions failed", errors.New("disk full"),
		ComponentLedger, OpAppend, LogFields{FieldUserID: int64(7), FieldCount: 2})

	rec := lastRecord(t, &buf)
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "Saving transactions failed", rec["msg"])
	assert.Equal(t, "disk full", rec[FieldError])
	assert.Equal(t, OpAppend, rec[FieldOperation])
	assert.Equal(t, ComponentLedger, rec[FieldComponent])
	assert.EqualValues(t, 7, rec[FieldUserID])
	assert.EqualValues(t, 2, rec[FieldCount])
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf).With(NewFields().WithRequestID("req_1").ToSlice()...)

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).InfoContext(ctx, "hello")

	rec := lastRecord(t, &buf)
	assert.Equal(t, "req_1", rec[FieldRequestID])
	assert.Equal(t, ComponentApp, rec[FieldComponent])
}

func TestFromContext_FallsBackToDefault(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.NotNil(t, l.Logger)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
