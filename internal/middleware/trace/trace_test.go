package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"khatabook/internal/log"
)

func TestMiddleware_RequestScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := &log.Logger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	var seenID string
	h := NewMiddleware(logger, func(*http.Request) string { return "10.0.0.9" }).Middleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = GetRequestID(r.Context())
			log.FromContext(r.Context()).InfoContext(r.Context(), "inside handler")
			w.WriteHeader(http.StatusTeapot)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/summary", nil))

	require.True(t, strings.HasPrefix(seenID, "req_"))
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))
	out := buf.String()
	assert.Contains(t, out, "HTTP request started")
	assert.Contains(t, out, "inside handler")
	assert.Contains(t, out, "request_id="+seenID)
	assert.Contains(t, out, "status_code=418")
	assert.Contains(t, out, "client_ip=10.0.0.9")
}

func TestGetRequestID_Missing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(r.Context()))
}
