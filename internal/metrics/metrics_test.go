package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ToolCall("search", "ok", time.Millisecond)
		m.AuthFailure("INVALID_API_KEY")
		m.RateLimited("minute")
		m.SessionCreated()
		m.SessionsSwept(3)
		m.OrderPlaced(100)
	})
}

func TestCounters(t *testing.T) {
	m := New()

	m.ToolCall("search", "ok", 5*time.Millisecond)
	m.ToolCall("search", "ok", 5*time.Millisecond)
	m.ToolCall("search", "VALIDATION_ERROR", time.Millisecond)
	m.RateLimited("minute")
	m.SessionsSwept(0)
	m.SessionsSwept(4)
	m.OrderPlaced(2599)
	m.OrderPlaced(1000)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("search", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("search", "VALIDATION_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("minute")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.sessionsExpired))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersPlaced))
	assert.Equal(t, 3599.0, testutil.ToFloat64(m.orderValue))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SessionCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mercora_sessions_created_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
