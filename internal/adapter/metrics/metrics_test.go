package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAllGroups(t *testing.T) {
	m := New()

	m.WebSocket.ConnectionsTotal.Inc()
	m.Broadcast.BroadcastsTotal.WithLabelValues("fanout").Inc()
	m.Fanout.Published.WithLabelValues("redis").Inc()

	families, err := m.Registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["routerws_websocket_connections_total"])
	assert.True(t, names["routerws_broadcast_broadcasts_total"])
	assert.True(t, names["routerws_fanout_published_total"])
	assert.True(t, names["go_goroutines"])
}

func TestHTTPMetrics_SkipsWebSocketAndHealth(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.HTTP.Middleware())
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/ws", ok)
	e.GET("/health/live", ok)
	e.GET("/status", ok)

	for _, path := range []string{"/ws", "/health/live", "/status", "/status"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTP.RequestsTotal.WithLabelValues(http.MethodGet, "/status", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTP.RequestsTotal.WithLabelValues(http.MethodGet, "/ws", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTP.InFlightGauge))
}

func TestHandler_ServesRegistry(t *testing.T) {
	m := New()
	m.WebSocket.ActiveConnections.Set(3)

	rec := httptest.NewRecorder()
	Handler(m.Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "routerws_websocket_active_connections 3")
}
