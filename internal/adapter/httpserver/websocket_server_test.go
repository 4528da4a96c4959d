package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pscheid92/routerws/internal/platform/correlation"
)

func TestWebSocketServer_RoutesOnlyWS(t *testing.T) {
	var calls int
	srv := NewWebSocketServer("8080", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(correlation.Header))
	assert.Equal(t, 1, calls)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/broadcast", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"not_found"`)
	assert.Equal(t, 1, calls)
}

func TestWebSocketServer_RecoversFromPanics(t *testing.T) {
	srv := NewWebSocketServer("8080", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("upgrade exploded")
	}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"internal"`)
}
