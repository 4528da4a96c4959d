package websocket

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	allowed := []string{"https://app.example.com", "https://dashboard.example.com/path"}

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		{"empty origin", "", false, true},
		{"listed origin", "https://app.example.com", false, true},
		{"listed origin, path stripped", "https://dashboard.example.com", false, true},
		{"listed origin, different case", "https://APP.example.com", false, true},

		{"different host", "https://evil.com", false, false},
		{"different port", "https://app.example.com:9090", false, false},
		{"http instead of https", "http://app.example.com", false, false},
		{"subdomain", "https://sub.app.example.com", false, false},

		{"localhost dev", "http://localhost:8080", true, true},
		{"127.0.0.1 dev", "http://127.0.0.1:3000", true, true},
		{"localhost prod rejected", "http://localhost:8080", false, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			check := NewCheckOrigin(allowed, tt.isDevelopment)

			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, check(r))
		})
	}
}

func TestNewCheckOrigin_EmptyListAllowsAll(t *testing.T) {
	check := NewCheckOrigin(nil, false)

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anything.example.org")

	assert.True(t, check(r))
}
