package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/routerws/internal/adapter/metrics"
	"github.com/pscheid92/routerws/internal/domain"
)

const defaultBodyLimit = "1M"

type Config struct {
	Port                string
	AllowedOrigins      []string
	SubmitRatePerSecond float64
	SubmitRateBurst     int
	BodyLimit           string
}

type Server struct {
	echo   *echo.Echo
	config Config

	broadcaster domain.Broadcaster
	status      domain.StatusReporter
	clock       domain.Clock
	metrics     *metrics.Metrics

	// websocketHandler is mounted on /ws when the WebSocket listener shares
	// the HTTP port. Nil otherwise.
	websocketHandler http.Handler
	healthChecks     []HealthCheck

	pid      int
	hostname string
}

func NewServer(
	cfg Config,
	broadcaster domain.Broadcaster,
	status domain.StatusReporter,
	clock domain.Clock,
	m *metrics.Metrics,
	websocketHandler http.Handler,
	healthChecks []HealthCheck,
) *Server {
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = defaultBodyLimit
	}

	e := newEcho()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		broadcaster:      broadcaster,
		status:           status,
		clock:            clock,
		metrics:          m,
		websocketHandler: websocketHandler,
		healthChecks:     healthChecks,
		pid:              os.Getpid(),
		hostname:         hostname,
	}

	srv.registerRoutes()

	return srv
}

// newEcho returns an instance with the shared error renderer. Client IPs come
// from the TCP peer address so forwarding headers cannot pick a rate-limit
// bucket; the WebSocket connection limits key on the same address.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler
	e.IPExtractor = echo.ExtractIPDirect()
	return e
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "port", s.config.Port, "websocket_mounted", s.websocketHandler != nil)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
