package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/routerws/internal/adapter/metrics"
	"github.com/pscheid92/routerws/internal/domain"
	apperrors "github.com/pscheid92/routerws/internal/platform/errors"
	"github.com/pscheid92/routerws/internal/registry"
)

const defaultReadLimit = 64 * 1024

// State is the lifecycle position of a single subscriber connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Config struct {
	AllowedOrigins []string
	IsDevelopment  bool
	Connection     registry.Options
	ReadLimit      int64

	// OnStateChange, when set, observes every lifecycle transition.
	OnStateChange func(id uuid.UUID, state State)
}

// Handler upgrades HTTP requests to WebSocket subscriber connections and
// drives each one through Connecting, Open, Closing and Closed.
type Handler struct {
	registry  *registry.Registry
	clock     domain.Clock
	wallClock clockwork.Clock
	limits    *ConnectionLimits
	metrics   *metrics.WebSocketMetrics
	upgrader  websocket.Upgrader
	cfg       Config
	draining  atomic.Bool
}

// NewHandler creates a lifecycle handler. limits may be nil to disable
// connection limiting.
func NewHandler(
	reg *registry.Registry,
	clock domain.Clock,
	wallClock clockwork.Clock,
	limits *ConnectionLimits,
	m *metrics.WebSocketMetrics,
	cfg Config,
) *Handler {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}

	h := &Handler{
		registry:  reg,
		clock:     clock,
		wallClock: wallClock,
		limits:    limits,
		metrics:   m,
		cfg:       cfg,
	}

	checkOrigin := NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if checkOrigin(r) {
				return true
			}
			m.Rejections.WithLabelValues(string(LimitReasonOrigin)).Inc()
			return false
		},
	}
	return h
}

// Drain makes the handler refuse new connections with 503. Used on shutdown
// before the registry is emptied.
func (h *Handler) Drain() {
	h.draining.Store(true)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		h.reject(w, LimitReasonDraining, apperrors.UnavailableError("server is shutting down", nil))
		return
	}

	if h.limits != nil {
		ip := clientIP(r.RemoteAddr)
		ok, reason := h.limits.Acquire(ip)
		if !ok {
			h.reject(w, reason, limitError(reason))
			return
		}
		defer h.limits.Release(ip)
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		slog.Debug("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	s := &session{handler: h, ws: ws, remoteAddr: r.RemoteAddr}
	s.run()
}

func (h *Handler) reject(w http.ResponseWriter, reason LimitReason, err *apperrors.Error) {
	h.metrics.Rejections.WithLabelValues(string(reason)).Inc()
	slog.Debug("WebSocket connection rejected", "reason", reason)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	_ = json.NewEncoder(w).Encode(err.WithContext("reason", reason).ToResponse())
}

func limitError(reason LimitReason) *apperrors.Error {
	switch reason {
	case LimitReasonGlobal:
		return apperrors.UnavailableError("connection capacity reached", nil)
	case LimitReasonPerIP:
		return apperrors.RateLimitedError("too many connections from this address")
	default:
		return apperrors.RateLimitedError("connection rate exceeded")
	}
}

// session is one connection's walk through the lifecycle.
type session struct {
	handler    *Handler
	ws         *websocket.Conn
	remoteAddr string
	conn       *registry.Connection
	logger     *slog.Logger
	closeOnce  sync.Once
}

func (s *session) run() {
	h := s.handler

	s.ws.SetReadLimit(h.cfg.ReadLimit)
	s.conn = registry.NewConnection(s.ws, s.remoteAddr, h.wallClock, h.cfg.Connection)
	s.logger = slog.With("connection_id", s.conn.ID().String(), "remote_addr", s.remoteAddr)
	s.transition(StateConnecting)

	if err := h.registry.Register(s.conn); err != nil {
		s.logger.Error("Failed to register connection", "error", err)
		s.conn.Close()
		s.transition(StateClosed)
		return
	}
	h.metrics.ActiveConnections.Inc()
	h.metrics.ConnectionsTotal.Inc()
	defer s.close()

	// Shutdown may have emptied the registry between the drain check and
	// registration.
	if h.draining.Load() {
		return
	}

	if err := s.sendWelcome(); err != nil {
		s.logger.Warn("Failed to send welcome", "error", err)
		return
	}

	s.transition(StateOpen)
	s.logger.Info("Client connected", "connections", h.registry.Size())
	s.readLoop()
}

func (s *session) sendWelcome() error {
	data, err := json.Marshal(domain.Welcome{
		Message:  domain.WelcomeMessage,
		ClientID: s.conn.ID().String(),
	})
	if err != nil {
		return err
	}

	envelope := domain.NewEnvelope(domain.EnvelopeWelcome, data, s.handler.clock.Snapshot())
	raw, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return s.conn.Send(raw)
}

func (s *session) readLoop() {
	for {
		kind, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug("Connection read failed", "error", err)
			}
			return
		}
		s.conn.ExtendReadDeadline()

		if kind == websocket.TextMessage && string(data) == domain.KeepalivePing {
			s.replyPong()
			continue
		}

		s.handler.metrics.FramesReceived.Inc()

		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			s.logger.Debug("Received non-JSON frame", "bytes", len(data))
			continue
		}
		s.logger.Debug("Received frame", "message", decoded)
	}
}

func (s *session) replyPong() {
	err := s.conn.Send([]byte(domain.KeepalivePong))
	if err == nil {
		s.handler.metrics.KeepalivePongs.Inc()
		return
	}

	reason := "send_failed"
	switch {
	case errors.Is(err, domain.ErrSendBufferFull):
		reason = "buffer_full"
	case errors.Is(err, domain.ErrConnectionClosed):
		reason = "connection_closed"
	}
	s.handler.metrics.DroppedPongs.WithLabelValues(reason).Inc()
	s.logger.Debug("Dropped pong reply", "reason", reason, "error", err)
}

// close deregisters the connection exactly once. When shutdown or slow-client
// eviction already removed it, Deregister reports false and the connection is
// only closed.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.transition(StateClosing)

		if !s.handler.registry.Deregister(s.conn) {
			s.conn.Close()
		}
		s.handler.metrics.ActiveConnections.Dec()

		s.transition(StateClosed)
		s.logger.Info("Client disconnected", "connections", s.handler.registry.Size())
	})
}

func (s *session) transition(state State) {
	s.logger.Debug("Connection state changed", "state", state.String())
	if s.handler.cfg.OnStateChange != nil {
		s.handler.cfg.OnStateChange(s.conn.ID(), state)
	}
}
