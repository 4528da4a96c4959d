package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// WebSocketServer serves the /ws route on its own port when the WebSocket
// listener does not share the HTTP port.
type WebSocketServer struct {
	echo *echo.Echo
	port string
}

func NewWebSocketServer(port string, websocketHandler http.Handler) *WebSocketServer {
	e := newEcho()
	e.Use(correlationMiddleware)
	e.Use(middleware.Recover())
	e.Use(ErrorHandlingMiddleware())
	e.GET("/ws", echo.WrapHandler(websocketHandler))

	return &WebSocketServer{echo: e, port: port}
}

func (s *WebSocketServer) Handler() http.Handler {
	return s.echo
}

func (s *WebSocketServer) Start() error {
	slog.Info("Starting WebSocket server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start websocket server: %w", err)
	}
	return nil
}

func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown websocket server: %w", err)
	}
	return nil
}
