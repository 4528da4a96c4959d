package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/routerws/internal/domain"
	apperrors "github.com/pscheid92/routerws/internal/platform/errors"
	"github.com/pscheid92/routerws/internal/platform/version"
)

type broadcastResponse struct {
	Success     bool             `json:"success"`
	ClientCount int              `json:"clientCount"`
	Timestamp   domain.Timestamp `json:"timestamp"`
}

type serviceInfo struct {
	version.Info
	PID      int    `json:"pid"`
	Hostname string `json:"hostname"`
}

type statusResponse struct {
	domain.Status
	Service serviceInfo `json:"service"`
}

func (s *Server) handleBroadcast(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		// BodyLimit surfaces as an *echo.HTTPError (413).
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		return apperrors.ValidationError("failed to read request body", err)
	}

	count, err := s.broadcaster.Broadcast(c.Request().Context(), body)
	switch {
	case errors.Is(err, domain.ErrEmptyPayload):
		return apperrors.ValidationError("message payload is required", err)
	case errors.Is(err, domain.ErrInvalidPayload):
		return apperrors.ValidationError("message payload must be valid JSON", err)
	case err != nil:
		return apperrors.InternalError("failed to broadcast message", err)
	}

	response := broadcastResponse{
		Success:     true,
		ClientCount: count,
		Timestamp:   s.clock.Snapshot(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write broadcast response: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(c echo.Context) error {
	response := statusResponse{
		Status: s.status.Current(),
		Service: serviceInfo{
			Info:     version.Get(),
			PID:      s.pid,
			Hostname: s.hostname,
		},
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}
