package analytics

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Recorder accepts events; *Queue implements it.
type Recorder interface {
	Enqueue(ctx context.Context, e Event) error
}

// MiddlewareConfig sets what the request middleware records.
type MiddlewareConfig struct {
	// SlowThreshold marks a request slow enough to record as a performance event.
	SlowThreshold time.Duration
	Skipper       func(c echo.Context) bool
}

// RequestMiddleware records a performance event for slow requests and an
// error event for 5xx responses. Recording failures are logged only.
func RequestMiddleware(rec Recorder, cfg MiddlewareConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = time.Second
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			elapsed := time.Since(start)

			status := c.Response().Status
			payload := map[string]any{
				"method":      c.Request().Method,
				"route":       c.Path(),
				"status":      status,
				"duration_ms": elapsed.Milliseconds(),
			}

			var events []Event
			if elapsed >= cfg.SlowThreshold {
				events = append(events, Event{Type: TypePerformance, Name: "slow_request", Payload: payload})
			}
			if status >= http.StatusInternalServerError {
				errPayload := map[string]any{}
				for k, v := range payload {
					errPayload[k] = v
				}
				if err != nil {
					errPayload["error"] = err.Error()
				}
				events = append(events, Event{Type: TypeError, Name: "server_error", Payload: errPayload})
			}
			ctx := context.WithoutCancel(c.Request().Context())
			for _, e := range events {
				if recErr := rec.Enqueue(ctx, e); recErr != nil {
					logger.Warn().Err(recErr).Str("event", e.Name).Msg("record request metric")
				}
			}
			return nil
		}
	}
}
