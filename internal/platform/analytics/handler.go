package analytics

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/auth"
)

type Handler struct {
	queue *Queue
}

func NewHandler(queue *Queue) *Handler {
	return &Handler{queue: queue}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	anyRole := api.Group("", auth.RequireStaff())
	anyRole.POST("/metrics/events", h.RecordEvent)

	medico := api.Group("", auth.RequireMedico())
	medico.GET("/metrics/stats", h.Stats)
	medico.POST("/metrics/flush", h.Flush)
}

// RecordEvent queues an event reported by the client application.
func (h *Handler) RecordEvent(c echo.Context) error {
	var e Event
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if e.UserID == "" {
		e.UserID = auth.UserIDFromContext(ctx)
	}
	if err := h.queue.Enqueue(ctx, e); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) Flush(c echo.Context) error {
	res, err := h.queue.Flush(c.Request().Context())
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}
