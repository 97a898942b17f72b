package treatment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireStaff())
	readGroup.GET("/treatments", h.ListBucket)
	readGroup.GET("/treatments/suggest", h.Suggest)
	readGroup.GET("/treatments/:id", h.GetTreatment)

	writeGroup := api.Group("", auth.RequireMedico())
	writeGroup.POST("/treatments/learn", h.Learn)
	writeGroup.DELETE("/treatments/:id", h.Forget)
}

func (h *Handler) ListBucket(c echo.Context) error {
	items, err := h.svc.GetSuggestions(c.Request().Context(), c.QueryParam("diagnosis_key"), c.QueryParam("specialty"))
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Suggest(c echo.Context) error {
	s, err := h.svc.Suggest(c.Request().Context(), c.QueryParam("code"), c.QueryParam("name"), c.QueryParam("specialty"))
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) GetTreatment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Learn(c echo.Context) error {
	var in LearnInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Learn(c.Request().Context(), in)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Forget(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Forget(c.Request().Context(), id); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
