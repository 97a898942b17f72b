package medication

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/auth"
	"github.com/rxpad/rxpad/pkg/pagination"
)

type Handler struct {
	svc         *Service
	searchLimit int
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// WithSearchLimit sets the result count used when a search omits limit.
func (h *Handler) WithSearchLimit(n int) *Handler {
	h.searchLimit = n
	return h
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireStaff())
	readGroup.GET("/medications", h.ListMedications)
	readGroup.GET("/medications/search", h.SearchMedications)
	readGroup.GET("/medications/:id", h.GetMedication)

	writeGroup := api.Group("", auth.RequireMedico())
	writeGroup.POST("/medications", h.CreateMedication)
	writeGroup.PUT("/medications/:id", h.UpdateMedication)
	writeGroup.DELETE("/medications/:id", h.DeleteMedication)
	writeGroup.POST("/medications/upsert", h.UpsertMedication)
	writeGroup.POST("/medications/usage", h.RecordUsage)
}

func (h *Handler) SearchMedications(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = h.searchLimit
	}
	ctx := c.Request().Context()

	var (
		results []*Medication
		err     error
	)
	if specialty := c.QueryParam("specialty"); specialty != "" {
		results, err = h.svc.SearchWithSpecialtyPriority(ctx, c.QueryParam("q"), specialty, limit)
	} else {
		results, err = h.svc.Search(ctx, c.QueryParam("q"), limit)
	}
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, results)
}

func (h *Handler) ListMedications(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Category:   c.QueryParam("category"),
		OnlyCustom: c.QueryParam("custom") == "true",
		SortBy:     SortBy(c.QueryParam("sort_by")),
		SearchText: c.QueryParam("q"),
	}
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateMedication(c echo.Context) error {
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.UsageCount = 0
	m.LastUsedAt = nil
	if err := h.svc.Create(c.Request().Context(), &m); err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.ID = id
	if err := h.svc.Update(c.Request().Context(), &m); err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpsertMedication(c echo.Context) error {
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.IsCustom = true
	id, err := h.svc.Upsert(c.Request().Context(), &m)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id.String()})
}

type usageRequest struct {
	IDOrName string `json:"id_or_name"`
}

func (h *Handler) RecordUsage(c echo.Context) error {
	var req usageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RecordUsage(c.Request().Context(), req.IDOrName); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
