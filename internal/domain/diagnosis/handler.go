package diagnosis

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
	readGroup.GET("/diagnoses", h.ListDiagnoses)
	readGroup.GET("/diagnoses/search", h.SearchDiagnoses)
	readGroup.GET("/diagnoses/suggested-treatment", h.SuggestedTreatment)
	readGroup.GET("/diagnoses/:id", h.GetDiagnosis)

	writeGroup := api.Group("", auth.RequireMedico())
	writeGroup.POST("/diagnoses", h.CreateDiagnosis)
	writeGroup.PUT("/diagnoses/:id", h.UpdateDiagnosis)
	writeGroup.DELETE("/diagnoses/:id", h.DeleteDiagnosis)
	writeGroup.POST("/diagnoses/upsert", h.UpsertDiagnosis)
	writeGroup.POST("/diagnoses/usage", h.RecordUsage)
}

func (h *Handler) SearchDiagnoses(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = h.searchLimit
	}
	ctx := c.Request().Context()

	var (
		results []*Diagnosis
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

func (h *Handler) SuggestedTreatment(c echo.Context) error {
	ctx := c.Request().Context()
	if c.QueryParam("code") == "" && c.QueryParam("name") == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code or name is required")
	}
	d, err := h.svc.Resolve(ctx, c.QueryParam("code"), c.QueryParam("name"))
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, h.svc.GetSuggestedTreatment(ctx, d, c.QueryParam("specialty")))
}

func (h *Handler) ListDiagnoses(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		Specialty:  c.QueryParam("specialty"),
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

func (h *Handler) GetDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.UsageCount = 0
	d.LastUsedAt = nil
	if err := h.svc.Create(c.Request().Context(), &d); err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.ID = id
	if err := h.svc.Update(c.Request().Context(), &d); err != nil {
		return apierr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDiagnosis(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apierr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpsertDiagnosis(c echo.Context) error {
	var d Diagnosis
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.IsCustom = true
	id, err := h.svc.Upsert(c.Request().Context(), &d)
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
