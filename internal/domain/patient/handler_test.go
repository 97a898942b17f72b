package patient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/rxpad/rxpad/pkg/pagination"
)

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	return httpErr.Code
}

func TestHandler_CreateAndList(t *testing.T) {
	svc, _ := newTestService(t)
	h, e := NewHandler(svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"name":"Julián Pérez","age":41}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.CreatePatient(e.NewContext(req, rec)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/patients?q=julian", nil)
	rec = httptest.NewRecorder()
	if err := h.ListPatients(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	var page pagination.Response[Patient]
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || len(page.Data) != 1 || page.Data[0].Name != "Julián Pérez" {
		t.Errorf("unexpected page %s", rec.Body.String())
	}
	if page.Data[0].DisplayAge == nil || *page.Data[0].DisplayAge != 41 {
		t.Errorf("expected current_age 41, got %v", page.Data[0].DisplayAge)
	}
}

func TestHandler_CreateRejectsMissingName(t *testing.T) {
	svc, _ := newTestService(t)
	h, e := NewHandler(svc), echo.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"name":"  "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.CreatePatient(e.NewContext(req, httptest.NewRecorder()))
	if got := httpStatus(t, err); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_GetUnknownAndBadID(t *testing.T) {
	svc, _ := newTestService(t)
	h, e := NewHandler(svc), echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if got := httpStatus(t, h.GetPatient(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("6f1c1f8e-8a0e-4b9e-9a51-3f0a3c2d1e10")
	if got := httpStatus(t, h.GetPatient(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestHandler_ListRejectsBadSort(t *testing.T) {
	svc, _ := newTestService(t)
	h, e := NewHandler(svc), echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients?sort_by=shoe_size", nil), httptest.NewRecorder())
	if got := httpStatus(t, h.ListPatients(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}
