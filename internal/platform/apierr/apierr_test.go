package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestValidation(t *testing.T) {
	err := Validation("name is required")
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
	if Status(err) != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", Status(err))
	}
}

func TestPersistence(t *testing.T) {
	if Persistence("op", nil) != nil {
		t.Error("expected nil for nil error")
	}
	cause := errors.New("disk I/O error")
	err := Persistence("insert medication", cause)
	if !errors.Is(err, ErrPersistence) {
		t.Error("expected ErrPersistence")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to stay reachable")
	}
	if again := Persistence("outer", err); again != err {
		t.Error("expected already-classified error to pass through")
	}
	nf := fmt.Errorf("get: %w", ErrNotFound)
	if Persistence("outer", nf) != nf {
		t.Error("expected not-found to pass through unchanged")
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{Persistence("op", errors.New("locked")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := Status(tt.err); got != tt.want {
			t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTTP_HidesDriverText(t *testing.T) {
	err := HTTP(Persistence("op", errors.New("database is locked")))
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if he.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", he.Code)
	}
	if he.Message == "database is locked" {
		t.Error("driver text must not leak")
	}
}
