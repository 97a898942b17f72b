package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/apierr"
)

// Classify maps a gorm error to the apierr taxonomy: missing rows become
// apierr.ErrNotFound, anything else apierr.ErrPersistence.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, apierr.ErrNotFound)
	}
	return apierr.Persistence(op, err)
}

// EscapeLike escapes LIKE wildcards so s matches literally with ESCAPE '\'.
func EscapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
