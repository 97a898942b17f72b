package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists medications and their keyword index. Lookups of a
// missing row return an error wrapping apierr.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, m *Medication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medication, error)
	GetBySearchKey(ctx context.Context, key string) (*Medication, error)
	Update(ctx context.Context, m *Medication) error
	Delete(ctx context.Context, id uuid.UUID) error
	IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Medication, int, error)

	TopByUsage(ctx context.Context, limit int) ([]*Medication, error)
	FindByPrefix(ctx context.Context, prefix string, limit int) ([]*Medication, error)
	FindByKeywords(ctx context.Context, tokens []string, limit int) ([]*Medication, error)
}
