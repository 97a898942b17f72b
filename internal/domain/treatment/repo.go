package treatment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists learned associations. Lookups of a missing row return
// an error wrapping apierr.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, a *Association) error
	GetByID(ctx context.Context, id uuid.UUID) (*Association, error)
	FindEntry(ctx context.Context, diagnosisKey, specialty, combinationKey string) (*Association, error)
	// Reinforce increments usage and stores the latest medication details.
	Reinforce(ctx context.Context, a *Association, at time.Time) error
	// ListBucket returns the bucket ordered by usage desc, then most recent use.
	ListBucket(ctx context.Context, diagnosisKey, specialty string, limit int) ([]*Association, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
