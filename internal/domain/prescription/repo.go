package prescription

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// NextNumber allocates the next prescription number. Call it inside the
	// transaction that inserts the prescription.
	NextNumber(ctx context.Context) (int64, error)
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	GetByNumber(ctx context.Context, number int64) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error)
}
