package prescription

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rxpad/rxpad/internal/platform/db"
)

type repoGorm struct{ db *gorm.DB }

// NewRepoGorm returns the local-store Repository.
func NewRepoGorm(gdb *gorm.DB) Repository {
	return &repoGorm{db: gdb}
}

func (r *repoGorm) conn(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, r.db)
}

func (r *repoGorm) NextNumber(ctx context.Context) (int64, error) {
	var next int64
	err := db.InTx(ctx, r.db, func(ctx context.Context) error {
		tx := r.conn(ctx)
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("counters.value + 1")}),
		}).Create(&Counter{Name: numberCounter, Value: 1}).Error
		if err != nil {
			return err
		}
		var c Counter
		if err := tx.First(&c, "name = ?", numberCounter).Error; err != nil {
			return err
		}
		next = c.Value
		return nil
	})
	return next, db.Classify("allocate prescription number", err)
}

func (r *repoGorm) Create(ctx context.Context, p *Prescription) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.Classify("create prescription", r.conn(ctx).Create(p).Error)
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	var p Prescription
	if err := r.conn(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, db.Classify("get prescription", err)
	}
	return &p, nil
}

func (r *repoGorm) GetByNumber(ctx context.Context, number int64) (*Prescription, error) {
	var p Prescription
	if err := r.conn(ctx).First(&p, "number = ?", number).Error; err != nil {
		return nil, db.Classify("get prescription by number", err)
	}
	return &p, nil
}

func (r *repoGorm) Update(ctx context.Context, p *Prescription) error {
	res := r.conn(ctx).Model(p).Select("*").Omit("created_at", "number", "patient_id", "issued_at").Updates(p)
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = gorm.ErrRecordNotFound
	}
	return db.Classify("update prescription", res.Error)
}

func (r *repoGorm) List(ctx context.Context, f Filter, limit, offset int) ([]*Prescription, int, error) {
	q := r.conn(ctx).Model(&Prescription{})
	if f.PatientID != uuid.Nil {
		q = q.Where("patient_id = ?", f.PatientID)
	}
	if f.From != nil {
		q = q.Where("issued_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("issued_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, db.Classify("count prescriptions", err)
	}
	var items []*Prescription
	if err := q.Order("number DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, db.Classify("list prescriptions", err)
	}
	return items, int(total), nil
}
