package treatment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/apierr"
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

func (r *repoGorm) Create(ctx context.Context, a *Association) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return db.Classify("create treatment", r.conn(ctx).Create(a).Error)
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Association, error) {
	var a Association
	if err := r.conn(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, db.Classify("get treatment", err)
	}
	return &a, nil
}

func (r *repoGorm) FindEntry(ctx context.Context, diagnosisKey, specialty, combinationKey string) (*Association, error) {
	var a Association
	err := r.conn(ctx).
		Where("diagnosis_key = ? AND specialty = ? AND combination_key = ?", diagnosisKey, specialty, combinationKey).
		First(&a).Error
	if err != nil {
		return nil, db.Classify("find treatment", err)
	}
	return &a, nil
}

func (r *repoGorm) Reinforce(ctx context.Context, a *Association, at time.Time) error {
	updates := map[string]any{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": at,
		"updated_at":   at,
		"medications":  a.Medications,
	}
	if a.Instructions != nil {
		updates["instructions"] = a.Instructions
	}
	if a.TreatmentName != nil {
		updates["treatment_name"] = a.TreatmentName
	}
	res := r.conn(ctx).Model(&Association{}).Where("id = ?", a.ID).Updates(updates)
	if res.Error != nil {
		return db.Classify("reinforce treatment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("reinforce treatment: %w", apierr.ErrNotFound)
	}
	return nil
}

func (r *repoGorm) ListBucket(ctx context.Context, diagnosisKey, specialty string, limit int) ([]*Association, error) {
	var items []*Association
	q := r.conn(ctx).
		Where("diagnosis_key = ? AND specialty = ?", diagnosisKey, specialty).
		Order("usage_count DESC, last_used_at DESC, created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&items).Error; err != nil {
		return nil, db.Classify("list treatments", err)
	}
	return items, nil
}

func (r *repoGorm) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.conn(ctx).Delete(&Association{}, "id = ?", id)
	if res.Error != nil {
		return db.Classify("delete treatment", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete treatment: %w", apierr.ErrNotFound)
	}
	return nil
}
