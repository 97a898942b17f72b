package diagnosis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/catalog"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

var keywordIndex = catalog.KeywordIndex{Table: "diagnosis_keywords", OwnerCol: "diagnosis_id"}

type repoGorm struct{ db *gorm.DB }

// NewRepoGorm returns the local-store Repository.
func NewRepoGorm(gdb *gorm.DB) Repository {
	return &repoGorm{db: gdb}
}

func (r *repoGorm) conn(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, r.db)
}

func (r *repoGorm) Create(ctx context.Context, d *Diagnosis) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := db.InTx(ctx, r.db, func(ctx context.Context) error {
		tx := r.conn(ctx)
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		return keywordIndex.Rewrite(tx, d.ID, d.Keywords)
	})
	return db.Classify("create diagnosis", err)
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	var d Diagnosis
	if err := r.conn(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, db.Classify("get diagnosis", err)
	}
	return &d, nil
}

func (r *repoGorm) GetBySearchKey(ctx context.Context, key string) (*Diagnosis, error) {
	var d Diagnosis
	if err := r.conn(ctx).First(&d, "search_key = ?", key).Error; err != nil {
		return nil, db.Classify("get diagnosis by key", err)
	}
	return &d, nil
}

func (r *repoGorm) GetByCode(ctx context.Context, code string) (*Diagnosis, error) {
	var d Diagnosis
	if err := r.conn(ctx).Order("usage_count DESC").First(&d, "code = ? COLLATE NOCASE", strings.TrimSpace(code)).Error; err != nil {
		return nil, db.Classify("get diagnosis by code", err)
	}
	return &d, nil
}

func (r *repoGorm) Update(ctx context.Context, d *Diagnosis) error {
	err := db.InTx(ctx, r.db, func(ctx context.Context) error {
		tx := r.conn(ctx)
		res := tx.Model(d).Select("*").Omit("created_at").Updates(d)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return keywordIndex.Rewrite(tx, d.ID, d.Keywords)
	})
	return db.Classify("update diagnosis", err)
}

func (r *repoGorm) Delete(ctx context.Context, id uuid.UUID) error {
	err := db.InTx(ctx, r.db, func(ctx context.Context) error {
		tx := r.conn(ctx)
		if err := keywordIndex.Remove(tx, id); err != nil {
			return err
		}
		res := tx.Delete(&Diagnosis{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return db.Classify("delete diagnosis", err)
}

func (r *repoGorm) IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.conn(ctx).Model(&Diagnosis{}).Where("id = ?", id).Updates(map[string]any{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": at,
		"updated_at":   at,
	})
	if res.Error != nil {
		return db.Classify("increment diagnosis usage", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("increment diagnosis usage: %w", apierr.ErrNotFound)
	}
	return nil
}

var sortColumns = map[SortBy]string{
	"":            "search_key ASC",
	SortByName:    "search_key ASC",
	SortByCode:    "code IS NULL, code ASC, search_key ASC",
	SortByUsage:   "usage_count DESC, search_key ASC",
	SortByRecent:  "last_used_at IS NULL, last_used_at DESC, search_key ASC",
	SortByCreated: "created_at DESC",
}

func (r *repoGorm) List(ctx context.Context, f Filter, limit, offset int) ([]*Diagnosis, int, error) {
	q := r.conn(ctx).Model(&Diagnosis{})
	if spec := textnorm.Normalize(f.Specialty); spec != "" {
		q = q.Where("EXISTS (SELECT 1 FROM json_each(diagnoses.specialty_keys) WHERE json_each.value = ?)", spec)
	}
	if f.OnlyCustom {
		q = q.Where("is_custom = ?", true)
	}
	if text := textnorm.Normalize(f.SearchText); text != "" {
		prefix := db.EscapeLike(text) + "%"
		if tokens := textnorm.Tokens(text); len(tokens) > 0 {
			q = q.Where("(search_key LIKE ? ESCAPE '\\' OR id IN (?))", prefix, keywordIndex.Subquery(r.conn(ctx), tokens))
		} else {
			q = q.Where("search_key LIKE ? ESCAPE '\\'", prefix)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, db.Classify("count diagnoses", err)
	}

	order, ok := sortColumns[f.SortBy]
	if !ok {
		order = sortColumns[SortByName]
	}
	var items []*Diagnosis
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, db.Classify("list diagnoses", err)
	}
	return items, int(total), nil
}

func (r *repoGorm) TopByUsage(ctx context.Context, limit int) ([]*Diagnosis, error) {
	var items []*Diagnosis
	err := r.conn(ctx).
		Order("usage_count DESC, last_used_at DESC, search_key ASC").
		Limit(limit).
		Find(&items).Error
	return items, db.Classify("top diagnoses", err)
}

// FindByPrefix matches the normalized name or the classification code.
func (r *repoGorm) FindByPrefix(ctx context.Context, prefix string, limit int) ([]*Diagnosis, error) {
	like := db.EscapeLike(prefix) + "%"
	var items []*Diagnosis
	err := r.conn(ctx).
		Where("search_key LIKE ? ESCAPE '\\' OR lower(code) LIKE ? ESCAPE '\\'", like, like).
		Order("usage_count DESC, search_key ASC").
		Limit(limit).
		Find(&items).Error
	return items, db.Classify("prefix search diagnoses", err)
}

func (r *repoGorm) FindByKeywords(ctx context.Context, tokens []string, limit int) ([]*Diagnosis, error) {
	tx := r.conn(ctx)
	ids, err := keywordIndex.Match(tx, tokens, limit)
	if err != nil || len(ids) == 0 {
		return []*Diagnosis{}, db.Classify("keyword search diagnoses", err)
	}
	var items []*Diagnosis
	if err := tx.Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, db.Classify("keyword search diagnoses", err)
	}
	return catalog.OrderByIDs(items, ids), nil
}
