package medication

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/apierr"
	"github.com/rxpad/rxpad/internal/platform/catalog"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

var keywordIndex = catalog.KeywordIndex{Table: "medication_keywords", OwnerCol: "medication_id"}

type repoGorm struct{ db *gorm.DB }

// NewRepoGorm returns the local-store Repository.
func NewRepoGorm(gdb *gorm.DB) Repository {
	return &repoGorm{db: gdb}
}

func (r *repoGorm) conn(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, r.db)
}

func (r *repoGorm) Create(ctx context.Context, m *Medication) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := db.InTx(ctx, r.db, func(ctx context.Context) error {
		tx := r.conn(ctx)
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return keywordIndex.Rewrite(tx, m.ID, m.Keywords)
	})
	return db.Classify("create medication", err)
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Medication, error) {
	var m Medication
	if err := r.conn(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, db.Classify("get medication", err)
	}
	return &m, nil
}

func (r *repoGorm) GetBySearchKey(ctx context.Context, key string) (*Medication, error) {
	var m Medication
	if err := r.conn(ctx).First(&m, "search_key = ?", key).Error; err != nil {
		return nil, db.Classify("get medication by key", err)
	}
	return &m, nil
}

func (r *repoGorm) Update(ctx context.Context, m *Medication) error {
	err := db.InTx(ctx, r.db, func(ctx context.Context) error {
		tx := r.conn(ctx)
		res := tx.Model(m).Select("*").Omit("created_at").Updates(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return keywordIndex.Rewrite(tx, m.ID, m.Keywords)
	})
	return db.Classify("update medication", err)
}

func (r *repoGorm) Delete(ctx context.Context, id uuid.UUID) error {
	err := db.InTx(ctx, r.db, func(ctx context.Context) error {
		tx := r.conn(ctx)
		if err := keywordIndex.Remove(tx, id); err != nil {
			return err
		}
		res := tx.Delete(&Medication{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return db.Classify("delete medication", err)
}

func (r *repoGorm) IncrementUsage(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.conn(ctx).Model(&Medication{}).Where("id = ?", id).Updates(map[string]any{
		"usage_count":  gorm.Expr("usage_count + 1"),
		"last_used_at": at,
		"updated_at":   at,
	})
	if res.Error != nil {
		return db.Classify("increment medication usage", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("increment medication usage: %w", apierr.ErrNotFound)
	}
	return nil
}

var sortColumns = map[SortBy]string{
	"":            "search_key ASC",
	SortByName:    "search_key ASC",
	SortByUsage:   "usage_count DESC, search_key ASC",
	SortByRecent:  "last_used_at IS NULL, last_used_at DESC, search_key ASC",
	SortByCreated: "created_at DESC",
}

func (r *repoGorm) List(ctx context.Context, f Filter, limit, offset int) ([]*Medication, int, error) {
	q := r.conn(ctx).Model(&Medication{})
	if f.Category != "" {
		q = q.Where("category = ? COLLATE NOCASE", f.Category)
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
		return nil, 0, db.Classify("count medications", err)
	}

	order, ok := sortColumns[f.SortBy]
	if !ok {
		order = sortColumns[SortByName]
	}
	var items []*Medication
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, db.Classify("list medications", err)
	}
	return items, int(total), nil
}

func (r *repoGorm) TopByUsage(ctx context.Context, limit int) ([]*Medication, error) {
	var items []*Medication
	err := r.conn(ctx).
		Order("usage_count DESC, last_used_at DESC, search_key ASC").
		Limit(limit).
		Find(&items).Error
	return items, db.Classify("top medications", err)
}

func (r *repoGorm) FindByPrefix(ctx context.Context, prefix string, limit int) ([]*Medication, error) {
	var items []*Medication
	err := r.conn(ctx).
		Where("search_key LIKE ? ESCAPE '\\'", db.EscapeLike(prefix)+"%").
		Order("usage_count DESC, search_key ASC").
		Limit(limit).
		Find(&items).Error
	return items, db.Classify("prefix search medications", err)
}

func (r *repoGorm) FindByKeywords(ctx context.Context, tokens []string, limit int) ([]*Medication, error) {
	tx := r.conn(ctx)
	ids, err := keywordIndex.Match(tx, tokens, limit)
	if err != nil || len(ids) == 0 {
		return []*Medication{}, db.Classify("keyword search medications", err)
	}
	var items []*Medication
	if err := tx.Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, db.Classify("keyword search medications", err)
	}
	return catalog.OrderByIDs(items, ids), nil
}
