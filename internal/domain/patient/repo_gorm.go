package patient

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/textnorm"
)

type repoGorm struct{ db *gorm.DB }

// NewRepoGorm returns the local-store Repository.
func NewRepoGorm(gdb *gorm.DB) Repository {
	return &repoGorm{db: gdb}
}

func (r *repoGorm) conn(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, r.db)
}

func (r *repoGorm) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return db.Classify("create patient", r.conn(ctx).Create(p).Error)
}

func (r *repoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	if err := r.conn(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, db.Classify("get patient", err)
	}
	return &p, nil
}

func (r *repoGorm) Update(ctx context.Context, p *Patient) error {
	res := r.conn(ctx).Model(p).Select("*").Omit("created_at").Updates(p)
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = gorm.ErrRecordNotFound
	}
	return db.Classify("update patient", res.Error)
}

func (r *repoGorm) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.conn(ctx).Delete(&Patient{}, "id = ?", id)
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = gorm.ErrRecordNotFound
	}
	return db.Classify("delete patient", res.Error)
}

var sortColumns = map[SortBy]string{
	"":            "search_key ASC",
	SortByName:    "search_key ASC",
	SortByCreated: "created_at DESC",
	SortByUpdated: "updated_at DESC",
}

// List matches SearchText as a prefix of the name or of any word in it.
func (r *repoGorm) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	q := r.conn(ctx).Model(&Patient{})
	if text := textnorm.Normalize(f.SearchText); text != "" {
		esc := db.EscapeLike(text)
		q = q.Where("(search_key LIKE ? ESCAPE '\\' OR search_key LIKE ? ESCAPE '\\')", esc+"%", "% "+esc+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, db.Classify("count patients", err)
	}
	order, ok := sortColumns[f.SortBy]
	if !ok {
		order = sortColumns[SortByName]
	}
	var items []*Patient
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, db.Classify("list patients", err)
	}
	return items, int(total), nil
}
