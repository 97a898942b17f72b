package practice

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/db"
)

// -- Templates --

type templateRepoGorm struct{ db *gorm.DB }

func NewTemplateRepoGorm(gdb *gorm.DB) TemplateRepository {
	return &templateRepoGorm{db: gdb}
}

func (r *templateRepoGorm) conn(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, r.db)
}

func (r *templateRepoGorm) Create(ctx context.Context, t *Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return db.Classify("create template", r.conn(ctx).Create(t).Error)
}

func (r *templateRepoGorm) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	var t Template
	if err := r.conn(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, db.Classify("get template", err)
	}
	return &t, nil
}

func (r *templateRepoGorm) GetDefault(ctx context.Context) (*Template, error) {
	var t Template
	if err := r.conn(ctx).First(&t, "is_default = ?", true).Error; err != nil {
		return nil, db.Classify("get default template", err)
	}
	return &t, nil
}

func (r *templateRepoGorm) Update(ctx context.Context, t *Template) error {
	res := r.conn(ctx).Model(t).Select("*").Omit("created_at").Updates(t)
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = gorm.ErrRecordNotFound
	}
	return db.Classify("update template", res.Error)
}

func (r *templateRepoGorm) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.conn(ctx).Delete(&Template{}, "id = ?", id)
	if res.Error == nil && res.RowsAffected == 0 {
		res.Error = gorm.ErrRecordNotFound
	}
	return db.Classify("delete template", res.Error)
}

func (r *templateRepoGorm) List(ctx context.Context, limit, offset int) ([]*Template, int, error) {
	var total int64
	if err := r.conn(ctx).Model(&Template{}).Count(&total).Error; err != nil {
		return nil, 0, db.Classify("count templates", err)
	}
	var items []*Template
	err := r.conn(ctx).Order("is_default DESC, name ASC").Limit(limit).Offset(offset).Find(&items).Error
	if err != nil {
		return nil, 0, db.Classify("list templates", err)
	}
	return items, int(total), nil
}

func (r *templateRepoGorm) Count(ctx context.Context) (int, error) {
	var total int64
	err := r.conn(ctx).Model(&Template{}).Count(&total).Error
	return int(total), db.Classify("count templates", err)
}

func (r *templateRepoGorm) ClearDefault(ctx context.Context, keep uuid.UUID) error {
	err := r.conn(ctx).Model(&Template{}).
		Where("is_default = ? AND id <> ?", true, keep).
		Update("is_default", false).Error
	return db.Classify("clear default template", err)
}

func (r *templateRepoGorm) PromoteLatest(ctx context.Context) error {
	var t Template
	err := r.conn(ctx).Order("updated_at DESC").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return db.Classify("promote template", err)
	}
	err = r.conn(ctx).Model(&Template{}).Where("id = ?", t.ID).Update("is_default", true).Error
	return db.Classify("promote template", err)
}

// -- MedicoConfig --

type configRepoGorm struct{ db *gorm.DB }

func NewConfigRepoGorm(gdb *gorm.DB) ConfigRepository {
	return &configRepoGorm{db: gdb}
}

func (r *configRepoGorm) Get(ctx context.Context) (*MedicoConfig, error) {
	var c MedicoConfig
	if err := db.Conn(ctx, r.db).First(&c, "id = ?", configRowID).Error; err != nil {
		return nil, db.Classify("get medico config", err)
	}
	return &c, nil
}

// Save writes the single config row, inserting it on first use.
func (r *configRepoGorm) Save(ctx context.Context, c *MedicoConfig) error {
	c.ID = configRowID
	return db.Classify("save medico config", db.Conn(ctx, r.db).Save(c).Error)
}
