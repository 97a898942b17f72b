package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/db"
)

// Store persists the local queue.
type Store interface {
	Append(ctx context.Context, e *MetricEvent) error
	// Due returns pending events ready for another attempt, oldest first.
	Due(ctx context.Context, now time.Time, maxRetries, limit int) ([]MetricEvent, error)
	// MarkSynced flips pending events to synced and returns how many changed.
	// Events already synced are left untouched.
	MarkSynced(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, next time.Time) error
	Stats(ctx context.Context, maxRetries int) (Stats, error)
}

type storeGorm struct{ db *gorm.DB }

// NewStoreGorm returns the local-store Store.
func NewStoreGorm(gdb *gorm.DB) Store {
	return &storeGorm{db: gdb}
}

func (s *storeGorm) conn(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, s.db)
}

func (s *storeGorm) Append(ctx context.Context, e *MetricEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return db.Classify("append metric event", s.conn(ctx).Create(e).Error)
}

func (s *storeGorm) Due(ctx context.Context, now time.Time, maxRetries, limit int) ([]MetricEvent, error) {
	var out []MetricEvent
	err := s.conn(ctx).
		Where("synced = ?", false).
		Where("retry_count < ?", maxRetries).
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now).
		Order("timestamp ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, db.Classify("select due metric events", err)
	}
	return out, nil
}

func (s *storeGorm) MarkSynced(ctx context.Context, ids []uuid.UUID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.conn(ctx).Model(&MetricEvent{}).
		Where("id IN ? AND synced = ?", ids, false).
		Updates(map[string]any{"synced": true, "synced_at": at, "last_error": nil})
	if res.Error != nil {
		return 0, db.Classify("mark metric events synced", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *storeGorm) MarkFailed(ctx context.Context, id uuid.UUID, reason string, next time.Time) error {
	err := s.conn(ctx).Model(&MetricEvent{}).
		Where("id = ? AND synced = ?", id, false).
		Updates(map[string]any{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_error":      reason,
			"next_attempt_at": next,
		}).Error
	return db.Classify("mark metric event failed", err)
}

func (s *storeGorm) Stats(ctx context.Context, maxRetries int) (Stats, error) {
	var rows []struct {
		Synced    bool
		Exhausted bool
		N         int64
	}
	err := s.conn(ctx).Model(&MetricEvent{}).
		Select("synced, (synced = ? AND retry_count >= ?) AS exhausted, COUNT(*) AS n", false, maxRetries).
		Group("synced, exhausted").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, db.Classify("metric queue stats", err)
	}
	var st Stats
	for _, r := range rows {
		switch {
		case r.Synced:
			st.Synced += r.N
		case r.Exhausted:
			st.Exhausted += r.N
		default:
			st.Pending += r.N
		}
	}
	return st, nil
}
