// Package analytics is the local metrics queue. Events are appended to the
// local store first and synced to a remote Sink whenever the device is online.
package analytics

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/rxpad/rxpad/internal/platform/apierr"
)

// EventType classifies a metric event.
type EventType string

const (
	TypeError       EventType = "error"
	TypePerformance EventType = "performance"
	TypeUserAction  EventType = "user_action"
	TypeMarketing   EventType = "marketing"
	TypeTechnical   EventType = "technical"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case TypeError, TypePerformance, TypeUserAction, TypeMarketing, TypeTechnical:
		return true
	}
	return false
}

// Event is what callers enqueue.
type Event struct {
	Type    EventType      `json:"type"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
	UserID  string         `json:"user_id,omitempty"`
}

func (e Event) validate() error {
	if !e.Type.Valid() {
		return apierr.Validation("unknown event type %q", e.Type)
	}
	if e.Name == "" {
		return apierr.Validation("event name is required")
	}
	return nil
}

// MetricEvent is the locally queued row. It moves from pending (Synced=false)
// to synced exactly once and is never deleted.
type MetricEvent struct {
	ID            uuid.UUID         `gorm:"type:text;primaryKey" json:"id"`
	Type          EventType         `gorm:"not null;index" json:"type"`
	Name          string            `gorm:"not null" json:"name"`
	Payload       datatypes.JSONMap `json:"payload"`
	Timestamp     time.Time         `gorm:"not null;index" json:"timestamp"`
	AnonymousID   string            `gorm:"not null" json:"anonymous_id"`
	SessionID     string            `gorm:"not null" json:"session_id"`
	UserID        *string           `json:"user_id,omitempty"`
	AppVersion    string            `json:"app_version"`
	Environment   string            `json:"environment"`
	Synced        bool              `gorm:"not null;default:false;index:idx_metric_events_pending,priority:1" json:"synced"`
	RetryCount    int               `gorm:"not null;default:0" json:"retry_count"`
	LastError     *string           `json:"last_error,omitempty"`
	NextAttemptAt *time.Time        `gorm:"index:idx_metric_events_pending,priority:2" json:"next_attempt_at,omitempty"`
	SyncedAt      *time.Time        `json:"synced_at,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func (MetricEvent) TableName() string { return "metric_events" }

// WireEvent is the ingestion contract shared by every Sink. The field names
// must not change.
type WireEvent struct {
	ID          uuid.UUID      `json:"-"`
	EventType   EventType      `json:"event_type"`
	EventName   string         `json:"event_name"`
	Payload     map[string]any `json:"payload"`
	AnonymousID string         `json:"anonymous_id"`
	UserID      *string        `json:"user_id,omitempty"`
	SessionID   string         `json:"session_id"`
	Timestamp   time.Time      `json:"timestamp"`
	AppVersion  string         `json:"app_version"`
	Environment string         `json:"environment"`
}

// Wire converts a queued row to its ingestion shape.
func (m MetricEvent) Wire() WireEvent {
	payload := map[string]any(m.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return WireEvent{
		ID:          m.ID,
		EventType:   m.Type,
		EventName:   m.Name,
		Payload:     payload,
		AnonymousID: m.AnonymousID,
		UserID:      m.UserID,
		SessionID:   m.SessionID,
		Timestamp:   m.Timestamp,
		AppVersion:  m.AppVersion,
		Environment: m.Environment,
	}
}

// Stats counts queued events by state.
type Stats struct {
	Pending   int64 `json:"pending"`
	Synced    int64 `json:"synced"`
	Exhausted int64 `json:"exhausted"`
}

// Models lists the gorm models owned by this package.
func Models() []any {
	return []any{&MetricEvent{}}
}
