package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/segmentio/kafka-go"
)

func sampleWire() []WireEvent {
	uid := "dr-1"
	return []WireEvent{{
		ID:          uuid.New(),
		EventType:   TypeUserAction,
		EventName:   "prescription_created",
		Payload:     map[string]any{"lines": 2},
		AnonymousID: "anon-1",
		UserID:      &uid,
		SessionID:   "sess-1",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		AppVersion:  "1.0.0",
		Environment: "production",
	}}
}

func TestHTTPSink_PostsWireShape(t *testing.T) {
	var got []map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "secret", time.Second)
	if err := sink.Send(context.Background(), sampleWire()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("expected bearer api key, got %q", auth)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	for _, field := range []string{"event_type", "event_name", "payload", "anonymous_id", "user_id", "session_id", "timestamp", "app_version", "environment"} {
		if _, ok := got[0][field]; !ok {
			t.Errorf("missing wire field %q", field)
		}
	}
	if _, ok := got[0]["id"]; ok {
		t.Error("local id must not be part of the wire shape")
	}
}

func TestHTTPSink_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewHTTPSink(srv.URL, "", time.Second)
	if err := sink.Send(context.Background(), sampleWire()); err == nil {
		t.Error("expected error on 502")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink_KeysByEventID(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSink(w)
	events := sampleWire()

	if err := sink.Send(context.Background(), events); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != events[0].ID.String() {
		t.Errorf("unexpected key %q", w.msgs[0].Key)
	}
	var body map[string]any
	if err := json.Unmarshal(w.msgs[0].Value, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["event_name"] != "prescription_created" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestKafkaSink_WriteError(t *testing.T) {
	sink := NewKafkaSink(&fakeWriter{err: errors.New("broker down")})
	if err := sink.Send(context.Background(), sampleWire()); err == nil {
		t.Error("expected publish error")
	}
}

type fakeBatchResults struct {
	n   int
	err error
}

func (f *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	f.n++
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}
func (f *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (f *fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (f *fakeBatchResults) Close() error             { return nil }

type fakePool struct {
	batch   *pgx.Batch
	results *fakeBatchResults
}

func (p *fakePool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	p.batch = b
	return p.results
}

func TestPostgresSink_QueuesIdempotentInserts(t *testing.T) {
	pool := &fakePool{results: &fakeBatchResults{}}
	sink := NewPostgresSink(pool, "rxpad_metrics")
	events := append(sampleWire(), sampleWire()...)

	if err := sink.Send(context.Background(), events); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pool.batch.Len() != 2 || pool.results.n != 2 {
		t.Fatalf("expected 2 queued inserts, got %d/%d", pool.batch.Len(), pool.results.n)
	}
	q := pool.batch.QueuedQueries[0]
	if !strings.Contains(q.SQL, `"rxpad_metrics"."metric_events"`) || !strings.Contains(q.SQL, "ON CONFLICT (id) DO NOTHING") {
		t.Errorf("unexpected statement %s", q.SQL)
	}
	if q.Arguments[0] != events[0].ID.String() {
		t.Errorf("expected event id as first argument, got %v", q.Arguments[0])
	}
}

func TestPostgresSink_ExecError(t *testing.T) {
	pool := &fakePool{results: &fakeBatchResults{err: errors.New("relation does not exist")}}
	sink := NewPostgresSink(pool, "rxpad_metrics")
	if err := sink.Send(context.Background(), sampleWire()); err == nil {
		t.Error("expected insert error")
	}
}
