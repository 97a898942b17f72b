package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

// Sink delivers a batch of events to the remote ingestion side. A returned
// error fails the whole batch; every event in it is retried later.
type Sink interface {
	Send(ctx context.Context, events []WireEvent) error
}

// HTTPSink posts batches as a JSON array to an ingestion endpoint.
type HTTPSink struct {
	client   *resty.Client
	endpoint string
}

// NewHTTPSink creates an HTTPSink. apiKey, when set, is sent as a bearer token.
func NewHTTPSink(endpoint, apiKey string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HTTPSink{client: client, endpoint: endpoint}
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, events []WireEvent) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(events).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("post metric events: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("post metric events: unexpected status %d", resp.StatusCode())
	}
	return nil
}

// BatchSender is the part of pgxpool.Pool the Postgres sink needs.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresSink inserts events into the remote metric_events table. Inserts
// are keyed by event id so a resent event is ignored.
type PostgresSink struct {
	pool  BatchSender
	table string
}

// NewPostgresSink creates a PostgresSink writing to schema.metric_events.
func NewPostgresSink(pool BatchSender, schema string) *PostgresSink {
	return &PostgresSink{
		pool:  pool,
		table: pgx.Identifier{schema, "metric_events"}.Sanitize(),
	}
}

// Send implements Sink.
func (s *PostgresSink) Send(ctx context.Context, events []WireEvent) error {
	query := `INSERT INTO ` + s.table + ` (id, event_type, event_name, payload, anonymous_id, user_id,
    session_id, timestamp, app_version, environment)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("encode payload of %s: %w", e.ID, err)
		}
		batch.Queue(query, e.ID.String(), string(e.EventType), e.EventName, payload, e.AnonymousID,
			e.UserID, e.SessionID, e.Timestamp, e.AppVersion, e.Environment)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert metric event: %w", err)
		}
	}
	return br.Close()
}

// MessageWriter is the part of kafka.Writer the Kafka sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per event, keyed by the event id.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaWriter builds the writer used by KafkaSink.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaSink creates a KafkaSink.
func NewKafkaSink(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, events []WireEvent) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode metric event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.ID.String()),
			Value: value,
			Time:  e.Timestamp,
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish metric events: %w", err)
	}
	return nil
}

// Close releases the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
