package analytics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/rxpad/rxpad/internal/platform/connectivity"
)

const (
	DefaultBatchSize     = 50
	DefaultSendSize      = 10
	DefaultConcurrency   = 4
	DefaultMaxRetries    = 8
	DefaultRetryBase     = 30 * time.Second
	DefaultRetryCap      = time.Hour
	DefaultFlushInterval = time.Minute

	unknownAnonymousID = "unknown"
)

// Config tunes the queue. Zero values take the defaults above.
type Config struct {
	BatchSize     int
	SendSize      int
	Concurrency   int
	MaxRetries    int
	RetryBase     time.Duration
	RetryCap      time.Duration
	FlushInterval time.Duration
	AppVersion    string
	Environment   string
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SendSize <= 0 {
		c.SendSize = DefaultSendSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryCap <= 0 {
		c.RetryCap = DefaultRetryCap
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	return c
}

// Identity supplies the install's anonymous id.
type Identity interface {
	AnonymousID(ctx context.Context) (string, error)
}

// FlushResult summarizes one flush.
type FlushResult struct {
	Attempted int    `json:"attempted"`
	Synced    int    `json:"synced"`
	Failed    int    `json:"failed"`
	Skipped   string `json:"skipped,omitempty"`
}

// Queue is the local-first metrics queue.
type Queue struct {
	store     Store
	sink      Sink
	online    connectivity.Checker
	identity  Identity
	cfg       Config
	sessionID string
	logger    zerolog.Logger
	now       func() time.Time

	flights singleflight.Group
	signal  chan struct{}
}

// NewQueue creates a Queue. A nil sink keeps every event pending.
func NewQueue(store Store, sink Sink, online connectivity.Checker, identity Identity, cfg Config, logger zerolog.Logger) *Queue {
	if online == nil {
		online = connectivity.Static(false)
	}
	return &Queue{
		store:     store,
		sink:      sink,
		online:    online,
		identity:  identity,
		cfg:       cfg.withDefaults(),
		sessionID: uuid.NewString(),
		logger:    logger.With().Str("component", "metrics").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
		signal:    make(chan struct{}, 1),
	}
}

// SessionID identifies this process run in every event it queues.
func (q *Queue) SessionID() string { return q.sessionID }

// Enqueue appends e to the local queue. When online it then wakes Run for a
// flush; the append never waits on the network.
func (q *Queue) Enqueue(ctx context.Context, e Event) error {
	if err := e.validate(); err != nil {
		return err
	}
	row := &MetricEvent{
		ID:          uuid.New(),
		Type:        e.Type,
		Name:        e.Name,
		Payload:     datatypes.JSONMap(e.Payload),
		Timestamp:   q.now(),
		AnonymousID: q.anonymousID(ctx),
		SessionID:   q.sessionID,
		AppVersion:  q.cfg.AppVersion,
		Environment: q.cfg.Environment,
	}
	if e.UserID != "" {
		uid := e.UserID
		row.UserID = &uid
	}
	if row.Payload == nil {
		row.Payload = datatypes.JSONMap{}
	}
	if err := q.store.Append(ctx, row); err != nil {
		return err
	}
	if q.online.Online() {
		q.wake()
	}
	return nil
}

func (q *Queue) anonymousID(ctx context.Context) string {
	if q.identity == nil {
		return unknownAnonymousID
	}
	id, err := q.identity.AnonymousID(ctx)
	if err != nil || id == "" {
		q.logger.Warn().Err(err).Msg("anonymous id unavailable")
		return unknownAnonymousID
	}
	return id
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Flush sends due events through the sink. Concurrent callers share a single
// in-flight flush and receive its result.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	if q.sink == nil {
		return FlushResult{Skipped: "no sink configured"}, nil
	}
	if !q.online.Online() {
		return FlushResult{Skipped: "offline"}, nil
	}
	v, err, _ := q.flights.Do("flush", func() (any, error) {
		return q.flush(context.WithoutCancel(ctx))
	})
	if err != nil {
		return FlushResult{}, err
	}
	return v.(FlushResult), nil
}

func (q *Queue) flush(ctx context.Context) (FlushResult, error) {
	due, err := q.store.Due(ctx, q.now(), q.cfg.MaxRetries, q.cfg.BatchSize)
	if err != nil {
		return FlushResult{}, err
	}
	res := FlushResult{Attempted: len(due)}
	if len(due) == 0 {
		return res, nil
	}

	var synced, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.cfg.Concurrency)
	for start := 0; start < len(due); start += q.cfg.SendSize {
		chunk := due[start:min(start+q.cfg.SendSize, len(due))]
		g.Go(func() error {
			n, err := q.sendChunk(gctx, chunk)
			if err != nil {
				return err
			}
			if n < 0 {
				failed.Add(int64(len(chunk)))
				return nil
			}
			synced.Add(n)
			return nil
		})
	}
	err = g.Wait()
	res.Synced = int(synced.Load())
	res.Failed = int(failed.Load())
	if err != nil {
		return res, err
	}
	q.logger.Debug().Int("attempted", res.Attempted).Int("synced", res.Synced).Int("failed", res.Failed).Msg("metrics flushed")
	return res, nil
}

// sendChunk returns the number of events marked synced, or -1 when the sink
// rejected the chunk. Only store failures are returned as errors.
func (q *Queue) sendChunk(ctx context.Context, chunk []MetricEvent) (int64, error) {
	wire := make([]WireEvent, len(chunk))
	ids := make([]uuid.UUID, len(chunk))
	for i, e := range chunk {
		wire[i] = e.Wire()
		ids[i] = e.ID
	}

	sendErr := q.sink.Send(ctx, wire)
	now := q.now()
	if sendErr == nil {
		return q.store.MarkSynced(ctx, ids, now)
	}

	q.logger.Warn().Err(sendErr).Int("events", len(chunk)).Msg("metrics sync failed")
	reason := sendErr.Error()
	for _, e := range chunk {
		next := now.Add(Backoff(e.RetryCount+1, q.cfg.RetryBase, q.cfg.RetryCap))
		if err := q.store.MarkFailed(ctx, e.ID, reason, next); err != nil {
			return 0, err
		}
	}
	return -1, nil
}

// Backoff is the delay before attempt number retry (1-based): base doubled per
// earlier failure, capped at limit.
func Backoff(retry int, base, limit time.Duration) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := base
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	return min(d, limit)
}

// Run flushes on every trigger until ctx is done: the periodic ticker, an
// enqueue while online, and regained connectivity.
func (q *Queue) Run(ctx context.Context, regained <-chan struct{}) {
	ticker := time.NewTicker(q.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		var trigger string
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trigger = "interval"
		case <-q.signal:
			trigger = "enqueue"
		case <-regained:
			trigger = "online"
		}
		res, err := q.Flush(ctx)
		if err != nil {
			q.logger.Error().Err(err).Str("trigger", trigger).Msg("metrics flush failed")
			continue
		}
		if res.Attempted > 0 {
			q.logger.Info().Str("trigger", trigger).Int("synced", res.Synced).Int("failed", res.Failed).Msg("metrics flush")
		}
	}
}

// Stats reports queue counts.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.Stats(ctx, q.cfg.MaxRetries)
}
