// Package connectivity tracks whether the remote side is reachable and
// signals when connectivity is regained.
package connectivity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Checker reports the current online state.
type Checker interface {
	Online() bool
}

// Config controls the reachability check.
type Config struct {
	// CheckURL is requested with HEAD; any response below 500 counts as online.
	// Empty disables probing and the state only changes through Set.
	CheckURL string
	Interval time.Duration
	Timeout  time.Duration
	// InitiallyOnline is the state before the first check.
	InitiallyOnline bool
}

// Monitor polls CheckURL and keeps an online flag.
type Monitor struct {
	client   *resty.Client
	cfg      Config
	online   atomic.Bool
	regained chan struct{}
	logger   zerolog.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(cfg Config, logger zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	m := &Monitor{
		client:   resty.New().SetTimeout(cfg.Timeout),
		cfg:      cfg,
		regained: make(chan struct{}, 1),
		logger:   logger.With().Str("component", "connectivity").Logger(),
	}
	m.online.Store(cfg.InitiallyOnline)
	return m
}

// Online implements Checker.
func (m *Monitor) Online() bool { return m.online.Load() }

// Regained delivers a signal each time the state flips from offline to online.
// Signals coalesce while unconsumed.
func (m *Monitor) Regained() <-chan struct{} { return m.regained }

// Set forces the state, signalling Regained on an offline to online flip.
func (m *Monitor) Set(online bool) {
	was := m.online.Swap(online)
	if was == online {
		return
	}
	m.logger.Info().Bool("online", online).Msg("connectivity changed")
	if online {
		select {
		case m.regained <- struct{}{}:
		default:
		}
	}
}

// Check performs one reachability check and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.cfg.CheckURL == "" {
		return m.Online()
	}
	resp, err := m.client.R().SetContext(ctx).Head(m.cfg.CheckURL)
	online := err == nil && resp.StatusCode() < 500
	if err != nil {
		m.logger.Debug().Err(err).Msg("connectivity check failed")
	}
	m.Set(online)
	return online
}

// Run checks on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.cfg.CheckURL == "" {
		return
	}
	m.Check(ctx)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Static is a fixed Checker.
type Static bool

// Online implements Checker.
func (s Static) Online() bool { return bool(s) }
