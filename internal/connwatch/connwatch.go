// Package connwatch watches the chat model endpoint while a session is
// open. A local Ollama is often still starting, or loading a model, when
// the chat begins, and may be restarted mid-session; the chat consults
// the watcher before each turn so it can tell the user why a reply is
// slow to arrive instead of sitting silent.
//
// A Watcher probes in two phases:
//  1. Startup: exponential backoff (1s, 2s, 4s, ... capped at 15s)
//  2. Background: periodic polling (every 30s) with state-transition callbacks
//
// This is distinct from httpkit's transport-level retry, which only
// covers a refused dial within a single request.
package connwatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// State is the last known health of the watched endpoint.
type State int

// Endpoint states. A watcher starts Unknown until the first probe returns.
const (
	StateUnknown State = iota
	StateUp
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

// BackoffConfig controls probe timing.
type BackoffConfig struct {
	// InitialDelay is the delay before the first retry (default: 1s).
	InitialDelay time.Duration
	// MaxDelay caps backoff growth (default: 15s).
	MaxDelay time.Duration
	// Multiplier scales the delay after each retry (default: 2.0).
	Multiplier float64
	// MaxRetries bounds startup probe attempts (default: 6).
	MaxRetries int
	// PollInterval is the background check interval (default: 30s).
	PollInterval time.Duration
	// ProbeTimeout limits each probe (default: 5s).
	ProbeTimeout time.Duration
}

// DefaultBackoffConfig returns 1s, 2s, 4s, 8s, 15s (capped) with six
// startup attempts and 30-second background polling.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: time.Second,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
		MaxRetries:   6,
		PollInterval: 30 * time.Second,
		ProbeTimeout: 5 * time.Second,
	}
}

// Config configures a Watcher.
type Config struct {
	// Name identifies the endpoint in logs (e.g., "ollama").
	Name string
	// Probe checks endpoint health. Must be safe for concurrent use.
	Probe ProbeFunc
	// Backoff controls probe timing. Zero fields take defaults.
	Backoff BackoffConfig
	// OnUp is called when the endpoint becomes reachable. Called in a
	// separate goroutine. Optional.
	OnUp func()
	// OnDown is called when a reachable endpoint stops answering, and
	// when startup probing gives up. Called in a separate goroutine.
	// Optional.
	OnDown func(err error)
	Logger *slog.Logger
}

// Status is a point-in-time view of a Watcher.
type Status struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher monitors a single endpoint.
type Watcher struct {
	cfg    Config
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	state     State
	lastErr   error
	lastCheck time.Time
}

// Watch starts a watcher that runs until ctx is cancelled or Stop is
// called. It panics if Name is empty or Probe is nil.
func Watch(ctx context.Context, cfg Config) *Watcher {
	if cfg.Name == "" {
		panic("connwatch: Config.Name must not be empty")
	}
	if cfg.Probe == nil {
		panic("connwatch: Config.Probe must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "connwatch", "endpoint", cfg.Name)

	d := DefaultBackoffConfig()
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff.InitialDelay = d.InitialDelay
	}
	if cfg.Backoff.MaxDelay <= 0 {
		cfg.Backoff.MaxDelay = d.MaxDelay
	}
	if cfg.Backoff.Multiplier <= 0 {
		cfg.Backoff.Multiplier = d.Multiplier
	}
	if cfg.Backoff.MaxRetries <= 0 {
		cfg.Backoff.MaxRetries = d.MaxRetries
	}
	if cfg.Backoff.PollInterval <= 0 {
		cfg.Backoff.PollInterval = d.PollInterval
	}
	if cfg.Backoff.ProbeTimeout <= 0 {
		cfg.Backoff.ProbeTimeout = d.ProbeTimeout
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{cfg: cfg, cancel: cancel, done: make(chan struct{})}
	go w.run(watchCtx)
	return w
}

// State returns the last known endpoint state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastError returns the most recent probe error, or nil if healthy.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Status returns the current health status.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{Name: w.cfg.Name, State: w.state.String(), LastCheck: w.lastCheck}
	if w.lastErr != nil {
		s.LastError = w.lastErr.Error()
	}
	return s
}

// Stop cancels the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	b := w.cfg.Backoff
	logger := w.cfg.Logger

	delay := b.InitialDelay
	for attempt := 1; attempt <= b.MaxRetries; attempt++ {
		err := w.probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			w.transition(StateUp, nil)
			logger.Debug("endpoint reachable", "after_attempts", attempt)
			break
		}
		w.record(err)
		if attempt == b.MaxRetries {
			w.transition(StateDown, err)
			logger.Warn("endpoint unreachable, polling in background", "attempts", attempt, "error", err)
			break
		}
		logger.Debug("startup probe failed, retrying",
			"attempt", attempt,
			"next_delay", delay.String(),
			"error", err,
		)
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = time.Duration(float64(delay) * b.Multiplier)
		if delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}

	ticker := time.NewTicker(b.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := w.probe(ctx)
			if ctx.Err() != nil {
				return
			}
			if err == nil {
				w.transition(StateUp, nil)
			} else {
				w.transition(StateDown, err)
			}
		}
	}
}

// transition records a probe result and fires the callback matching a
// change of state.
func (w *Watcher) transition(to State, err error) {
	w.mu.Lock()
	from := w.state
	w.state = to
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()

	if from == to {
		return
	}
	switch to {
	case StateUp:
		if from == StateDown {
			w.cfg.Logger.Info("endpoint recovered")
		}
		if w.cfg.OnUp != nil {
			go w.cfg.OnUp()
		}
	case StateDown:
		if w.cfg.OnDown != nil {
			go w.cfg.OnDown(err)
		}
	}
}

// record stores a failed startup probe without changing state, so the
// watcher stays Unknown while backoff is still in progress.
func (w *Watcher) record(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.lastCheck = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.cfg.Backoff.ProbeTimeout)
	defer cancel()
	return w.cfg.Probe(probeCtx)
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
