// Package ratelimit provides a per-caller sliding window rate limiter for
// admission control at the gateway edge.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRateLimited is returned by callers when a request is rejected
var ErrRateLimited = errors.New("rate limit exceeded")

// Config holds rate limiter configuration
type Config struct {
	MaxRequests   int           // Requests admitted per key within a window
	Window        time.Duration // Sliding window length
	SweepInterval time.Duration // How often idle per-key windows are reclaimed
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxRequests:   100,
		Window:        1 * time.Second,
		SweepInterval: 1 * time.Minute,
	}
}

// window holds the admission timestamps for one key. A window marked dead has
// been reclaimed by the sweeper and must not be written to; callers that race
// with reclamation re-fetch from the map.
type window struct {
	mu         sync.Mutex
	timestamps []time.Time
	dead       bool
}

// Stats is a snapshot of limiter counters
type Stats struct {
	ActiveKeys int    `json:"activeKeys"`
	Allowed    uint64 `json:"allowed"`
	Rejected   uint64 `json:"rejected"`
}

// SlidingWindowLimiter admits at most MaxRequests per key within any Window.
// Only admitted requests consume quota; rejections leave the window untouched
// so a saturated caller recovers as soon as its oldest admission ages out.
type SlidingWindowLimiter struct {
	config *Config
	logger *slog.Logger

	mu      sync.RWMutex
	windows map[string]*window

	allowed  atomic.Uint64
	rejected atomic.Uint64

	runMu     sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}

	now func() time.Time
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter
func NewSlidingWindowLimiter(config *Config, logger *slog.Logger) *SlidingWindowLimiter {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SlidingWindowLimiter{
		config:    config,
		logger:    logger,
		windows:   make(map[string]*window),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		now:       time.Now,
	}
}

// Allow reports whether a request for the given key is admitted right now.
// An admitted request is recorded against the key's window.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	for {
		w := l.getWindow(key)

		w.mu.Lock()
		if w.dead {
			// Reclaimed between lookup and lock; the map has forgotten
			// this window, so start over with a fresh one.
			w.mu.Unlock()
			continue
		}

		now := l.now()
		l.prune(w, now)

		if len(w.timestamps) >= l.config.MaxRequests {
			w.mu.Unlock()
			l.rejected.Add(1)
			return false
		}

		w.timestamps = append(w.timestamps, now)
		w.mu.Unlock()
		l.allowed.Add(1)
		return true
	}
}

// Config returns the limiter configuration
func (l *SlidingWindowLimiter) Config() *Config {
	return l.config
}

// Stats returns a snapshot of limiter counters
func (l *SlidingWindowLimiter) Stats() Stats {
	l.mu.RLock()
	active := len(l.windows)
	l.mu.RUnlock()

	return Stats{
		ActiveKeys: active,
		Allowed:    l.allowed.Load(),
		Rejected:   l.rejected.Load(),
	}
}

// Start starts the background sweeper that reclaims idle per-key windows
func (l *SlidingWindowLimiter) Start(ctx context.Context) error {
	l.runMu.Lock()
	if l.running {
		l.runMu.Unlock()
		return fmt.Errorf("rate limiter sweeper already running")
	}
	l.running = true
	l.runMu.Unlock()

	l.logger.Info("Starting rate limiter sweeper",
		"interval", l.config.SweepInterval,
		"maxRequests", l.config.MaxRequests,
		"window", l.config.Window,
	)

	go l.run(ctx)
	return nil
}

// Stop stops the background sweeper
func (l *SlidingWindowLimiter) Stop() error {
	l.runMu.Lock()
	if !l.running {
		l.runMu.Unlock()
		return fmt.Errorf("rate limiter sweeper not running")
	}
	l.runMu.Unlock()

	close(l.stopCh)
	<-l.stoppedCh

	l.runMu.Lock()
	l.running = false
	l.runMu.Unlock()

	l.logger.Info("Rate limiter sweeper stopped")
	return nil
}

// IsRunning returns whether the sweeper is running
func (l *SlidingWindowLimiter) IsRunning() bool {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	return l.running
}

// run is the sweeper loop
func (l *SlidingWindowLimiter) run(ctx context.Context) {
	defer close(l.stoppedCh)

	ticker := time.NewTicker(l.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sweep reclaims windows whose admissions have all aged out
func (l *SlidingWindowLimiter) sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		w.mu.Lock()
		l.prune(w, now)
		if len(w.timestamps) == 0 {
			w.dead = true
			delete(l.windows, key)
			removed++
		}
		w.mu.Unlock()
	}

	if removed > 0 {
		l.logger.Debug("Rate limiter reclaimed idle windows",
			"removed", removed,
			"active", len(l.windows),
		)
	}
}

// getWindow returns the window for a key, creating it on first use
func (l *SlidingWindowLimiter) getWindow(key string) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.windows[key]; ok {
		return w
	}

	w = &window{}
	l.windows[key] = w
	return w
}

// prune drops timestamps that have aged out of the window. An admission at
// time t stops counting once now-t reaches the window length, so a caller at
// the limit is readmitted exactly one window after its oldest admission.
// Callers must hold w.mu.
func (l *SlidingWindowLimiter) prune(w *window, now time.Time) {
	i := 0
	for i < len(w.timestamps) && now.Sub(w.timestamps[i]) >= l.config.Window {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}
