package server

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is the longest the watchdog goes between checks.
const DefaultPollInterval = 30 * time.Second

// WatchdogState is the lifecycle of the idle watchdog.
type WatchdogState int32

const (
	WatchdogRunning WatchdogState = iota
	WatchdogShuttingDown
)

func (s WatchdogState) String() string {
	switch s {
	case WatchdogRunning:
		return "Running"
	case WatchdogShuttingDown:
		return "ShuttingDown"
	default:
		return "Unknown"
	}
}

// Watchdog ends the server once no request has arrived for the idle timeout.
type Watchdog struct {
	activity *Activity
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	state    atomic.Int32
	logger   *zap.Logger
}

// NewWatchdog returns a watchdog polling activity every interval. A zero
// interval means DefaultPollInterval.
func NewWatchdog(activity *Activity, timeout, interval time.Duration, logger *zap.Logger) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watchdog{
		activity: activity,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// State returns the current watchdog state.
func (w *Watchdog) State() WatchdogState {
	return WatchdogState(w.state.Load())
}

// Check reports whether the server has been idle for at least the timeout
// at now, moving the watchdog to ShuttingDown when it has. Once shutting
// down it stays there.
func (w *Watchdog) Check(now time.Time) bool {
	if w.State() == WatchdogShuttingDown {
		return true
	}
	idle := w.activity.IdleFor(now)
	if idle < w.timeout {
		return false
	}
	w.state.Store(int32(WatchdogShuttingDown))
	w.logger.Info("no requests received within the idle timeout, shutting down",
		zap.Duration("timeout", w.timeout), zap.Duration("idle", idle))
	return true
}

// nextCheck returns how long to wait before the next check: the poll
// interval, or less when the idle deadline falls inside it.
func (w *Watchdog) nextCheck(now time.Time) time.Duration {
	wait := w.activity.LastRequest().Add(w.timeout).Sub(now)
	if wait > w.interval {
		return w.interval
	}
	if wait < 0 {
		return 0
	}
	return wait
}

// Run checks for idleness immediately, then at most one poll interval apart
// and exactly at the idle deadline. It returns nil when the idle timeout is
// reached, or the context error if ctx ends first.
func (w *Watchdog) Run(ctx context.Context) error {
	if w.Check(w.now()) {
		return nil
	}
	timer := time.NewTimer(w.nextCheck(w.now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			now := w.now()
			if w.Check(now) {
				return nil
			}
			timer.Reset(w.nextCheck(now))
		}
	}
}
