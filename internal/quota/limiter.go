package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatgate/internal/config"
	"chatgate/internal/model"
)

// Limits are the effective per-window ceilings for a credential.
type Limits struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
}

// LimitsFor resolves a credential's limits, substituting the process-wide
// defaults for any window the credential leaves unset.
func LimitsFor(cred *model.Credential, defaults config.LimitsConfig) Limits {
	l := Limits{
		PerMinute: cred.PerMinute,
		PerHour:   cred.PerHour,
		PerDay:    cred.PerDay,
	}
	if l.PerMinute <= 0 {
		l.PerMinute = defaults.PerMinute
	}
	if l.PerHour <= 0 {
		l.PerHour = defaults.PerHour
	}
	if l.PerDay <= 0 {
		l.PerDay = defaults.PerDay
	}
	return l
}

func (l Limits) forWindow(w Window) int {
	switch w {
	case WindowMinute:
		return l.PerMinute
	case WindowHour:
		return l.PerHour
	default:
		return l.PerDay
	}
}

// WindowStatus is the counter snapshot for one window.
type WindowStatus struct {
	Window    Window    `json:"window"`
	Limit     int       `json:"limit"`
	Used      int64     `json:"used"`
	Remaining int64     `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Decision is the limiter's verdict for one request.
type Decision struct {
	Allowed bool
	// RetryWindow names the violated window when Allowed is false. When
	// several windows are exceeded at once, the first in minute, hour,
	// day order is reported; it is the one that recovers soonest.
	RetryWindow Window
	Windows     []WindowStatus
}

// Limiter enforces per-credential request quotas against a shared
// counter store.
type Limiter struct {
	store    CounterStore
	defaults config.LimitsConfig
	logger   *slog.Logger
}

func NewLimiter(store CounterStore, defaults config.LimitsConfig, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:    store,
		defaults: defaults,
		logger:   logger.With("component", "limiter"),
	}
}

// CheckAndReserve reads the three current window counters and, if none is
// at its ceiling, increments all three. Rejected requests never increment.
//
// The read-then-increment sequence is deliberately not atomic across
// concurrent requests: a burst may transiently exceed a limit by a small
// margin. The limiter is advisory and does not refund requests that fail
// downstream.
func (l *Limiter) CheckAndReserve(ctx context.Context, cred *model.Credential, now time.Time) (*Decision, error) {
	limits := LimitsFor(cred, l.defaults)

	keys := make([]string, len(Windows))
	for i, w := range Windows {
		keys[i] = BucketKey(cred.ID, w, now)
	}
	counts, err := l.store.Counts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota counters: %w", err)
	}

	statuses := make([]WindowStatus, len(Windows))
	for i, w := range Windows {
		statuses[i] = status(w, limits.forWindow(w), counts[i], now)
	}

	for i, w := range Windows {
		if counts[i] >= int64(limits.forWindow(w)) {
			return &Decision{Allowed: false, RetryWindow: w, Windows: statuses}, nil
		}
	}

	for i, w := range Windows {
		count, err := l.store.Increment(ctx, keys[i], TTL(w))
		if err != nil {
			// A partial increment leaves the windows slightly out of
			// step until the short buckets expire. Accepted: the store
			// is eventually consistent and the limiter advisory.
			l.logger.Warn("Failed to increment quota counter", "window", string(w), "error", err)
			continue
		}
		statuses[i] = status(w, limits.forWindow(w), count, now)
	}

	return &Decision{Allowed: true, Windows: statuses}, nil
}

// Usage returns the current counter snapshot without reserving.
func (l *Limiter) Usage(ctx context.Context, cred *model.Credential, now time.Time) ([]WindowStatus, error) {
	limits := LimitsFor(cred, l.defaults)

	keys := make([]string, len(Windows))
	for i, w := range Windows {
		keys[i] = BucketKey(cred.ID, w, now)
	}
	counts, err := l.store.Counts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota counters: %w", err)
	}

	statuses := make([]WindowStatus, len(Windows))
	for i, w := range Windows {
		statuses[i] = status(w, limits.forWindow(w), counts[i], now)
	}
	return statuses, nil
}

func status(w Window, limit int, count int64, now time.Time) WindowStatus {
	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}
	return WindowStatus{
		Window:    w,
		Limit:     limit,
		Used:      count,
		Remaining: remaining,
		ResetAt:   ResetAt(w, now),
	}
}
