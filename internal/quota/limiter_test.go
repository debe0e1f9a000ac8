package quota

import (
	"context"
	"testing"
	"time"

	"chatgate/internal/config"
	"chatgate/internal/logger"
	"chatgate/internal/model"

	"github.com/stretchr/testify/assert"
)

var testDefaults = config.LimitsConfig{PerMinute: 60, PerHour: 1000, PerDay: 10000}

func newTestLimiter(store CounterStore) *Limiter {
	return NewLimiter(store, testDefaults, logger.New(false))
}

func TestLimitsFor(t *testing.T) {
	// No overrides: defaults apply.
	l := LimitsFor(&model.Credential{}, testDefaults)
	assert.Equal(t, Limits{PerMinute: 60, PerHour: 1000, PerDay: 10000}, l)

	// Partial overrides: only the set windows change.
	l = LimitsFor(&model.Credential{PerMinute: 5}, testDefaults)
	assert.Equal(t, Limits{PerMinute: 5, PerHour: 1000, PerDay: 10000}, l)

	l = LimitsFor(&model.Credential{PerMinute: 5, PerHour: 50, PerDay: 500}, testDefaults)
	assert.Equal(t, Limits{PerMinute: 5, PerHour: 50, PerDay: 500}, l)
}

func TestCheckAndReserveEnforcesMinuteLimit(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())
	cred := &model.Credential{ID: "cred-1", PerMinute: 2}
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	// Two requests in the same minute pass.
	for i := 0; i < 2; i++ {
		decision, err := limiter.CheckAndReserve(context.Background(), cred, now)
		assert.NoError(t, err)
		assert.True(t, decision.Allowed)
	}

	// The third in that minute is rejected, naming the minute window.
	decision, err := limiter.CheckAndReserve(context.Background(), cred, now.Add(10*time.Second))
	assert.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, WindowMinute, decision.RetryWindow)

	// Once the minute rolls over, requests pass again.
	decision, err = limiter.CheckAndReserve(context.Background(), cred, now.Add(time.Minute))
	assert.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestCheckAndReserveRejectionDoesNotConsume(t *testing.T) {
	store := NewMemoryStore()
	limiter := newTestLimiter(store)
	cred := &model.Credential{ID: "cred-1", PerMinute: 1}
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	_, err := limiter.CheckAndReserve(context.Background(), cred, now)
	assert.NoError(t, err)

	// Repeated rejections leave the counters untouched.
	for i := 0; i < 5; i++ {
		decision, err := limiter.CheckAndReserve(context.Background(), cred, now)
		assert.NoError(t, err)
		assert.False(t, decision.Allowed)
	}

	counts, err := store.Counts(context.Background(), []string{BucketKey("cred-1", WindowMinute, now)})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), counts[0])

	// Hour and day counters were not consumed by the rejections either.
	counts, err = store.Counts(context.Background(), []string{
		BucketKey("cred-1", WindowHour, now),
		BucketKey("cred-1", WindowDay, now),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), counts[0])
	assert.Equal(t, int64(1), counts[1])
}

func TestCheckAndReserveReportsSoonestWindow(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())
	// Minute and hour are both exhausted after one request; the minute
	// window is reported because it recovers first.
	cred := &model.Credential{ID: "cred-1", PerMinute: 1, PerHour: 1}
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	_, err := limiter.CheckAndReserve(context.Background(), cred, now)
	assert.NoError(t, err)

	decision, err := limiter.CheckAndReserve(context.Background(), cred, now)
	assert.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, WindowMinute, decision.RetryWindow)
}

func TestCheckAndReserveWindowStatuses(t *testing.T) {
	limiter := newTestLimiter(NewMemoryStore())
	cred := &model.Credential{ID: "cred-1", PerMinute: 10}
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	decision, err := limiter.CheckAndReserve(context.Background(), cred, now)
	assert.NoError(t, err)
	assert.Len(t, decision.Windows, 3)

	minute := decision.Windows[0]
	assert.Equal(t, WindowMinute, minute.Window)
	assert.Equal(t, 10, minute.Limit)
	assert.Equal(t, int64(1), minute.Used)
	assert.Equal(t, int64(9), minute.Remaining)
	assert.Equal(t, now.Add(time.Minute), minute.ResetAt)
}

func TestUsageDoesNotConsume(t *testing.T) {
	store := NewMemoryStore()
	limiter := newTestLimiter(store)
	cred := &model.Credential{ID: "cred-1"}
	now := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	_, err := limiter.CheckAndReserve(context.Background(), cred, now)
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		windows, err := limiter.Usage(context.Background(), cred, now)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), windows[0].Used)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()

	count, err := store.Increment(context.Background(), "k", 10*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	time.Sleep(20 * time.Millisecond)

	counts, err := store.Counts(context.Background(), []string{"k"})
	assert.NoError(t, err)
	assert.Equal(t, int64(0), counts[0])

	// An increment after expiry restarts the counter.
	count, err = store.Increment(context.Background(), "k", time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
