package crashmover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/crashreport"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/retry"
)

type fakeStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []string
}

func (f *fakeStore) Save(ctx context.Context, report *crashreport.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("store unavailable")
	}
	f.saved = append(f.saved, report.CrashID)
	return nil
}

type fakePublish struct {
	mu        sync.Mutex
	failures  int
	calls     int
	published []string
}

func (f *fakePublish) Publish(ctx context.Context, crashID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return errors.New("queue unavailable")
	}
	f.published = append(f.published, crashID)
	return nil
}

func fastRetryConfig() retry.Config {
	return retry.Config{MaxAttempts: 3, Sleep: time.Millisecond}
}

// testMetrics is shared across this file's tests: metrics.New() registers
// against prometheus's default registry, and registering the same metric
// names twice panics.
var testMetrics = metrics.New()

func waitForQueueDrain(t *testing.T, m *Mover) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)
	require.NoError(t, ctx.Err())
}

func TestMover_SaveThenPublishOnSuccess(t *testing.T) {
	store := &fakeStore{}
	publish := &fakePublish{}
	m := New(store, publish, testMetrics, fastRetryConfig(), 10)
	m.Start(context.Background(), 1)

	m.Enqueue(Job{Report: crashreport.New(), CrashID: "abc123"})
	waitForQueueDrain(t, m)

	assert.Equal(t, []string{"abc123"}, store.saved)
	assert.Equal(t, []string{"abc123"}, publish.published)
}

func TestMover_SaveRetriesThenSucceeds(t *testing.T) {
	store := &fakeStore{failures: 2}
	publish := &fakePublish{}
	m := New(store, publish, testMetrics, fastRetryConfig(), 10)
	m.Start(context.Background(), 1)

	m.Enqueue(Job{Report: crashreport.New(), CrashID: "retry-me"})
	waitForQueueDrain(t, m)

	assert.Equal(t, 3, store.calls)
	assert.Equal(t, []string{"retry-me"}, store.saved)
	assert.Equal(t, []string{"retry-me"}, publish.published)
}

func TestMover_SaveExhaustedSkipsPublish(t *testing.T) {
	store := &fakeStore{failures: 99}
	publish := &fakePublish{}
	m := New(store, publish, testMetrics, fastRetryConfig(), 10)
	m.Start(context.Background(), 1)

	m.Enqueue(Job{Report: crashreport.New(), CrashID: "doomed"})
	waitForQueueDrain(t, m)

	assert.Equal(t, 3, store.calls)
	assert.Empty(t, store.saved)
	assert.Equal(t, 0, publish.calls)
}

func TestMover_PublishExhaustedStillConsideredHandled(t *testing.T) {
	store := &fakeStore{}
	publish := &fakePublish{failures: 99}
	m := New(store, publish, testMetrics, fastRetryConfig(), 10)
	m.Start(context.Background(), 1)

	m.Enqueue(Job{Report: crashreport.New(), CrashID: "store-only"})
	waitForQueueDrain(t, m)

	assert.Equal(t, []string{"store-only"}, store.saved)
	assert.Equal(t, 3, publish.calls)
	assert.Empty(t, publish.published)
}
