// Package crashmover hands crash reports off to the object store and
// notification queue. A bounded job queue feeds a fixed-size worker pool;
// each job runs the save phase then the publish phase, each wrapped in its
// own constant-interval retry loop.
//
// Grounded on internal/webhooks.Dispatcher: same bounded-channel +
// sync.WaitGroup + N-worker shape, generalized from one HTTP POST per job to
// two sequential phases (store, then publish) per job.
package crashmover

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ocx/backend/internal/crashreport"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/retry"
	"github.com/ocx/backend/internal/sink"
)

// Job is what the mover owns end to end: the report (annotations and dumps)
// plus its minted crash id. The id is carried alongside the report (rather
// than read off report.CrashID at publish time) so the publish phase never
// needs to re-derive it.
type Job struct {
	Report  *crashreport.Report
	CrashID string
}

// Mover owns the job queue and worker pool.
type Mover struct {
	store   sink.Store
	publish sink.Publish
	metrics *metrics.Metrics
	cfg     retry.Config

	queue chan Job
	wg    sync.WaitGroup
}

// New constructs a Mover with the given queue depth. Call Start, with the
// worker count, to launch the worker pool.
func New(store sink.Store, publish sink.Publish, m *metrics.Metrics, cfg retry.Config, queueDepth int) *Mover {
	if queueDepth <= 0 {
		queueDepth = 1000
	}
	return &Mover{
		store:   store,
		publish: publish,
		metrics: m,
		cfg:     cfg,
		queue:   make(chan Job, queueDepth),
	}
}

// Start launches workers workers pulling from the job queue. Each worker
// runs until the queue is closed and drained (see Shutdown).
func (m *Mover) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx, i)
	}
}

// Enqueue hands a job to the worker pool without blocking the caller; the
// HTTP handler has already acknowledged the client by the time it calls
// this, so back-pressure here would stall request handling for no benefit.
// A full queue drops the job and logs at ERROR.
func (m *Mover) Enqueue(job Job) {
	select {
	case m.queue <- job:
	default:
		slog.Error("crashmover: queue full, dropping job", "crash_id", job.CrashID)
	}
}

// Shutdown closes the job queue and blocks until every worker drains, or
// ctx is done first.
func (m *Mover) Shutdown(ctx context.Context) {
	close(m.queue)
	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		slog.Warn("crashmover: shutdown grace period exceeded, workers may still be draining")
	}
}

func (m *Mover) worker(ctx context.Context, id int) {
	defer m.wg.Done()
	for job := range m.queue {
		m.process(ctx, job)
	}
}

func (m *Mover) process(ctx context.Context, job Job) {
	// Stores key every object by report.CrashID, so it must be the job's id.
	job.Report.CrashID = job.CrashID
	if !m.save(ctx, job) {
		return
	}
	m.publishID(ctx, job)
}

// save runs the save phase's retry loop. Returns false if the job was
// dropped after exhausting retries.
func (m *Mover) save(ctx context.Context, job Job) bool {
	attempt := 0
	err := retry.Do(ctx, m.cfg, func(n int, err error) {
		attempt = n
		m.metrics.SaveCrashException.Inc()
		slog.Warn("crashmover: save failed", "crash_id", job.CrashID, "attempt", n, "error", err)
	}, func() error {
		return m.store.Save(ctx, job.Report)
	})
	if err != nil {
		m.metrics.SaveCrashDropped.Inc()
		slog.Error("too many errors trying to save; dropped", "crash_id", job.CrashID, "attempts", attempt)
		return false
	}
	return true
}

// publishID runs the publish phase's retry loop. A job that exhausts
// publish retries is still considered handled: the report is durably
// stored, and a downstream self-healing process is assumed to republish.
func (m *Mover) publishID(ctx context.Context, job Job) {
	attempt := 0
	err := retry.Do(ctx, m.cfg, func(n int, err error) {
		attempt = n
		m.metrics.PublishCrashException.Inc()
		slog.Warn("crashmover: publish failed", "crash_id", job.CrashID, "attempt", n, "error", err)
	}, func() error {
		return m.publish.Publish(ctx, job.CrashID)
	})
	if err != nil {
		m.metrics.PublishCrashDropped.Inc()
		slog.Error("too many errors trying to publish; dropped", "crash_id", job.CrashID, "attempts", attempt)
	}
}
