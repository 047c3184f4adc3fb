// Package localpublish implements sink.Publish for development: it logs
// each crash id instead of posting to a real queue.
//
// Grounded on the original Python source's NoOp publish test double
// (tests/unittest/test_noopcrashpublish.py): an adapter that accepts every
// id and keeps the last few for inspection, rather than one that silently
// discards them.
package localpublish

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ocx/backend/internal/health"
	"github.com/ocx/backend/internal/sink"
)

const keepLast = 100

// Publish logs crash ids and retains a bounded ring of the most recent ones.
type Publish struct {
	mu  sync.Mutex
	ids []string
}

// New returns a logging publish adapter.
func New() *Publish {
	return &Publish{}
}

// Publish logs crashID and records it.
func (p *Publish) Publish(ctx context.Context, crashID string) error {
	slog.Info("publish (local)", "crash_id", crashID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, crashID)
	if len(p.ids) > keepLast {
		p.ids = p.ids[len(p.ids)-keepLast:]
	}
	return nil
}

// VerifyTopic logs the reserved probe body.
func (p *Publish) VerifyTopic(ctx context.Context) error {
	slog.Info("publish (local) verify topic", "body", sink.ProbeBody)
	return nil
}

// CheckHealth always reports healthy; there is no external dependency.
func (p *Publish) CheckHealth(ctx context.Context, state *health.State) {
	state.SetInfo("publish_backend", "local")
}

// Recent returns the most recently published crash ids, newest last.
func (p *Publish) Recent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.ids))
	copy(out, p.ids)
	return out
}

var _ sink.Publish = (*Publish)(nil)
