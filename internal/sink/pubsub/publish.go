// Package pubsub implements sink.Publish over Google Cloud Pub/Sub.
//
// Adapted from the teacher's internal/events.PubSubEventBus: same
// client/topic lifecycle (NewClient, Exists-or-Create, Close), but
// publishing a bare crash id instead of a CloudEvent envelope, waiting for
// the publish result and returning its error to the caller, and with no
// ordering key — crash ids need no per-tenant ordering.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/ocx/backend/internal/health"
	"github.com/ocx/backend/internal/sink"
)

// Publish posts crash ids to a single Pub/Sub topic.
type Publish struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New connects to projectID and binds to topicID, creating the topic if it
// does not already exist.
func New(ctx context.Context, projectID, topicID string) (*Publish, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pubsub: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("pubsub: CreateTopic: %w", err)
		}
	}

	return &Publish{client: client, topic: topic}, nil
}

// Close releases the underlying client.
func (p *Publish) Close() error {
	p.topic.Stop()
	return p.client.Close()
}

// Publish posts crashID as the UTF-8 message body, with no framing.
func (p *Publish) Publish(ctx context.Context, crashID string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: []byte(crashID)})
	serverID, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", crashID, err)
	}
	slog.Debug("published crash id", "crash_id", crashID, "message_id", serverID)
	return nil
}

// VerifyTopic publishes the reserved probe body; consumers must discard it.
func (p *Publish) VerifyTopic(ctx context.Context) error {
	result := p.topic.Publish(ctx, &pubsub.Message{Data: []byte(sink.ProbeBody)})
	_, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub: verify topic: %w", err)
	}
	return nil
}

// CheckHealth verifies the topic is still reachable.
func (p *Publish) CheckHealth(ctx context.Context, state *health.State) {
	exists, err := p.topic.Exists(ctx)
	if err != nil {
		state.AddError(fmt.Sprintf("pubsub publish: %v", err))
		return
	}
	if !exists {
		state.AddError("pubsub publish: topic does not exist")
		return
	}
	state.SetInfo("pubsub_topic", p.topic.String())
}

var _ sink.Publish = (*Publish)(nil)
