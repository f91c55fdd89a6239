package redis

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"canvas-imagegen/internal/domain/ports/adapter"
)

// Compile-time conformance
var _ adapter.EventPublisher = (*Events)(nil)
var _ adapter.EventSubscriber = (*Events)(nil)

// Events is the push channel between the worker and client trackers,
// backed by redis pub/sub. Delivery is best-effort: a dropped connection
// loses messages, which is why the tracker keeps a polling fallback.
type Events struct {
	client *Client
	log    *zerolog.Logger
}

func NewEvents(client *Client, logger *zerolog.Logger) *Events {
	evLog := logger.With().Str("component", "Events").Logger()
	return &Events{client: client, log: &evLog}
}

func channelFor(ownerID string) string { return "generations:" + ownerID }

func (e *Events) PublishGeneration(ctx context.Context, ev adapter.GenerationEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return e.client.cli.Publish(ctx, channelFor(ev.OwnerID), payload).Err()
}

// Subscribe delivers generation events for ownerID to handle until ctx is
// done. Malformed payloads are logged and skipped.
func (e *Events) Subscribe(ctx context.Context, ownerID string, handle func(adapter.GenerationEvent)) error {
	sub := e.client.cli.Subscribe(ctx, channelFor(ownerID))
	defer sub.Close()

	// Wait for the subscription to be live before returning control to the
	// message loop, so callers know events from now on will be observed.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev adapter.GenerationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				e.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed generation event")
				continue
			}
			handle(ev)
		}
	}
}
