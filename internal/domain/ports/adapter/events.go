package adapter

import "context"

// GenerationEvent announces that new generation rows exist for an owner.
type GenerationEvent struct {
	OwnerID string `json:"owner_id"`
	JobID   string `json:"job_id"`
	NodeID  string `json:"node_id,omitempty"`
	Count   int    `json:"count"`
	Failed  bool   `json:"failed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EventPublisher is the worker side of the push channel.
type EventPublisher interface {
	PublishGeneration(ctx context.Context, ev GenerationEvent) error
}

// EventSubscriber is the client side of the push channel: "notify me when
// new rows matching this owner appear". Subscribe blocks until ctx is done,
// delivering events to handle. Delivery is best-effort; the polling fallback
// guarantees eventual correctness.
type EventSubscriber interface {
	Subscribe(ctx context.Context, ownerID string, handle func(GenerationEvent)) error
}
