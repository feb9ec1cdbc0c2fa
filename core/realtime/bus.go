package realtime

import "context"

type (
	// Publisher sends change events to all subscribers of a channel key.
	Publisher interface {
		Publish(ctx context.Context, key string, evt Event) error
	}

	// Bus is the live-update transport. Subscribe opens one underlying
	// subscription for key; the returned channel receives events until the
	// context is canceled or the stop func is called.
	Bus interface {
		Publisher
		Subscribe(ctx context.Context, key string) (<-chan Event, func() error, error)
	}
)
