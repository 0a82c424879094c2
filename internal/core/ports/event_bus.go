package ports

import (
	"context"

	"github.com/ark-network/payoutd/internal/core/domain"
)

type EventBus interface {
	Publish(ctx context.Context, events ...domain.Event) error
	// Subscribe delivers the events of the given topic to handler until ctx
	// is done or the bus is closed.
	Subscribe(ctx context.Context, topic string, handler func(domain.Event)) error
	Close()
}
