package watermillbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const outputChannelBuffer = 100

// service is an in-process bus on top of a watermill go channel.
type service struct {
	pubsub *gochannel.GoChannel
}

func NewService(logger watermill.LoggerAdapter) ports.EventBus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: outputChannelBuffer,
	}, logger)
	return &service{pubsub}
}

func (s *service) Publish(_ context.Context, events ...domain.Event) error {
	for _, event := range events {
		payload, err := domain.EncodeEvent(event)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", event.Topic(), err)
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := s.pubsub.Publish(event.Topic(), msg); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.Topic(), err)
		}
	}
	return nil
}

func (s *service) Subscribe(
	ctx context.Context, topic string, handler func(domain.Event),
) error {
	messages, err := s.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			// Ack first, the handler may publish in turn.
			msg.Ack()

			event, err := domain.DecodeEvent(msg.Payload)
			if err != nil {
				log.WithError(err).Warnf("dropping invalid message on topic %s", topic)
				continue
			}
			handler(event)
		}
	}()
	return nil
}

func (s *service) Close() {
	//nolint:errcheck
	s.pubsub.Close()
}
