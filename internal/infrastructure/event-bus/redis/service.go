package redisbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const channelPrefix = "payoutd:"

// service shares events between the instances connected to the same redis
// server through its pub/sub channels.
type service struct {
	rdb *redis.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(redisURL string) (ports.EventBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		//nolint:errcheck
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &service{rdb: rdb, ctx: ctx, cancel: cancel}, nil
}

func (s *service) Publish(ctx context.Context, events ...domain.Event) error {
	for _, event := range events {
		payload, err := domain.EncodeEvent(event)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", event.Topic(), err)
		}
		if err := s.rdb.Publish(ctx, channel(event.Topic()), payload).Err(); err != nil {
			return fmt.Errorf("failed to publish event %s: %w", event.Topic(), err)
		}
	}
	return nil
}

func (s *service) Subscribe(
	ctx context.Context, topic string, handler func(domain.Event),
) error {
	pubsub := s.rdb.Subscribe(ctx, channel(topic))
	// Wait for the subscription to be confirmed so that no event published
	// after returning is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		//nolint:errcheck
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		//nolint:errcheck
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				event, err := domain.DecodeEvent([]byte(msg.Payload))
				if err != nil {
					log.WithError(err).Warnf("dropping invalid message on topic %s", topic)
					continue
				}
				handler(event)
			}
		}
	}()
	return nil
}

func (s *service) Close() {
	s.cancel()
	s.wg.Wait()
	//nolint:errcheck
	s.rdb.Close()
}

func channel(topic string) string {
	return channelPrefix + topic
}
