package watermillbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ark-network/payoutd/internal/core/domain"
	watermillbus "github.com/ark-network/payoutd/internal/infrastructure/event-bus/watermill"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := watermillbus.NewService(watermill.NewStdLogger(false, false))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lock sync.Mutex
	received := make([]domain.Event, 0)
	handler := func(e domain.Event) {
		lock.Lock()
		defer lock.Unlock()
		received = append(received, e)
	}

	err := bus.Subscribe(ctx, domain.PayoutApprovedTopic, handler)
	require.NoError(t, err)

	approved := domain.PayoutApproved{
		PayoutId:       "payout",
		StoreId:        "store",
		PayoutMethodId: domain.NewPayoutMethodId("BTC", domain.OnChainPaymentType),
	}
	awaiting := domain.PayoutsAwaitingProcessing{StoreId: "store", PayoutIds: []string{"a"}}

	err = bus.Publish(ctx, approved, awaiting, approved)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return len(received) == 2
	}, 2*time.Second, 10*time.Millisecond)

	lock.Lock()
	require.Equal(t, approved, received[0])
	lock.Unlock()

	// Handlers stop once their context is done.
	cancel()
	time.Sleep(50 * time.Millisecond)
	err = bus.Publish(context.Background(), approved)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	lock.Lock()
	defer lock.Unlock()
	require.Len(t, received, 2)
}
