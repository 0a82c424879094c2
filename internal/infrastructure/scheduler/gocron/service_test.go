package scheduler_test

import (
	"sync/atomic"
	"testing"
	"time"

	scheduler "github.com/ark-network/payoutd/internal/infrastructure/scheduler/gocron"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Run("immediate", func(t *testing.T) {
		svc := scheduler.NewScheduler()
		var runs atomic.Int32
		err := svc.ScheduleTask(time.Hour, true, func() { runs.Add(1) })
		require.NoError(t, err)

		svc.Start()
		defer svc.Stop()

		require.Eventually(t, func() bool {
			return runs.Load() == 1
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("wait_for_schedule", func(t *testing.T) {
		svc := scheduler.NewScheduler()
		var runs atomic.Int32
		err := svc.ScheduleTask(time.Hour, false, func() { runs.Add(1) })
		require.NoError(t, err)

		svc.Start()
		defer svc.Stop()

		time.Sleep(200 * time.Millisecond)
		require.Zero(t, runs.Load())
	})

	t.Run("invalid_interval", func(t *testing.T) {
		svc := scheduler.NewScheduler()
		err := svc.ScheduleTask(0, true, func() {})
		require.Error(t, err)
	})
}
