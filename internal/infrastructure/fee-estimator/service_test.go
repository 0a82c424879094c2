package feeestimator_test

import (
	"context"
	"errors"
	"testing"

	feeestimator "github.com/ark-network/payoutd/internal/infrastructure/fee-estimator"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/require"
)

type feeSource struct {
	feeMap map[uint32]uint32
	err    error
}

func (s feeSource) GetFeeMap() (map[uint32]uint32, error) {
	return s.feeMap, s.err
}

func TestStaticEstimator(t *testing.T) {
	_, err := feeestimator.NewStaticEstimator(0)
	require.Error(t, err)

	svc, err := feeestimator.NewStaticEstimator(2)
	require.NoError(t, err)
	defer svc.Close()

	for _, target := range []uint32{0, 1, 6, 144} {
		feeRate, err := svc.FeeRate(context.Background(), target)
		require.NoError(t, err)
		require.Equal(t, chainfee.SatPerKVByte(2000), feeRate)
	}
}

func TestWebAPIEstimator(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		svc, err := feeestimator.NewWebAPIEstimator(feeSource{
			feeMap: map[uint32]uint32{1: 10000, 6: 4000, 144: 1000},
		})
		require.NoError(t, err)
		defer svc.Close()

		fast, err := svc.FeeRate(context.Background(), 1)
		require.NoError(t, err)
		slow, err := svc.FeeRate(context.Background(), 144)
		require.NoError(t, err)
		require.Greater(t, fast, slow)
		require.GreaterOrEqual(t, slow, chainfee.FeePerKwFloor.FeePerKVByte())
	})

	t.Run("unavailable", func(t *testing.T) {
		svc, err := feeestimator.NewWebAPIEstimator(feeSource{err: errors.New("down")})
		if err != nil {
			return
		}
		defer svc.Close()

		// The estimator falls back to the relay floor rather than failing.
		feeRate, err := svc.FeeRate(context.Background(), 1)
		if err == nil {
			require.GreaterOrEqual(t, feeRate, chainfee.FeePerKwFloor.FeePerKVByte())
		}
	})
}
