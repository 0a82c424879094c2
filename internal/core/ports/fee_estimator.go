package ports

import (
	"context"

	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
)

type FeeEstimator interface {
	// FeeRate returns the rate expected to confirm a tx within targetBlocks.
	FeeRate(ctx context.Context, targetBlocks uint32) (chainfee.SatPerKVByte, error)
	Close()
}
