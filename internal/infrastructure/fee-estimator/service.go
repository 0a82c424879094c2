package feeestimator

import (
	"context"
	"fmt"
	"time"

	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	log "github.com/sirupsen/logrus"
)

const (
	minUpdateTimeout = 5 * time.Minute
	maxUpdateTimeout = 20 * time.Minute
)

type service struct {
	estimator chainfee.Estimator
}

// NewStaticEstimator always returns the given rate, in sat/vbyte.
func NewStaticEstimator(satPerVByte uint64) (ports.FeeEstimator, error) {
	if satPerVByte == 0 {
		return nil, fmt.Errorf("static fee rate must be positive")
	}
	feeRate := chainfee.SatPerKVByte(satPerVByte * 1000).FeePerKWeight()
	estimator := chainfee.NewStaticEstimator(feeRate, chainfee.FeePerKwFloor)
	return newService(estimator)
}

// NewWebAPIEstimator estimates fees from the given source, typically an
// esplora client.
func NewWebAPIEstimator(source chainfee.WebAPIFeeSource) (ports.FeeEstimator, error) {
	estimator, err := chainfee.NewWebAPIEstimator(
		source, true, minUpdateTimeout, maxUpdateTimeout,
	)
	if err != nil {
		return nil, err
	}
	return newService(estimator)
}

func newService(estimator chainfee.Estimator) (ports.FeeEstimator, error) {
	if err := estimator.Start(); err != nil {
		return nil, fmt.Errorf("failed to start fee estimator: %w", err)
	}
	return &service{estimator}, nil
}

func (s *service) FeeRate(
	_ context.Context, targetBlocks uint32,
) (chainfee.SatPerKVByte, error) {
	feeRate, err := s.estimator.EstimateFeePerKW(max(targetBlocks, 1))
	if err != nil {
		return 0, err
	}
	return feeRate.FeePerKVByte(), nil
}

func (s *service) Close() {
	if err := s.estimator.Stop(); err != nil {
		log.WithError(err).Warn("failed to stop fee estimator")
	}
}
