package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// engine periodically pays out the eligible payouts of one store for one
// payout method with the processor built for its config.
type engine struct {
	config      domain.PayoutProcessor
	factory     PayoutProcessorFactory
	processor   PayoutProcessor
	repoManager ports.RepoManager
	// instant follows ProcessNewPayoutsInstantly of the latest config seen.
	instant atomic.Bool

	wakeCh chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func newEngine(
	config domain.PayoutProcessor, factory PayoutProcessorFactory,
	repoManager ports.RepoManager,
) (*engine, error) {
	processor, err := factory.NewProcessor(config)
	if err != nil {
		return nil, err
	}
	e := &engine{
		config:      config,
		factory:     factory,
		processor:   processor,
		repoManager: repoManager,
		wakeCh:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	e.instant.Store(config.Blob.ProcessNewPayoutsInstantly)
	return e, nil
}

func (e *engine) processesNewPayoutsInstantly() bool {
	return e.instant.Load()
}

func (e *engine) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(ctx)
}

// stop cancels the engine and waits for it to exit. A tick in progress is
// let finish.
func (e *engine) stop() {
	e.cancel()
	<-e.done
}

// wake makes a sleeping engine run its next tick right away.
func (e *engine) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

func (e *engine) run(ctx context.Context) {
	defer close(e.done)

	logger := log.WithField("processor", e.config.Key().String())
	logger.Debug("payout processor started")

	config := e.config
	for {
		if ctx.Err() != nil {
			logger.Debug("payout processor stopped")
			return
		}

		config = e.tick(ctx, config, logger)

		interval := config.Blob.Interval
		if interval <= 0 {
			interval = domain.DefaultProcessorInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Debug("payout processor stopped")
			return
		case <-e.wakeCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// tick runs one processing round and returns the config to use for the next.
func (e *engine) tick(
	ctx context.Context, config domain.PayoutProcessor, logger *log.Entry,
) domain.PayoutProcessor {
	method, err := e.repoManager.PaymentMethods().Get(
		ctx, config.StoreId, config.PayoutMethodId,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to get store payment method")
		return config
	}
	if method == nil || !method.Enabled {
		logger.Debug("store has no enabled payment method, skipping")
		return config
	}

	config = e.reloadConfig(ctx, config, logger)

	payouts, err := e.repoManager.Payouts().Query(ctx, domain.PayoutQuery{
		States:        []domain.PayoutState{domain.PayoutStateAwaitingPayment},
		PayoutMethods: []domain.PayoutMethodId{config.PayoutMethodId},
		Stores:        []string{config.StoreId},
	})
	if err != nil {
		logger.WithError(err).Warn("failed to query payouts")
		return config
	}

	eligible := make([]*domain.Payout, 0, len(payouts))
	for i := range payouts {
		if payouts[i].IsProcessorDisabled(config.Processor) {
			continue
		}
		eligible = append(eligible, &payouts[i])
	}
	if len(eligible) <= 0 {
		return config
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	logger.Infof("processing %d payouts", len(eligible))

	if err := e.process(ctx, *method, eligible); err != nil {
		logger.WithError(err).Warn("failed to process payouts")
	}

	dirty := make([]domain.Payout, 0, len(eligible))
	for _, p := range eligible {
		if p.IsDirty() {
			dirty = append(dirty, *p)
		}
	}
	// Persisting must not be interrupted by a stop request.
	e.persist(context.WithoutCancel(ctx), dirty, logger)

	return config
}

// persist stores the given payouts as a single unit, leaving out those
// changed by someone else since they were loaded.
func (e *engine) persist(ctx context.Context, payouts []domain.Payout, logger *log.Entry) {
	for len(payouts) > 0 {
		err := e.repoManager.Payouts().Update(ctx, payouts...)
		if err == nil {
			return
		}

		var conflict domain.PayoutConflictError
		if !errors.As(err, &conflict) {
			logger.WithError(err).Warn("failed to persist processed payouts")
			return
		}

		count := len(payouts)
		payouts = slices.DeleteFunc(payouts, func(p domain.Payout) bool {
			return slices.Contains(conflict.PayoutIds, p.Id)
		})
		if len(payouts) == count {
			logger.WithError(err).Warn("failed to persist processed payouts")
			return
		}
		logger.Warnf(
			"%d payouts changed concurrently, discarded their updates",
			count-len(payouts),
		)
	}
}

// process never aborts on engine cancellation, the processor runs to
// completion or to its own timeouts.
func (e *engine) process(
	ctx context.Context, method domain.StorePaymentMethod, payouts []*domain.Payout,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()

	return e.processor.Process(context.WithoutCancel(ctx), method, payouts)
}

func (e *engine) reloadConfig(
	ctx context.Context, config domain.PayoutProcessor, logger *log.Entry,
) domain.PayoutProcessor {
	stored, err := e.repoManager.Processors().Get(ctx, config.Id)
	if err != nil {
		if !errors.Is(err, domain.ErrProcessorNotFound) {
			logger.WithError(err).Warn("failed to reload processor config")
		}
		return config
	}
	if stored.Blob.Equal(config.Blob) {
		return config
	}

	processor, err := e.factory.NewProcessor(*stored)
	if err != nil {
		logger.WithError(err).Warn("failed to apply updated processor config")
		return config
	}
	e.processor = processor
	e.instant.Store(stored.Blob.ProcessNewPayoutsInstantly)
	return *stored
}
