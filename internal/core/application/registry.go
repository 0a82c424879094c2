package application

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type commandType int

const (
	cmdUpsert commandType = iota
	cmdRemove
	cmdReload
	cmdStopEngine
	cmdWake
	cmdStop
)

type command struct {
	kind           commandType
	ctx            context.Context
	config         domain.PayoutProcessor
	id             string
	storeId        string
	payoutMethodId domain.PayoutMethodId
	result         chan commandResult
}

type commandResult struct {
	config *domain.PayoutProcessor
	err    error
}

// registry owns the running engines. Every change to the set of engines is
// a command handled, one at a time, by the command loop.
type registry struct {
	id           string
	pollInterval time.Duration
	minInterval  time.Duration
	maxInterval  time.Duration

	repoManager ports.RepoManager
	eventBus    ports.EventBus
	scheduler   ports.SchedulerService
	factories   map[string]PayoutProcessorFactory

	lock     sync.Mutex
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	cmdCh    chan command
	loopDone chan struct{}
	engines  map[string]*engine
}

func NewRegistryService(
	pollInterval, minInterval, maxInterval time.Duration,
	repoManager ports.RepoManager, eventBus ports.EventBus,
	scheduler ports.SchedulerService, factories ...PayoutProcessorFactory,
) (RegistryService, error) {
	if pollInterval <= 0 {
		return nil, fmt.Errorf("invalid global poll interval %s", pollInterval)
	}
	if maxInterval > 0 && minInterval > maxInterval {
		return nil, fmt.Errorf(
			"min interval %s is greater than max interval %s", minInterval, maxInterval,
		)
	}

	factoriesByType := make(map[string]PayoutProcessorFactory)
	for _, f := range factories {
		if _, ok := factoriesByType[f.Processor()]; ok {
			return nil, fmt.Errorf("duplicated factory for processor %s", f.Processor())
		}
		factoriesByType[f.Processor()] = f
	}

	return &registry{
		id:           uuid.New().String(),
		pollInterval: pollInterval,
		minInterval:  minInterval,
		maxInterval:  maxInterval,
		repoManager:  repoManager,
		eventBus:     eventBus,
		scheduler:    scheduler,
		factories:    factoriesByType,
		cmdCh:        make(chan command),
		loopDone:     make(chan struct{}),
		engines:      make(map[string]*engine),
	}, nil
}

func (r *registry) Start(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.started {
		return fmt.Errorf("registry already started")
	}
	if r.stopped {
		return ErrRegistryStopped
	}

	configs, err := r.repoManager.Processors().List(ctx, domain.ProcessorQuery{})
	if err != nil {
		return fmt.Errorf("failed to load payout processors: %s", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	go r.loop()

	if err := r.startEngines(ctx, configs); err != nil {
		r.shutdown()
		return err
	}

	subscriptions := map[string]func(domain.Event){
		domain.PayoutProcessorUpdatedTopic: r.onProcessorUpdated,
		domain.PayoutProcessorRemovedTopic: r.onProcessorRemoved,
		domain.PayoutApprovedTopic:         r.onPayoutApproved,
	}
	for topic, handler := range subscriptions {
		if err := r.eventBus.Subscribe(r.ctx, topic, handler); err != nil {
			r.shutdown()
			return fmt.Errorf("failed to subscribe to %s events: %s", topic, err)
		}
	}

	if err := r.scheduler.ScheduleTask(
		r.pollInterval, false, r.pollAwaitingPayouts,
	); err != nil {
		r.shutdown()
		return fmt.Errorf("failed to schedule global payout poll: %s", err)
	}
	r.scheduler.Start()

	r.started = true
	log.Infof("started %d payout processors", len(configs))
	return nil
}

func (r *registry) Stop() {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.started {
		return
	}

	r.scheduler.Stop()
	r.shutdown()
	r.started = false

	log.Info("stopped payout processors")
}

func (r *registry) startEngines(
	ctx context.Context, configs []domain.PayoutProcessor,
) error {
	for _, config := range configs {
		if _, err := r.send(ctx, command{kind: cmdReload, config: config}); err != nil {
			return err
		}
	}
	return nil
}

// shutdown stops all engines and the command loop, no command is accepted
// afterwards.
func (r *registry) shutdown() {
	//nolint
	r.send(context.Background(), command{kind: cmdStop})
	r.cancel()
	r.stopped = true
}

func (r *registry) UpsertProcessor(
	ctx context.Context, config domain.PayoutProcessor,
) (*domain.PayoutProcessor, error) {
	if err := r.checkStarted(); err != nil {
		return nil, err
	}
	return r.send(ctx, command{kind: cmdUpsert, ctx: ctx, config: config})
}

func (r *registry) RemoveProcessor(ctx context.Context, id string) error {
	if err := r.checkStarted(); err != nil {
		return err
	}
	_, err := r.send(ctx, command{kind: cmdRemove, ctx: ctx, id: id})
	return err
}

func (r *registry) ProcessorTypes() []ProcessorType {
	types := make([]ProcessorType, 0, len(r.factories))
	for _, f := range r.factories {
		types = append(types, ProcessorType{
			Processor:     f.Processor(),
			PayoutMethods: f.SupportedPayoutMethods(),
		})
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].Processor < types[j].Processor
	})
	return types
}

func (r *registry) checkStarted() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if !r.started {
		return ErrRegistryNotStarted
	}
	return nil
}

// send hands the command to the loop and waits for its result.
func (r *registry) send(ctx context.Context, cmd command) (*domain.PayoutProcessor, error) {
	if cmd.ctx == nil {
		cmd.ctx = ctx
	}
	cmd.result = make(chan commandResult, 1)

	select {
	case r.cmdCh <- cmd:
	case <-r.loopDone:
		return nil, ErrRegistryStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-cmd.result:
		return res.config, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// notify hands the command to the loop without waiting for its result.
func (r *registry) notify(cmd command) {
	cmd.ctx = r.ctx
	cmd.result = make(chan commandResult, 1)
	select {
	case r.cmdCh <- cmd:
	case <-r.loopDone:
	}
}

func (r *registry) loop() {
	defer close(r.loopDone)

	for cmd := range r.cmdCh {
		var res commandResult
		switch cmd.kind {
		case cmdUpsert:
			res.config, res.err = r.upsert(cmd.ctx, cmd.config)
		case cmdRemove:
			res.err = r.remove(cmd.ctx, cmd.id)
		case cmdReload:
			r.restartEngine(cmd.config)
		case cmdStopEngine:
			r.stopEngine(cmd.id)
		case cmdWake:
			r.wake(cmd.storeId, cmd.payoutMethodId)
		case cmdStop:
			r.stopAll()
			cmd.result <- res
			return
		}
		cmd.result <- res
	}
}

func (r *registry) upsert(
	ctx context.Context, config domain.PayoutProcessor,
) (*domain.PayoutProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	factory, ok := r.factories[config.Processor]
	if !ok {
		return nil, errUnknownProcessor{config.Processor}
	}
	if !slices.Contains(factory.SupportedPayoutMethods(), config.PayoutMethodId) {
		return nil, fmt.Errorf(
			"%w %s for processor %s",
			ErrUnsupportedPayoutMethod, config.PayoutMethodId, config.Processor,
		)
	}

	config.Blob = config.Blob.Normalize(r.minInterval, r.maxInterval)

	existing, err := r.repoManager.Processors().Find(ctx, config.Key())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		config.Id = existing.Id
	}
	if len(config.Id) <= 0 {
		config.Id = uuid.New().String()
	}

	if err := r.repoManager.Processors().Upsert(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to persist payout processor: %s", err)
	}

	r.restartEngine(config)

	r.publish(ctx, domain.PayoutProcessorUpdated{Origin: r.id, Processor: config})
	return &config, nil
}

func (r *registry) remove(ctx context.Context, id string) error {
	config, err := r.repoManager.Processors().Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.repoManager.Processors().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete payout processor: %s", err)
	}

	r.stopEngine(id)

	r.publish(ctx, domain.PayoutProcessorRemoved{Origin: r.id, Processor: *config})
	return nil
}

func (r *registry) restartEngine(config domain.PayoutProcessor) {
	r.stopEngine(config.Id)

	logger := log.WithField("processor", config.Key().String())

	factory, ok := r.factories[config.Processor]
	if !ok {
		logger.Warn("no factory registered for payout processor, skipping")
		return
	}
	e, err := newEngine(config, factory, r.repoManager)
	if err != nil {
		logger.WithError(err).Warn("failed to create payout processor, skipping")
		return
	}

	e.start(r.ctx)
	r.engines[config.Id] = e
}

func (r *registry) stopEngine(id string) {
	e, ok := r.engines[id]
	if !ok {
		return
	}
	e.stop()
	delete(r.engines, id)
}

func (r *registry) stopAll() {
	var eg errgroup.Group
	for _, e := range r.engines {
		eg.Go(func() error {
			e.stop()
			return nil
		})
	}
	//nolint
	eg.Wait()
	r.engines = make(map[string]*engine)
}

func (r *registry) wake(storeId string, payoutMethodId domain.PayoutMethodId) {
	for _, e := range r.engines {
		if e.config.StoreId != storeId || e.config.PayoutMethodId != payoutMethodId {
			continue
		}
		if e.processesNewPayoutsInstantly() {
			e.wake()
		}
	}
}

func (r *registry) publish(ctx context.Context, event domain.Event) {
	if err := r.eventBus.Publish(ctx, event); err != nil {
		log.WithError(err).Warnf("failed to publish %s event", event.Topic())
	}
}

func (r *registry) onProcessorUpdated(event domain.Event) {
	e, ok := event.(domain.PayoutProcessorUpdated)
	if !ok || e.Origin == r.id {
		return
	}

	// The config may have changed again since the event was emitted.
	config, err := r.repoManager.Processors().Get(r.ctx, e.Processor.Id)
	if err != nil {
		log.WithError(err).Debugf(
			"payout processor %s not found, stopping it", e.Processor.Id,
		)
		r.notify(command{kind: cmdStopEngine, id: e.Processor.Id})
		return
	}
	r.notify(command{kind: cmdReload, config: *config})
}

func (r *registry) onProcessorRemoved(event domain.Event) {
	e, ok := event.(domain.PayoutProcessorRemoved)
	if !ok || e.Origin == r.id {
		return
	}
	r.notify(command{kind: cmdStopEngine, id: e.Processor.Id})
}

func (r *registry) onPayoutApproved(event domain.Event) {
	e, ok := event.(domain.PayoutApproved)
	if !ok {
		return
	}
	r.notify(command{
		kind: cmdWake, storeId: e.StoreId, payoutMethodId: e.PayoutMethodId,
	})
}

// pollAwaitingPayouts notifies about the payouts waiting to be processed
// across all stores.
func (r *registry) pollAwaitingPayouts() {
	ctx := r.ctx
	payouts, err := r.repoManager.Payouts().Query(ctx, domain.PayoutQuery{
		States: []domain.PayoutState{domain.PayoutStateAwaitingPayment},
	})
	if err != nil {
		log.WithError(err).Warn("failed to query payouts awaiting processing")
		return
	}

	byStore := make(map[string][]string)
	stores := make([]string, 0)
	for _, p := range payouts {
		if _, ok := byStore[p.StoreId]; !ok {
			stores = append(stores, p.StoreId)
		}
		byStore[p.StoreId] = append(byStore[p.StoreId], p.Id)
	}

	for _, storeId := range stores {
		r.publish(ctx, domain.PayoutsAwaitingProcessing{
			StoreId: storeId, PayoutIds: byStore[storeId],
		})
	}
	if len(payouts) > 0 {
		log.Debugf(
			"%d payouts awaiting processing across %d stores", len(payouts), len(stores),
		)
	}
}
