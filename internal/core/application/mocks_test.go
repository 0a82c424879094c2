package application_test

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ark-network/payoutd/internal/core/application"
	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/stretchr/testify/mock"
)

type mockedWallet struct {
	mock.Mock
}

func (m *mockedWallet) Network() *chaincfg.Params {
	args := m.Called()
	return args.Get(0).(*chaincfg.Params)
}

func (m *mockedWallet) IsReady(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *mockedWallet) ListUnspent(
	ctx context.Context, method domain.StorePaymentMethod,
) ([]ports.Coin, error) {
	args := m.Called(ctx, method)

	var res []ports.Coin
	if a := args.Get(0); a != nil {
		res = a.([]ports.Coin)
	}
	return res, args.Error(1)
}

func (m *mockedWallet) ReserveChangeAddress(
	ctx context.Context, method domain.StorePaymentMethod,
) (btcutil.Address, error) {
	args := m.Called(ctx, method)

	var res btcutil.Address
	if a := args.Get(0); a != nil {
		res = a.(btcutil.Address)
	}
	return res, args.Error(1)
}

func (m *mockedWallet) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockedWallet) SubscribeTransaction(
	ctx context.Context, txid chainhash.Hash,
) <-chan struct{} {
	args := m.Called(ctx, txid)
	return args.Get(0).(chan struct{})
}

func (m *mockedWallet) Close() {
	m.Called()
}

type mockedFeeEstimator struct {
	mock.Mock
}

func (m *mockedFeeEstimator) FeeRate(
	ctx context.Context, targetBlocks uint32,
) (chainfee.SatPerKVByte, error) {
	args := m.Called(ctx, targetBlocks)

	var res chainfee.SatPerKVByte
	if a := args.Get(0); a != nil {
		res = a.(chainfee.SatPerKVByte)
	}
	return res, args.Error(1)
}

func (m *mockedFeeEstimator) Close() {
	m.Called()
}

type mockedScheduler struct {
	mock.Mock
}

func (m *mockedScheduler) Start() {
	m.Called()
}

func (m *mockedScheduler) Stop() {
	m.Called()
}

func (m *mockedScheduler) ScheduleTask(
	interval time.Duration, immediate bool, task func(),
) error {
	args := m.Called(interval, immediate, task)
	return args.Error(0)
}

type mockedRepoManager struct {
	payouts    *mockedPayoutRepo
	processors *mockedProcessorRepo
	methods    *mockedPaymentMethodRepo
	walletTxs  *mockedWalletTxRepo
}

func newMockedRepoManager() *mockedRepoManager {
	return &mockedRepoManager{
		payouts:    &mockedPayoutRepo{},
		processors: &mockedProcessorRepo{},
		methods:    &mockedPaymentMethodRepo{},
		walletTxs:  &mockedWalletTxRepo{},
	}
}

func (m *mockedRepoManager) Payouts() domain.PayoutRepository {
	return m.payouts
}

func (m *mockedRepoManager) Processors() domain.PayoutProcessorRepository {
	return m.processors
}

func (m *mockedRepoManager) PaymentMethods() domain.StorePaymentMethodRepository {
	return m.methods
}

func (m *mockedRepoManager) WalletTxs() domain.WalletTxRepository {
	return m.walletTxs
}

func (m *mockedRepoManager) Close() {}

type mockedPayoutRepo struct {
	mock.Mock
	queries atomic.Int32
}

func (m *mockedPayoutRepo) Add(ctx context.Context, payouts ...domain.Payout) error {
	args := m.Called(ctx, payouts)
	return args.Error(0)
}

func (m *mockedPayoutRepo) Get(ctx context.Context, id string) (*domain.Payout, error) {
	args := m.Called(ctx, id)

	var res *domain.Payout
	if a := args.Get(0); a != nil {
		res = a.(*domain.Payout)
	}
	return res, args.Error(1)
}

func (m *mockedPayoutRepo) Query(
	ctx context.Context, query domain.PayoutQuery,
) ([]domain.Payout, error) {
	m.queries.Add(1)
	args := m.Called(ctx, query)

	var res []domain.Payout
	if a := args.Get(0); a != nil {
		// Every call gets its own copy, like a fresh read from the db.
		res = slices.Clone(a.([]domain.Payout))
	}
	return res, args.Error(1)
}

func (m *mockedPayoutRepo) Update(ctx context.Context, payouts ...domain.Payout) error {
	args := m.Called(ctx, payouts)
	return args.Error(0)
}

func (m *mockedPayoutRepo) Close() {}

type mockedProcessorRepo struct {
	mock.Mock
}

func (m *mockedProcessorRepo) Get(
	ctx context.Context, id string,
) (*domain.PayoutProcessor, error) {
	args := m.Called(ctx, id)

	var res *domain.PayoutProcessor
	if a := args.Get(0); a != nil {
		res = a.(*domain.PayoutProcessor)
	}
	return res, args.Error(1)
}

func (m *mockedProcessorRepo) Find(
	ctx context.Context, key domain.ProcessorKey,
) (*domain.PayoutProcessor, error) {
	args := m.Called(ctx, key)

	var res *domain.PayoutProcessor
	if a := args.Get(0); a != nil {
		res = a.(*domain.PayoutProcessor)
	}
	return res, args.Error(1)
}

func (m *mockedProcessorRepo) List(
	ctx context.Context, query domain.ProcessorQuery,
) ([]domain.PayoutProcessor, error) {
	args := m.Called(ctx, query)

	var res []domain.PayoutProcessor
	if a := args.Get(0); a != nil {
		res = a.([]domain.PayoutProcessor)
	}
	return res, args.Error(1)
}

func (m *mockedProcessorRepo) Upsert(
	ctx context.Context, processor domain.PayoutProcessor,
) error {
	args := m.Called(ctx, processor)
	return args.Error(0)
}

func (m *mockedProcessorRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockedProcessorRepo) Close() {}

type mockedPaymentMethodRepo struct {
	mock.Mock
}

func (m *mockedPaymentMethodRepo) Get(
	ctx context.Context, storeId string, paymentMethodId domain.PayoutMethodId,
) (*domain.StorePaymentMethod, error) {
	args := m.Called(ctx, storeId, paymentMethodId)

	var res *domain.StorePaymentMethod
	if a := args.Get(0); a != nil {
		res = a.(*domain.StorePaymentMethod)
	}
	return res, args.Error(1)
}

func (m *mockedPaymentMethodRepo) Upsert(
	ctx context.Context, method domain.StorePaymentMethod,
) error {
	args := m.Called(ctx, method)
	return args.Error(0)
}

func (m *mockedPaymentMethodRepo) Close() {}

type mockedWalletTxRepo struct {
	mock.Mock
}

func (m *mockedWalletTxRepo) Attach(
	ctx context.Context, attachments ...domain.WalletTxAttachment,
) error {
	args := m.Called(ctx, attachments)
	return args.Error(0)
}

func (m *mockedWalletTxRepo) ListByTxid(
	ctx context.Context, txid string,
) ([]domain.WalletTxAttachment, error) {
	args := m.Called(ctx, txid)

	var res []domain.WalletTxAttachment
	if a := args.Get(0); a != nil {
		res = a.([]domain.WalletTxAttachment)
	}
	return res, args.Error(1)
}

func (m *mockedWalletTxRepo) Close() {}

// inMemoryEventBus dispatches every published event to the subscribers of
// its topic and keeps track of what was published.
type inMemoryEventBus struct {
	lock      sync.Mutex
	handlers  map[string][]func(domain.Event)
	published []domain.Event
}

func newInMemoryEventBus() *inMemoryEventBus {
	return &inMemoryEventBus{handlers: make(map[string][]func(domain.Event))}
}

func (b *inMemoryEventBus) Publish(_ context.Context, events ...domain.Event) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, event := range events {
		b.published = append(b.published, event)
		for _, handler := range b.handlers[event.Topic()] {
			go handler(event)
		}
	}
	return nil
}

func (b *inMemoryEventBus) Subscribe(
	_ context.Context, topic string, handler func(domain.Event),
) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *inMemoryEventBus) Close() {}

func (b *inMemoryEventBus) publishedEvents(topic string) []domain.Event {
	b.lock.Lock()
	defer b.lock.Unlock()

	events := make([]domain.Event, 0)
	for _, e := range b.published {
		if e.Topic() == topic {
			events = append(events, e)
		}
	}
	return events
}

// testFactory builds processors from a plain function.
type testFactory struct {
	processor string
	methods   []domain.PayoutMethodId
	process   func(domain.StorePaymentMethod, []*domain.Payout) error
}

func (f *testFactory) Processor() string {
	return f.processor
}

func (f *testFactory) SupportedPayoutMethods() []domain.PayoutMethodId {
	return f.methods
}

func (f *testFactory) NewProcessor(
	config domain.PayoutProcessor,
) (application.PayoutProcessor, error) {
	if !slices.Contains(f.methods, config.PayoutMethodId) {
		return nil, application.ErrUnsupportedPayoutMethod
	}
	return processorFunc(f.process), nil
}

type processorFunc func(domain.StorePaymentMethod, []*domain.Payout) error

func (f processorFunc) Process(
	_ context.Context, method domain.StorePaymentMethod, payouts []*domain.Payout,
) error {
	return f(method, payouts)
}
