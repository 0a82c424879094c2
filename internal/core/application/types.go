package application

import (
	"context"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/shopspring/decimal"
)

// PayoutProcessor pays out a batch of eligible payouts of one store.
// It mutates the given payouts in place, the caller persists the dirty ones.
type PayoutProcessor interface {
	Process(
		ctx context.Context, method domain.StorePaymentMethod, payouts []*domain.Payout,
	) error
}

type PayoutProcessorFactory interface {
	// Processor returns the type tag of the processors built by the factory.
	Processor() string
	SupportedPayoutMethods() []domain.PayoutMethodId
	NewProcessor(config domain.PayoutProcessor) (PayoutProcessor, error)
}

type RegistryService interface {
	Start(ctx context.Context) error
	Stop()
	UpsertProcessor(
		ctx context.Context, config domain.PayoutProcessor,
	) (*domain.PayoutProcessor, error)
	RemoveProcessor(ctx context.Context, id string) error
	ProcessorTypes() []ProcessorType
}

type AdminService interface {
	ListProcessors(ctx context.Context, storeId string) ([]domain.PayoutProcessor, error)
	SetProcessor(
		ctx context.Context, storeId string, payoutMethodId domain.PayoutMethodId,
		processor string, blob domain.ProcessorBlob,
	) (*domain.PayoutProcessor, error)
	RemoveProcessor(
		ctx context.Context, storeId string, payoutMethodId domain.PayoutMethodId,
		processor string,
	) error
	ListPayouts(
		ctx context.Context, storeId string, states []domain.PayoutState,
	) ([]domain.Payout, error)
	ApprovePayout(ctx context.Context, req ApprovePayoutRequest) (*domain.Payout, error)
	ResetPayout(ctx context.Context, storeId, payoutId string) (*domain.Payout, error)
	SetPaymentMethod(ctx context.Context, method domain.StorePaymentMethod) error
	ProcessorTypes() []ProcessorType
}

type ProcessorType struct {
	Processor     string
	PayoutMethods []domain.PayoutMethodId
}

type ApprovePayoutRequest struct {
	StoreId        string
	PullPaymentId  string
	PayoutMethodId domain.PayoutMethodId
	Destination    string
	Amount         decimal.Decimal
}
