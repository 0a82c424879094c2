package application

import (
	"context"
	"fmt"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

type adminService struct {
	registry    RegistryService
	repoManager ports.RepoManager
	eventBus    ports.EventBus
}

func NewAdminService(
	registry RegistryService, repoManager ports.RepoManager, eventBus ports.EventBus,
) AdminService {
	return &adminService{registry, repoManager, eventBus}
}

func (a *adminService) ListProcessors(
	ctx context.Context, storeId string,
) ([]domain.PayoutProcessor, error) {
	return a.repoManager.Processors().List(ctx, domain.ProcessorQuery{
		Stores: []string{storeId},
	})
}

func (a *adminService) SetProcessor(
	ctx context.Context, storeId string, payoutMethodId domain.PayoutMethodId,
	processor string, blob domain.ProcessorBlob,
) (*domain.PayoutProcessor, error) {
	config := domain.PayoutProcessor{
		StoreId:        storeId,
		PayoutMethodId: payoutMethodId,
		Processor:      processor,
		Blob:           blob,
	}
	return a.registry.UpsertProcessor(ctx, config)
}

func (a *adminService) RemoveProcessor(
	ctx context.Context, storeId string, payoutMethodId domain.PayoutMethodId,
	processor string,
) error {
	config, err := a.repoManager.Processors().Find(ctx, domain.ProcessorKey{
		StoreId:        storeId,
		PayoutMethodId: payoutMethodId,
		Processor:      processor,
	})
	if err != nil {
		return err
	}
	if config == nil {
		return domain.ErrProcessorNotFound
	}
	return a.registry.RemoveProcessor(ctx, config.Id)
}

func (a *adminService) ListPayouts(
	ctx context.Context, storeId string, states []domain.PayoutState,
) ([]domain.Payout, error) {
	return a.repoManager.Payouts().Query(ctx, domain.PayoutQuery{
		States: states,
		Stores: []string{storeId},
	})
}

func (a *adminService) ApprovePayout(
	ctx context.Context, req ApprovePayoutRequest,
) (*domain.Payout, error) {
	payout, err := domain.NewPayout(
		req.StoreId, req.PullPaymentId, req.PayoutMethodId, req.Destination, req.Amount,
	)
	if err != nil {
		return nil, err
	}
	if err := a.repoManager.Payouts().Add(ctx, *payout); err != nil {
		return nil, fmt.Errorf("failed to store payout: %s", err)
	}

	if err := a.eventBus.Publish(ctx, domain.PayoutApproved{
		PayoutId:       payout.Id,
		StoreId:        payout.StoreId,
		PayoutMethodId: payout.PayoutMethodId,
	}); err != nil {
		log.WithError(err).Warn("failed to publish payout approved event")
	}
	return payout, nil
}

func (a *adminService) ResetPayout(
	ctx context.Context, storeId, payoutId string,
) (*domain.Payout, error) {
	payout, err := a.repoManager.Payouts().Get(ctx, payoutId)
	if err != nil {
		return nil, err
	}
	if payout.StoreId != storeId {
		return nil, domain.ErrPayoutNotFound
	}

	payout.ResetProcessors()
	if err := a.repoManager.Payouts().Update(ctx, *payout); err != nil {
		return nil, fmt.Errorf("failed to update payout: %s", err)
	}
	return payout, nil
}

func (a *adminService) SetPaymentMethod(
	ctx context.Context, method domain.StorePaymentMethod,
) error {
	if err := method.Validate(); err != nil {
		return err
	}
	return a.repoManager.PaymentMethods().Upsert(ctx, method)
}

func (a *adminService) ProcessorTypes() []ProcessorType {
	return a.registry.ProcessorTypes()
}
