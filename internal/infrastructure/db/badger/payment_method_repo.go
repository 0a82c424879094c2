package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const paymentMethodStoreDir = "payment-methods"

type paymentMethodDTO struct {
	StoreId         string
	PaymentMethodId string
	AccountKey      string
	Enabled         bool
}

type paymentMethodRepository struct {
	store *badgerhold.Store
}

func NewStorePaymentMethodRepository(
	config ...interface{},
) (domain.StorePaymentMethodRepository, error) {
	store, err := openStore(paymentMethodStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open payment method store: %s", err)
	}
	return &paymentMethodRepository{store}, nil
}

func (r *paymentMethodRepository) Get(
	ctx context.Context, storeId string, paymentMethodId domain.PayoutMethodId,
) (*domain.StorePaymentMethod, error) {
	var dto paymentMethodDTO
	if err := r.store.Get(paymentMethodKey(storeId, paymentMethodId), &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.StorePaymentMethod{
		StoreId:         dto.StoreId,
		PaymentMethodId: domain.PayoutMethodId(dto.PaymentMethodId),
		AccountKey:      dto.AccountKey,
		Enabled:         dto.Enabled,
	}, nil
}

func (r *paymentMethodRepository) Upsert(
	ctx context.Context, method domain.StorePaymentMethod,
) error {
	dto := paymentMethodDTO{
		StoreId:         method.StoreId,
		PaymentMethodId: string(method.PaymentMethodId),
		AccountKey:      method.AccountKey,
		Enabled:         method.Enabled,
	}
	return withRetry(ctx, func() error {
		return r.store.Upsert(paymentMethodKey(method.StoreId, method.PaymentMethodId), dto)
	})
}

func (r *paymentMethodRepository) Close() {
	//nolint:all
	r.store.Close()
}

func paymentMethodKey(storeId string, paymentMethodId domain.PayoutMethodId) string {
	return fmt.Sprintf("%s/%s", storeId, paymentMethodId)
}
