package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/infrastructure/db/sqlite/sqlc/queries"
)

type paymentMethodRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewStorePaymentMethodRepository(
	config ...interface{},
) (domain.StorePaymentMethodRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open payment method repository: invalid config, expected db at 0",
		)
	}

	return &paymentMethodRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *paymentMethodRepository) Get(
	ctx context.Context, storeId string, paymentMethodId domain.PayoutMethodId,
) (*domain.StorePaymentMethod, error) {
	row, err := r.querier.SelectStorePaymentMethod(
		ctx, queries.SelectStorePaymentMethodParams{
			StoreID:         storeId,
			PaymentMethodID: string(paymentMethodId),
		},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}

	return &domain.StorePaymentMethod{
		StoreId:         row.StoreID,
		PaymentMethodId: domain.PayoutMethodId(row.PaymentMethodID),
		AccountKey:      row.AccountKey,
		Enabled:         row.Enabled,
	}, nil
}

func (r *paymentMethodRepository) Upsert(
	ctx context.Context, method domain.StorePaymentMethod,
) error {
	if err := r.querier.UpsertStorePaymentMethod(
		ctx, queries.UpsertStorePaymentMethodParams{
			StoreID:         method.StoreId,
			PaymentMethodID: string(method.PaymentMethodId),
			AccountKey:      method.AccountKey,
			Enabled:         method.Enabled,
		},
	); err != nil {
		return fmt.Errorf("failed to upsert payment method: %w", err)
	}
	return nil
}

func (r *paymentMethodRepository) Close() {
	_ = r.db.Close()
}
