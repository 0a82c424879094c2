package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/infrastructure/db/sqlite/sqlc/queries"
)

type walletTxRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewWalletTxRepository(config ...interface{}) (domain.WalletTxRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open wallet tx repository: invalid config, expected db at 0")
	}

	return &walletTxRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *walletTxRepository) Attach(
	ctx context.Context, attachments ...domain.WalletTxAttachment,
) error {
	return execTx(ctx, r.db, func(querierWithTx *queries.Queries) error {
		for _, a := range attachments {
			if err := querierWithTx.InsertWalletTxAttachment(
				ctx, queries.InsertWalletTxAttachmentParams{
					Txid:            a.Txid,
					PayoutID:        a.PayoutId,
					StoreID:         a.StoreId,
					PaymentMethodID: string(a.PaymentMethodId),
					PullPaymentID:   a.PullPaymentId,
					CreatedAt:       a.CreatedAt.UnixNano(),
				},
			); err != nil {
				return fmt.Errorf("failed to attach payout %s: %w", a.PayoutId, err)
			}
		}
		return nil
	})
}

func (r *walletTxRepository) ListByTxid(
	ctx context.Context, txid string,
) ([]domain.WalletTxAttachment, error) {
	rows, err := r.querier.SelectWalletTxAttachmentsByTxid(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet tx attachments: %w", err)
	}

	attachments := make([]domain.WalletTxAttachment, 0, len(rows))
	for _, row := range rows {
		attachments = append(attachments, domain.WalletTxAttachment{
			StoreId:         row.StoreID,
			PaymentMethodId: domain.PayoutMethodId(row.PaymentMethodID),
			Txid:            row.Txid,
			PayoutId:        row.PayoutID,
			PullPaymentId:   row.PullPaymentID,
			CreatedAt:       time.Unix(0, row.CreatedAt),
		})
	}
	return attachments, nil
}

func (r *walletTxRepository) Close() {
	_ = r.db.Close()
}
