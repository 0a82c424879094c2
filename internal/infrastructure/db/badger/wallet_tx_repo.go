package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"
)

const walletTxStoreDir = "wallet-txs"

type walletTxDTO struct {
	StoreId         string
	PaymentMethodId string
	Txid            string
	PayoutId        string
	PullPaymentId   string
	CreatedAt       int64
}

type walletTxRepository struct {
	store *badgerhold.Store
}

func NewWalletTxRepository(config ...interface{}) (domain.WalletTxRepository, error) {
	store, err := openStore(walletTxStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet tx store: %s", err)
	}
	return &walletTxRepository{store}, nil
}

func (r *walletTxRepository) Attach(
	ctx context.Context, attachments ...domain.WalletTxAttachment,
) error {
	return withRetry(ctx, func() error {
		return r.store.Badger().Update(func(tx *badger.Txn) error {
			for _, a := range attachments {
				key := fmt.Sprintf("%s/%s", a.Txid, a.PayoutId)
				dto := walletTxDTO{
					StoreId:         a.StoreId,
					PaymentMethodId: string(a.PaymentMethodId),
					Txid:            a.Txid,
					PayoutId:        a.PayoutId,
					PullPaymentId:   a.PullPaymentId,
					CreatedAt:       a.CreatedAt.UnixNano(),
				}
				// Attaching twice is a no-op.
				if err := r.store.TxInsert(tx, key, dto); err != nil &&
					!errors.Is(err, badgerhold.ErrKeyExists) {
					return err
				}
			}
			return nil
		})
	})
}

func (r *walletTxRepository) ListByTxid(
	ctx context.Context, txid string,
) ([]domain.WalletTxAttachment, error) {
	dtos := make([]walletTxDTO, 0)
	if err := r.store.Find(&dtos, badgerhold.Where("Txid").Eq(txid)); err != nil {
		return nil, err
	}

	attachments := make([]domain.WalletTxAttachment, 0, len(dtos))
	for _, dto := range dtos {
		attachments = append(attachments, domain.WalletTxAttachment{
			StoreId:         dto.StoreId,
			PaymentMethodId: domain.PayoutMethodId(dto.PaymentMethodId),
			Txid:            dto.Txid,
			PayoutId:        dto.PayoutId,
			PullPaymentId:   dto.PullPaymentId,
			CreatedAt:       time.Unix(0, dto.CreatedAt),
		})
	}
	sort.SliceStable(attachments, func(i, j int) bool {
		return attachments[i].PayoutId < attachments[j].PayoutId
	})
	return attachments, nil
}

func (r *walletTxRepository) Close() {
	//nolint:all
	r.store.Close()
}
