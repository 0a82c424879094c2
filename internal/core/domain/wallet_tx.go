package domain

import (
	"context"
	"time"
)

// WalletTxAttachment links a wallet transaction to the payout it pays, for
// later reconciliation.
type WalletTxAttachment struct {
	StoreId         string
	PaymentMethodId PayoutMethodId
	Txid            string
	PayoutId        string
	PullPaymentId   string
	CreatedAt       time.Time
}

type WalletTxRepository interface {
	Attach(ctx context.Context, attachments ...WalletTxAttachment) error
	ListByTxid(ctx context.Context, txid string) ([]WalletTxAttachment, error)
	Close()
}
