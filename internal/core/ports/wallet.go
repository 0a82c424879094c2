package ports

import (
	"context"
	"errors"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ErrBroadcastRejected is returned when the node definitively refuses a tx,
// as opposed to failing to tell whether it accepted it.
var ErrBroadcastRejected = errors.New("transaction rejected")

type WalletService interface {
	Network() *chaincfg.Params
	IsReady(ctx context.Context) bool
	// ListUnspent returns the spendable coins of the account, each with the
	// path of its key below the account key.
	ListUnspent(ctx context.Context, method domain.StorePaymentMethod) ([]Coin, error)
	// ReserveChangeAddress returns a change address not handed out before.
	ReserveChangeAddress(
		ctx context.Context, method domain.StorePaymentMethod,
	) (btcutil.Address, error)
	BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error
	// SubscribeTransaction returns a channel closed once the tx is seen by
	// the node. The subscription ends when ctx is done.
	SubscribeTransaction(ctx context.Context, txid chainhash.Hash) <-chan struct{}
	Close()
}

type Coin struct {
	OutPoint  wire.OutPoint
	Value     btcutil.Amount
	PkScript  []byte
	KeyPath   domain.KeyPath
	Confirmed bool
}
