package application_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ark-network/payoutd/internal/core/application"
	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	storeId          = "store"
	onchainProcessor = domain.OnChainAutomatedPayoutSenderFactory
	oneBtc           = 100_000_000
)

var (
	regtest  = &chaincfg.RegressionNetParams
	btcChain = domain.NewPayoutMethodId("BTC", domain.OnChainPaymentType)
)

type onchainFixture struct {
	blob         domain.ProcessorBlob
	method       domain.StorePaymentMethod
	coins        []ports.Coin
	notReady     bool
	feeErr       error
	broadcastErr error
	neverSeen    bool
	// updateErrs are returned by the first payout updates, in order.
	updateErrs []error
}

type onchainSetup struct {
	processor    application.PayoutProcessor
	wallet       *mockedWallet
	feeEstimator *mockedFeeEstimator
	repoManager  *mockedRepoManager
}

func newOnchainSetup(t *testing.T, f onchainFixture) onchainSetup {
	changeAddr, err := f.method.DeriveAddress(
		domain.KeyPath{Branch: domain.ChangeBranch, Index: 0}, regtest,
	)
	require.NoError(t, err)

	observed := make(chan struct{})
	if !f.neverSeen {
		close(observed)
	}

	wallet := &mockedWallet{}
	wallet.On("Network").Return(regtest)
	wallet.On("IsReady", mock.Anything).Return(!f.notReady)
	wallet.On("ListUnspent", mock.Anything, mock.Anything).Return(f.coins, nil)
	wallet.On("ReserveChangeAddress", mock.Anything, mock.Anything).Return(changeAddr, nil)
	wallet.On("SubscribeTransaction", mock.Anything, mock.Anything).Return(observed)
	wallet.On("BroadcastTransaction", mock.Anything, mock.Anything).Return(f.broadcastErr)

	feeEstimator := &mockedFeeEstimator{}
	if f.feeErr != nil {
		feeEstimator.On("FeeRate", mock.Anything, mock.Anything).Return(nil, f.feeErr)
	} else {
		feeEstimator.On("FeeRate", mock.Anything, uint32(1)).Return(
			chainfee.SatPerKVByte(2000), nil,
		)
	}

	repoManager := newMockedRepoManager()
	for _, err := range f.updateErrs {
		repoManager.payouts.On("Update", mock.Anything, mock.Anything).Return(err).Once()
	}
	repoManager.payouts.On("Update", mock.Anything, mock.Anything).Return(nil)
	repoManager.walletTxs.On("Attach", mock.Anything, mock.Anything).Return(nil)

	factory := application.NewOnchainPayoutProcessorFactory(
		repoManager, wallet, feeEstimator, 200*time.Millisecond,
	)
	processor, err := factory.NewProcessor(domain.PayoutProcessor{
		Id:             "processor",
		StoreId:        storeId,
		PayoutMethodId: btcChain,
		Processor:      onchainProcessor,
		Blob:           f.blob.Normalize(0, 0),
	})
	require.NoError(t, err)

	return onchainSetup{processor, wallet, feeEstimator, repoManager}
}

func TestOnchainProcessor(t *testing.T) {
	ctx := context.Background()
	hotWallet := newHotWallet(t)

	t.Run("batch_with_insufficient_funds", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
		})
		payouts := []*domain.Payout{
			newPayout(t, "0.1", destination(t, 0)),
			newPayout(t, "10", destination(t, 1)),
			newPayout(t, "0.05", destination(t, 2)),
		}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)

		tx := broadcastedTx(t, s.wallet)
		txid := tx.TxHash().String()

		for _, i := range []int{0, 2} {
			require.Equal(t, domain.PayoutStateInProgress, payouts[i].State)
			require.Zero(t, payouts[i].Blob.ErrorCount)
			proof, err := payouts[i].OnchainProof()
			require.NoError(t, err)
			require.Equal(t, txid, proof.TransactionId)
			require.Equal(t, []string{txid}, proof.Candidates)
		}

		require.Equal(t, domain.PayoutStateAwaitingPayment, payouts[1].State)
		require.Equal(t, 1, payouts[1].Blob.ErrorCount)
		require.False(t, payouts[1].IsProcessorDisabled(onchainProcessor))
		require.Empty(t, payouts[1].Proof)

		// Payouts already stored in progress are not written again.
		for _, i := range []int{0, 2} {
			require.False(t, payouts[i].IsDirty())
			require.Equal(t, domain.PayoutStateInProgress, payouts[i].StoredState())
		}
		require.True(t, payouts[1].IsDirty())

		require.Len(t, tx.TxIn, 1)
		require.Len(t, tx.TxIn[0].Witness, 2)
		require.Len(t, tx.TxOut, 3)
		require.EqualValues(t, 10_000_000, tx.TxOut[0].Value)
		require.EqualValues(t, 5_000_000, tx.TxOut[1].Value)

		s.repoManager.payouts.AssertNumberOfCalls(t, "Update", 1)
		s.repoManager.walletTxs.AssertNumberOfCalls(t, "Attach", 1)
		attachments := s.repoManager.walletTxs.Calls[0].Arguments.Get(1).([]domain.WalletTxAttachment)
		require.Len(t, attachments, 2)
		require.Equal(t, payouts[0].Id, attachments[0].PayoutId)
		require.Equal(t, txid, attachments[0].Txid)
	})

	t.Run("pays_what_the_wallet_affords_in_order", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, 20_000_000)},
		})
		payouts := []*domain.Payout{
			newPayout(t, "0.1", destination(t, 0)),
			newPayout(t, "0.05", destination(t, 1)),
			newPayout(t, "10", destination(t, 2)),
		}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)

		tx := broadcastedTx(t, s.wallet)
		txid := tx.TxHash().String()
		for _, payout := range payouts[:2] {
			require.Equal(t, domain.PayoutStateInProgress, payout.State)
			require.Zero(t, payout.Blob.ErrorCount)
			proof, err := payout.OnchainProof()
			require.NoError(t, err)
			require.Equal(t, txid, proof.TransactionId)
		}
		require.Equal(t, domain.PayoutStateAwaitingPayment, payouts[2].State)
		require.Equal(t, 1, payouts[2].Blob.ErrorCount)
		require.Empty(t, payouts[2].Proof)

		require.Len(t, tx.TxOut, 3)
		require.EqualValues(t, 10_000_000, tx.TxOut[0].Value)
		require.EqualValues(t, 5_000_000, tx.TxOut[1].Value)
	})

	t.Run("leaves_out_payouts_changed_concurrently", func(t *testing.T) {
		payouts := []*domain.Payout{
			newPayout(t, "0.1", destination(t, 0)),
			newPayout(t, "0.2", destination(t, 1)),
			newPayout(t, "0.3", destination(t, 2)),
		}
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
			updateErrs: []error{
				fmt.Errorf("failed to execute transaction: %w", domain.PayoutConflictError{
					PayoutIds: []string{payouts[1].Id},
				}),
			},
		})

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)

		s.repoManager.payouts.AssertNumberOfCalls(t, "Update", 2)
		var updates [][]domain.Payout
		for _, call := range s.repoManager.payouts.Calls {
			if call.Method == "Update" {
				updates = append(updates, call.Arguments.Get(1).([]domain.Payout))
			}
		}
		require.Len(t, updates[0], 3)
		require.Len(t, updates[1], 2)
		require.Equal(t, payouts[0].Id, updates[1][0].Id)
		require.Equal(t, payouts[2].Id, updates[1][1].Id)

		tx := broadcastedTx(t, s.wallet)
		txid := tx.TxHash().String()
		require.Len(t, tx.TxOut, 3)
		require.EqualValues(t, 10_000_000, tx.TxOut[0].Value)
		require.EqualValues(t, 30_000_000, tx.TxOut[1].Value)

		for _, i := range []int{0, 2} {
			require.Equal(t, domain.PayoutStateInProgress, payouts[i].State)
			proof, err := payouts[i].OnchainProof()
			require.NoError(t, err)
			require.Equal(t, txid, proof.TransactionId)
		}
		require.Equal(t, domain.PayoutStateAwaitingPayment, payouts[1].State)
		require.Empty(t, payouts[1].Proof)
		require.Zero(t, payouts[1].Blob.ErrorCount)

		attachments := s.repoManager.walletTxs.Calls[0].Arguments.Get(1).([]domain.WalletTxAttachment)
		require.Len(t, attachments, 2)
	})

	t.Run("conflict_on_every_payout", func(t *testing.T) {
		payout := newPayout(t, "0.1", destination(t, 0))
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
			updateErrs: []error{
				domain.PayoutConflictError{PayoutIds: []string{payout.Id}},
			},
		})

		err := s.processor.Process(ctx, hotWallet, []*domain.Payout{payout})
		require.NoError(t, err)

		s.repoManager.payouts.AssertNumberOfCalls(t, "Update", 1)
		s.wallet.AssertNotCalled(t, "BroadcastTransaction", mock.Anything, mock.Anything)
		require.Equal(t, domain.PayoutStateAwaitingPayment, payout.State)
	})

	t.Run("insufficient_funds_ceiling", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
		})
		payouts := []*domain.Payout{
			newPayout(t, "2", destination(t, 0)),
			newPayout(t, "3", destination(t, 1)),
			newPayout(t, "0.5", destination(t, 2)),
			newPayout(t, "0.6", destination(t, 3)),
			newPayout(t, "0.7", destination(t, 4)),
		}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)

		expected := []struct {
			state      domain.PayoutState
			errorCount int
		}{
			{domain.PayoutStateAwaitingPayment, 1},
			// Skipped for being above the first failed amount.
			{domain.PayoutStateAwaitingPayment, 0},
			{domain.PayoutStateInProgress, 0},
			{domain.PayoutStateAwaitingPayment, 1},
			// Skipped for being above 0.6.
			{domain.PayoutStateAwaitingPayment, 0},
		}
		for i, e := range expected {
			require.Equal(t, e.state, payouts[i].State, i)
			require.Equal(t, e.errorCount, payouts[i].Blob.ErrorCount, i)
		}
	})

	t.Run("error_count_latch", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
		})
		payout := newPayout(t, "10", destination(t, 0))
		payout.Blob.ErrorCount = domain.MaxPayoutErrorCount - 1

		err := s.processor.Process(ctx, hotWallet, []*domain.Payout{payout})
		require.NoError(t, err)
		require.Equal(t, domain.MaxPayoutErrorCount, payout.Blob.ErrorCount)
		require.True(t, payout.IsProcessorDisabled(onchainProcessor))
		s.wallet.AssertNotCalled(t, "BroadcastTransaction", mock.Anything, mock.Anything)
	})

	t.Run("dust_output", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
		})
		payouts := []*domain.Payout{
			newPayout(t, "0.000001", destination(t, 0)),
			newPayout(t, "0.5", destination(t, 1)),
		}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutStateAwaitingPayment, payouts[0].State)
		require.Equal(t, 1, payouts[0].Blob.ErrorCount)
		require.Equal(t, domain.PayoutStateInProgress, payouts[1].State)
	})

	t.Run("invalid_destination", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
		})
		payouts := []*domain.Payout{
			newPayout(t, "0.1", "not an address"),
			newPayout(t, "0.1", mainnetDestination(t)),
			newPayout(t, "0.1", fmt.Sprintf("bitcoin:%s?amount=0.1", destination(t, 0))),
		}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)
		for _, p := range payouts[:2] {
			require.True(t, p.IsProcessorDisabled(onchainProcessor))
			require.Equal(t, domain.PayoutStateAwaitingPayment, p.State)
		}
		require.Equal(t, domain.PayoutStateInProgress, payouts[2].State)
	})

	t.Run("threshold", func(t *testing.T) {
		fixtures := []struct {
			threshold string
			processed bool
		}{
			{"1", false},
			{"0.15", true},
			{"0", true},
		}

		for _, f := range fixtures {
			s := newOnchainSetup(t, onchainFixture{
				blob:   domain.ProcessorBlob{Threshold: decimal.RequireFromString(f.threshold)},
				method: hotWallet,
				coins:  []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
			})
			payouts := []*domain.Payout{
				newPayout(t, "0.1", destination(t, 0)),
				newPayout(t, "0.05", destination(t, 1)),
			}

			err := s.processor.Process(ctx, hotWallet, payouts)
			require.NoError(t, err)

			if !f.processed {
				s.wallet.AssertNotCalled(t, "ListUnspent", mock.Anything, mock.Anything)
				for _, p := range payouts {
					require.False(t, p.IsDirty())
				}
				continue
			}
			for _, p := range payouts {
				require.Equal(t, domain.PayoutStateInProgress, p.State)
			}
		}
	})

	t.Run("watch_only_wallet", func(t *testing.T) {
		watchOnly := hotWallet
		xpub, err := hotWallet.AccountXpub()
		require.NoError(t, err)
		watchOnly.AccountKey = xpub

		s := newOnchainSetup(t, onchainFixture{method: watchOnly})
		payouts := []*domain.Payout{
			newPayout(t, "0.1", destination(t, 0)),
			newPayout(t, "0.05", destination(t, 1)),
		}

		err = s.processor.Process(ctx, watchOnly, payouts)
		require.NoError(t, err)
		for _, p := range payouts {
			require.Equal(t, 1, p.Blob.ErrorCount)
			require.True(t, p.IsProcessorDisabled(onchainProcessor))
			require.Equal(t, domain.PayoutStateAwaitingPayment, p.State)
		}
		s.wallet.AssertNotCalled(t, "IsReady", mock.Anything)
	})

	t.Run("transient_failures", func(t *testing.T) {
		fixtures := []struct {
			name        string
			fixture     onchainFixture
			expectedErr error
		}{
			{
				name:        "wallet_unavailable",
				fixture:     onchainFixture{notReady: true},
				expectedErr: application.ErrWalletUnavailable,
			},
			{
				name:    "fee_rate_unavailable",
				fixture: onchainFixture{feeErr: errors.New("no fee estimates")},
			},
		}

		for _, f := range fixtures {
			t.Run(f.name, func(t *testing.T) {
				f.fixture.method = hotWallet
				f.fixture.coins = []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)}
				s := newOnchainSetup(t, f.fixture)
				payouts := []*domain.Payout{newPayout(t, "0.1", destination(t, 0))}

				err := s.processor.Process(ctx, hotWallet, payouts)
				require.Error(t, err)
				if f.expectedErr != nil {
					require.ErrorIs(t, err, f.expectedErr)
				}
				require.False(t, payouts[0].IsDirty())
				s.wallet.AssertNotCalled(t, "BroadcastTransaction", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("broadcast_rejected", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method:       hotWallet,
			coins:        []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
			broadcastErr: fmt.Errorf("%w: bad-txns-inputs-missingorspent", ports.ErrBroadcastRejected),
		})
		payouts := []*domain.Payout{newPayout(t, "0.1", destination(t, 0))}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutStateAwaitingPayment, payouts[0].State)
		require.Empty(t, payouts[0].Proof)
		require.Equal(t, 1, payouts[0].Blob.ErrorCount)

		// Payouts are persisted in progress before broadcasting.
		s.repoManager.payouts.AssertNumberOfCalls(t, "Update", 1)
		updated := s.repoManager.payouts.Calls[0].Arguments.Get(1).([]domain.Payout)
		require.Equal(t, domain.PayoutStateInProgress, updated[0].State)
		s.repoManager.walletTxs.AssertNotCalled(t, "Attach", mock.Anything, mock.Anything)
	})

	t.Run("broadcast_failed", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method:       hotWallet,
			coins:        []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
			broadcastErr: errors.New("connection reset by peer"),
		})
		payouts := []*domain.Payout{newPayout(t, "0.1", destination(t, 0))}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutStateInProgress, payouts[0].State)
		require.Zero(t, payouts[0].Blob.ErrorCount)
		s.repoManager.walletTxs.AssertNotCalled(t, "Attach", mock.Anything, mock.Anything)
	})

	t.Run("transaction_never_seen", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method:    hotWallet,
			coins:     []ports.Coin{newCoin(t, hotWallet, 0, oneBtc)},
			neverSeen: true,
		})
		payouts := []*domain.Payout{newPayout(t, "0.1", destination(t, 0))}

		start := time.Now()
		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
		require.Equal(t, domain.PayoutStateInProgress, payouts[0].State)
	})

	t.Run("multiple_coins", func(t *testing.T) {
		s := newOnchainSetup(t, onchainFixture{
			method: hotWallet,
			coins: []ports.Coin{
				newCoin(t, hotWallet, 0, oneBtc/2),
				newCoin(t, hotWallet, 1, oneBtc/2),
				newCoin(t, hotWallet, 2, oneBtc/10),
			},
		})
		payouts := []*domain.Payout{newPayout(t, "0.9", destination(t, 0))}

		err := s.processor.Process(ctx, hotWallet, payouts)
		require.NoError(t, err)
		require.Equal(t, domain.PayoutStateInProgress, payouts[0].State)

		tx := broadcastedTx(t, s.wallet)
		require.Len(t, tx.TxIn, 2)
		for _, in := range tx.TxIn {
			require.Len(t, in.Witness, 2)
		}
	})
}

func TestOnchainFactory(t *testing.T) {
	factory := application.NewOnchainPayoutProcessorFactory(
		newMockedRepoManager(), &mockedWallet{}, &mockedFeeEstimator{}, 0,
	)
	require.Equal(t, onchainProcessor, factory.Processor())
	require.Equal(t, []domain.PayoutMethodId{btcChain}, factory.SupportedPayoutMethods())

	_, err := factory.NewProcessor(domain.PayoutProcessor{
		StoreId:        storeId,
		PayoutMethodId: domain.NewPayoutMethodId("BTC", domain.LightningPaymentType),
		Processor:      onchainProcessor,
	})
	require.ErrorIs(t, err, application.ErrUnsupportedPayoutMethod)
}

func newHotWallet(t *testing.T) domain.StorePaymentMethod {
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{1}, 32), regtest)
	require.NoError(t, err)
	return domain.StorePaymentMethod{
		StoreId:         storeId,
		PaymentMethodId: btcChain,
		AccountKey:      master.String(),
		Enabled:         true,
	}
}

func newCoin(
	t *testing.T, method domain.StorePaymentMethod, index uint32, sats int64,
) ports.Coin {
	path := domain.KeyPath{Branch: domain.ExternalBranch, Index: index}
	addr, err := method.DeriveAddress(path, regtest)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	return ports.Coin{
		OutPoint:  wire.OutPoint{Hash: chainhash.Hash{byte(index + 1)}, Index: index},
		Value:     btcutil.Amount(sats),
		PkScript:  script,
		KeyPath:   path,
		Confirmed: true,
	}
}

func destination(t *testing.T, index uint32) string {
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{2}, 32), regtest)
	require.NoError(t, err)
	key, err := master.Derive(index)
	require.NoError(t, err)
	addr, err := domain.P2WPKHAddress(key, regtest)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func mainnetDestination(t *testing.T) string {
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{3}, 32), &chaincfg.MainNetParams)
	require.NoError(t, err)
	addr, err := domain.P2WPKHAddress(master, &chaincfg.MainNetParams)
	require.NoError(t, err)
	return addr.EncodeAddress()
}

func newPayout(t *testing.T, amount, destination string) *domain.Payout {
	payout, err := domain.NewPayout(
		storeId, "pull-payment", btcChain, destination, decimal.RequireFromString(amount),
	)
	require.NoError(t, err)
	return payout
}

func broadcastedTx(t *testing.T, wallet *mockedWallet) *wire.MsgTx {
	for _, call := range wallet.Calls {
		if call.Method == "BroadcastTransaction" {
			return call.Arguments.Get(1).(*wire.MsgTx)
		}
	}
	require.FailNow(t, "no transaction broadcasted")
	return nil
}
