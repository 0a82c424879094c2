package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/lightningnetwork/lnd/lnwallet/chainfee"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const defaultBroadcastWaitTimeout = 20 * time.Second

var btcChain = domain.NewPayoutMethodId("BTC", domain.OnChainPaymentType)

type onchainFactory struct {
	repoManager          ports.RepoManager
	wallet               ports.WalletService
	feeEstimator         ports.FeeEstimator
	broadcastWaitTimeout time.Duration
}

func NewOnchainPayoutProcessorFactory(
	repoManager ports.RepoManager, wallet ports.WalletService,
	feeEstimator ports.FeeEstimator, broadcastWaitTimeout time.Duration,
) PayoutProcessorFactory {
	if broadcastWaitTimeout <= 0 {
		broadcastWaitTimeout = defaultBroadcastWaitTimeout
	}
	return &onchainFactory{repoManager, wallet, feeEstimator, broadcastWaitTimeout}
}

func (f *onchainFactory) Processor() string {
	return domain.OnChainAutomatedPayoutSenderFactory
}

func (f *onchainFactory) SupportedPayoutMethods() []domain.PayoutMethodId {
	return []domain.PayoutMethodId{btcChain}
}

func (f *onchainFactory) NewProcessor(
	config domain.PayoutProcessor,
) (PayoutProcessor, error) {
	if !slices.Contains(f.SupportedPayoutMethods(), config.PayoutMethodId) {
		return nil, fmt.Errorf("%w %s", ErrUnsupportedPayoutMethod, config.PayoutMethodId)
	}
	return &onchainProcessor{
		config:               config,
		repoManager:          f.repoManager,
		wallet:               f.wallet,
		feeEstimator:         f.feeEstimator,
		broadcastWaitTimeout: f.broadcastWaitTimeout,
	}, nil
}

// onchainProcessor pays as many payouts as the wallet can afford with a
// single transaction.
type onchainProcessor struct {
	config               domain.PayoutProcessor
	repoManager          ports.RepoManager
	wallet               ports.WalletService
	feeEstimator         ports.FeeEstimator
	broadcastWaitTimeout time.Duration
}

func (p *onchainProcessor) Process(
	ctx context.Context, method domain.StorePaymentMethod, payouts []*domain.Payout,
) error {
	name := p.config.Processor
	logger := log.WithField("processor", p.config.Key().String())

	if !method.IsHotWallet() {
		for _, payout := range payouts {
			payout.IncrementErrorCount(name)
			payout.DisableProcessor(name)
		}
		logger.Warnf(
			"store wallet is not a hot wallet, disabled processor for %d payouts",
			len(payouts),
		)
		return nil
	}

	if !p.wallet.IsReady(ctx) {
		return ErrWalletUnavailable
	}

	total := decimal.Zero
	for _, payout := range payouts {
		total = total.Add(payout.Amount)
	}
	if total.LessThan(p.config.Blob.Threshold) {
		logger.Debugf(
			"payouts total %s below threshold %s, skipping",
			total, p.config.Blob.Threshold,
		)
		return nil
	}

	coins, err := p.wallet.ListUnspent(ctx, method)
	if err != nil {
		return fmt.Errorf("failed to list unspent coins: %s", err)
	}
	params := p.wallet.Network()
	secrets, err := newSecretsSource(method, coins, params)
	if err != nil {
		return fmt.Errorf("failed to derive signing keys: %s", err)
	}

	feeRate, err := p.feeEstimator.FeeRate(
		ctx, max(p.config.Blob.FeeTargetBlock, 1),
	)
	if err != nil {
		return fmt.Errorf("failed to get fee rate: %s", err)
	}

	changeAddr, err := p.wallet.ReserveChangeAddress(ctx, method)
	if err != nil {
		return fmt.Errorf("failed to reserve change address: %s", err)
	}
	changeScript, err := txscript.PayToAddrScript(changeAddr)
	if err != nil {
		return fmt.Errorf("invalid change address: %s", err)
	}

	b := &txBuilder{
		coins:        coins,
		secrets:      secrets,
		feeRate:      feeRate,
		changeScript: changeScript,
	}

	var (
		accepted []*domain.Payout
		outputs  []*wire.TxOut
		tx       *txauthor.AuthoredTx
		ceiling  *decimal.Decimal
	)
	for _, payout := range payouts {
		// A payout at least as big as one the wallet could not afford cannot
		// fit either.
		if ceiling != nil && payout.Amount.GreaterThanOrEqual(*ceiling) {
			continue
		}

		payoutLogger := logger.WithField("payout", payout.Id)

		addr, err := parseDestination(payout.Destination, params)
		if err != nil {
			payout.DisableProcessor(name)
			payoutLogger.WithError(err).Warn("invalid destination, disabled processor")
			continue
		}
		script, err := txscript.PayToAddrScript(addr)
		if err != nil {
			payout.DisableProcessor(name)
			payoutLogger.WithError(err).Warn("invalid destination, disabled processor")
			continue
		}

		output := wire.NewTxOut(int64(toSatoshis(payout.Amount)), script)
		candidate, err := b.addOutput(output)
		if err != nil {
			var inputErr txauthor.InputSourceError
			if errors.As(err, &inputErr) {
				amount := payout.Amount
				ceiling = &amount
			}
			disabled := payout.IncrementErrorCount(name)
			payoutLogger.WithError(err).WithField("disabled", disabled).Warn(
				"failed to add payout to transaction",
			)
			continue
		}

		accepted = append(accepted, payout)
		outputs = append(outputs, output)
		tx = candidate
	}

	for len(accepted) > 0 {
		err := p.markInProgress(ctx, tx, accepted)
		if err == nil {
			return p.broadcast(ctx, method, tx, accepted, logger)
		}

		var conflict domain.PayoutConflictError
		if !errors.As(err, &conflict) {
			return fmt.Errorf("failed to persist payouts in progress: %w", err)
		}
		logger.Warnf(
			"%d payouts changed while building the transaction, leaving them out",
			len(conflict.PayoutIds),
		)

		remaining, remainingOutputs, rebuilt := b.rebuild(
			accepted, outputs, conflict.PayoutIds, logger,
		)
		if len(remaining) == len(accepted) {
			return fmt.Errorf("failed to persist payouts in progress: %w", err)
		}
		accepted, outputs, tx = remaining, remainingOutputs, rebuilt
	}
	return nil
}

// markInProgress moves the payouts to InProgress with the proof of the given
// transaction and persists them as a single unit.
func (p *onchainProcessor) markInProgress(
	ctx context.Context, tx *txauthor.AuthoredTx, payouts []*domain.Payout,
) error {
	txid := tx.Tx.TxHash()
	proof := domain.OnchainPayoutProof{
		TransactionId: txid.String(),
		Candidates:    []string{txid.String()},
	}

	updated := make([]domain.Payout, 0, len(payouts))
	for _, payout := range payouts {
		if err := payout.MarkInProgress(proof); err != nil {
			revert(payouts)
			return err
		}
		updated = append(updated, *payout)
	}
	if err := p.repoManager.Payouts().Update(ctx, updated...); err != nil {
		revert(payouts)
		return err
	}
	for _, payout := range payouts {
		payout.MarkPersisted()
	}
	return nil
}

func (p *onchainProcessor) broadcast(
	ctx context.Context, method domain.StorePaymentMethod, tx *txauthor.AuthoredTx,
	payouts []*domain.Payout, logger *log.Entry,
) error {
	txid := tx.Tx.TxHash()

	waitCtx, cancel := context.WithTimeout(ctx, p.broadcastWaitTimeout)
	defer cancel()
	observed := p.wallet.SubscribeTransaction(waitCtx, txid)

	logger = logger.WithField("txid", txid.String())

	if err := p.wallet.BroadcastTransaction(ctx, tx.Tx); err != nil {
		if errors.Is(err, ports.ErrBroadcastRejected) {
			for _, payout := range payouts {
				payout.RevertToAwaitingPayment()
				payout.IncrementErrorCount(p.config.Processor)
			}
			logger.WithError(err).Warnf(
				"transaction rejected, %d payouts back to awaiting payment", len(payouts),
			)
			return nil
		}
		logger.WithError(err).Warnf(
			"failed to broadcast transaction, %d payouts left in progress", len(payouts),
		)
		return nil
	}

	attachments := make([]domain.WalletTxAttachment, 0, len(payouts))
	now := time.Now()
	for _, payout := range payouts {
		attachments = append(attachments, domain.WalletTxAttachment{
			StoreId:         method.StoreId,
			PaymentMethodId: method.PaymentMethodId,
			Txid:            txid.String(),
			PayoutId:        payout.Id,
			PullPaymentId:   payout.PullPaymentId,
			CreatedAt:       now,
		})
	}
	if err := p.repoManager.WalletTxs().Attach(ctx, attachments...); err != nil {
		logger.WithError(err).Warn("failed to attach payouts to wallet transaction")
	}

	select {
	case <-observed:
		logger.Infof("broadcasted transaction paying %d payouts", len(payouts))
	case <-waitCtx.Done():
		logger.Warnf(
			"transaction paying %d payouts not seen by the node after %s",
			len(payouts), p.broadcastWaitTimeout,
		)
	}
	return nil
}

// txBuilder rebuilds the whole transaction from scratch every time a new
// output is added, so coin selection, fees and change always account for
// every accepted output.
type txBuilder struct {
	coins        []ports.Coin
	secrets      *secretsSource
	feeRate      chainfee.SatPerKVByte
	changeScript []byte

	outputs []*wire.TxOut
}

func (b *txBuilder) addOutput(out *wire.TxOut) (*txauthor.AuthoredTx, error) {
	if err := txrules.CheckOutput(out, txrules.DefaultRelayFeePerKb); err != nil {
		return nil, err
	}

	outputs := append(slices.Clone(b.outputs), out)
	tx, err := txauthor.NewUnsignedTransaction(
		outputs, btcutil.Amount(b.feeRate), makeInputSource(b.coins),
		&txauthor.ChangeSource{
			NewScript:  func() ([]byte, error) { return b.changeScript, nil },
			ScriptSize: len(b.changeScript),
		},
	)
	if err != nil {
		return nil, err
	}
	if err := tx.AddAllInputScripts(b.secrets); err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %s", err)
	}

	b.outputs = outputs
	return tx, nil
}

// rebuild builds the transaction again from scratch without the excluded
// payouts. Payouts that no longer fit are left out without penalty.
func (b *txBuilder) rebuild(
	payouts []*domain.Payout, outputs []*wire.TxOut, excluded []string,
	logger *log.Entry,
) ([]*domain.Payout, []*wire.TxOut, *txauthor.AuthoredTx) {
	b.outputs = nil

	var (
		kept        []*domain.Payout
		keptOutputs []*wire.TxOut
		tx          *txauthor.AuthoredTx
	)
	for i, payout := range payouts {
		if slices.Contains(excluded, payout.Id) {
			continue
		}
		candidate, err := b.addOutput(outputs[i])
		if err != nil {
			logger.WithField("payout", payout.Id).WithError(err).Warn(
				"payout no longer fits the rebuilt transaction",
			)
			continue
		}
		kept = append(kept, payout)
		keptOutputs = append(keptOutputs, outputs[i])
		tx = candidate
	}
	return kept, keptOutputs, tx
}

func revert(payouts []*domain.Payout) {
	for _, payout := range payouts {
		if payout.State == domain.PayoutStateInProgress {
			payout.RevertToAwaitingPayment()
		}
	}
}
