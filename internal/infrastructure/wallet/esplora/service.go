package esplorawallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/ark-network/payoutd/internal/infrastructure/esplora"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultGapLimit     = 20
	defaultPollInterval = 2 * time.Second
)

// service is a stateless HD wallet backed by esplora: coins are found by
// scanning the external and change branches of the account key up to the
// gap limit.
type service struct {
	client       *esplora.Client
	params       *chaincfg.Params
	gapLimit     uint32
	pollInterval time.Duration

	lock sync.Mutex
	// next change index not yet handed out, by store/method.
	reservedChange map[string]uint32
}

func NewService(
	client *esplora.Client, params *chaincfg.Params, gapLimit uint32,
	pollInterval time.Duration,
) (ports.WalletService, error) {
	if client == nil {
		return nil, fmt.Errorf("missing esplora client")
	}
	if params == nil {
		return nil, fmt.Errorf("missing network")
	}
	if gapLimit == 0 {
		gapLimit = DefaultGapLimit
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &service{
		client:         client,
		params:         params,
		gapLimit:       gapLimit,
		pollInterval:   pollInterval,
		reservedChange: make(map[string]uint32),
	}, nil
}

func (s *service) Network() *chaincfg.Params {
	return s.params
}

func (s *service) IsReady(ctx context.Context) bool {
	if _, err := s.client.TipHeight(ctx); err != nil {
		log.WithError(err).Debug("esplora not reachable")
		return false
	}
	return true
}

func (s *service) ListUnspent(
	ctx context.Context, method domain.StorePaymentMethod,
) ([]ports.Coin, error) {
	coins := make([]ports.Coin, 0)
	for _, branch := range []uint32{domain.ExternalBranch, domain.ChangeBranch} {
		_, err := s.scanBranch(ctx, method, branch, func(
			path domain.KeyPath, addr btcutil.Address,
		) error {
			utxos, err := s.client.Utxos(ctx, addr.EncodeAddress())
			if err != nil {
				return err
			}
			script, err := txscript.PayToAddrScript(addr)
			if err != nil {
				return err
			}
			for _, u := range utxos {
				hash, err := chainhash.NewHashFromStr(u.Txid)
				if err != nil {
					return fmt.Errorf("invalid utxo txid %s: %w", u.Txid, err)
				}
				coins = append(coins, ports.Coin{
					OutPoint:  *wire.NewOutPoint(hash, u.Vout),
					Value:     btcutil.Amount(u.Value),
					PkScript:  script,
					KeyPath:   path,
					Confirmed: u.Status.Confirmed,
				})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list unspents of store %s: %w", method.StoreId, err)
		}
	}
	return coins, nil
}

func (s *service) ReserveChangeAddress(
	ctx context.Context, method domain.StorePaymentMethod,
) (btcutil.Address, error) {
	firstUnused, err := s.scanBranch(ctx, method, domain.ChangeBranch, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scan change branch: %w", err)
	}

	key := fmt.Sprintf("%s/%s", method.StoreId, method.PaymentMethodId)

	s.lock.Lock()
	index := max(firstUnused, s.reservedChange[key])
	s.reservedChange[key] = index + 1
	s.lock.Unlock()

	return method.DeriveAddress(
		domain.KeyPath{Branch: domain.ChangeBranch, Index: index}, s.params,
	)
}

func (s *service) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error {
	return s.client.Broadcast(ctx, tx)
}

func (s *service) SubscribeTransaction(
	ctx context.Context, txid chainhash.Hash,
) <-chan struct{} {
	ch := make(chan struct{})

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := s.client.Tx(ctx, txid.String())
				if err == nil {
					close(ch)
					return
				}
				if !errors.Is(err, esplora.ErrNotFound) && ctx.Err() == nil {
					log.WithError(err).Debugf("failed to get tx %s", txid)
				}
			}
		}
	}()

	return ch
}

func (s *service) Close() {}

// scanBranch walks the addresses of the given branch until gapLimit
// consecutive unused ones, calling visit on every used address. It returns
// the index of the first unused address.
func (s *service) scanBranch(
	ctx context.Context, method domain.StorePaymentMethod, branch uint32,
	visit func(domain.KeyPath, btcutil.Address) error,
) (uint32, error) {
	var firstUnused uint32
	foundUnused := false
	gap := uint32(0)

	for index := uint32(0); gap < s.gapLimit; index++ {
		path := domain.KeyPath{Branch: branch, Index: index}
		addr, err := method.DeriveAddress(path, s.params)
		if err != nil {
			return 0, err
		}

		info, err := s.client.Address(ctx, addr.EncodeAddress())
		if err != nil {
			return 0, err
		}

		if !info.IsUsed() {
			if !foundUnused {
				firstUnused = index
				foundUnused = true
			}
			gap++
			continue
		}

		// A used address after a gap moves the first unused index forward.
		foundUnused = false
		gap = 0
		if visit != nil {
			if err := visit(path, addr); err != nil {
				return 0, err
			}
		}
	}

	return firstUnused, nil
}
