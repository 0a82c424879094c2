package application

import (
	"fmt"
	"sort"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txauthor"
)

// makeInputSource selects the biggest coins first until the target is met.
// All coins are returned if they are not enough, the caller detects the
// shortfall.
func makeInputSource(coins []ports.Coin) txauthor.InputSource {
	sorted := make([]ports.Coin, len(coins))
	copy(sorted, coins)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})

	return func(target btcutil.Amount) (
		btcutil.Amount, []*wire.TxIn, []btcutil.Amount, [][]byte, error,
	) {
		var (
			total   btcutil.Amount
			inputs  []*wire.TxIn
			values  []btcutil.Amount
			scripts [][]byte
		)
		for _, coin := range sorted {
			if total >= target {
				break
			}
			outpoint := coin.OutPoint
			inputs = append(inputs, wire.NewTxIn(&outpoint, nil, nil))
			values = append(values, coin.Value)
			scripts = append(scripts, coin.PkScript)
			total += coin.Value
		}
		return total, inputs, values, scripts, nil
	}
}

// secretsSource serves the keys of the account coins to the tx signer.
type secretsSource struct {
	keys   map[string]*btcec.PrivateKey
	params *chaincfg.Params
}

func newSecretsSource(
	method domain.StorePaymentMethod, coins []ports.Coin, params *chaincfg.Params,
) (*secretsSource, error) {
	keys := make(map[string]*btcec.PrivateKey)
	for _, coin := range coins {
		key, err := method.DerivePrivateKey(coin.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("key %s: %s", coin.KeyPath, err)
		}
		addr, err := btcutil.NewAddressWitnessPubKeyHash(
			btcutil.Hash160(key.PubKey().SerializeCompressed()), params,
		)
		if err != nil {
			return nil, err
		}
		keys[addr.EncodeAddress()] = key
	}
	return &secretsSource{keys, params}, nil
}

func (s *secretsSource) GetKey(addr btcutil.Address) (*btcec.PrivateKey, bool, error) {
	key, ok := s.keys[addr.EncodeAddress()]
	if !ok {
		return nil, false, fmt.Errorf("no key for address %s", addr.EncodeAddress())
	}
	return key, true, nil
}

func (s *secretsSource) GetScript(addr btcutil.Address) ([]byte, error) {
	return nil, fmt.Errorf("no redeem script for address %s", addr.EncodeAddress())
}

func (s *secretsSource) ChainParams() *chaincfg.Params {
	return s.params
}
