package domain

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

const (
	ExternalBranch uint32 = 0
	ChangeBranch   uint32 = 1
)

// KeyPath locates a key below the account extended key.
type KeyPath struct {
	Branch uint32
	Index  uint32
}

func (k KeyPath) String() string {
	return fmt.Sprintf("%d/%d", k.Branch, k.Index)
}

// StorePaymentMethod is the wallet a store uses to fund payouts of a given
// payment method. AccountKey is a BIP32 account-level extended key, private
// for hot wallets and public for watch-only ones.
type StorePaymentMethod struct {
	StoreId         string
	PaymentMethodId PayoutMethodId
	AccountKey      string
	Enabled         bool
}

func (m StorePaymentMethod) Validate() error {
	if len(m.StoreId) <= 0 {
		return fmt.Errorf("missing store id")
	}
	if len(m.PaymentMethodId) <= 0 {
		return fmt.Errorf("missing payment method id")
	}
	if _, err := hdkeychain.NewKeyFromString(m.AccountKey); err != nil {
		return fmt.Errorf("invalid account key: %w", err)
	}
	return nil
}

func (m StorePaymentMethod) IsHotWallet() bool {
	key, err := hdkeychain.NewKeyFromString(m.AccountKey)
	if err != nil {
		return false
	}
	return key.IsPrivate()
}

// AccountXpub returns the public extended key of the account, safe to hand
// to watch-only services.
func (m StorePaymentMethod) AccountXpub() (string, error) {
	key, err := hdkeychain.NewKeyFromString(m.AccountKey)
	if err != nil {
		return "", err
	}
	pub, err := key.Neuter()
	if err != nil {
		return "", err
	}
	return pub.String(), nil
}

func (m StorePaymentMethod) DerivePrivateKey(path KeyPath) (*btcec.PrivateKey, error) {
	key, err := m.deriveChild(path)
	if err != nil {
		return nil, err
	}
	if !key.IsPrivate() {
		return nil, fmt.Errorf("account key of store %s is watch-only", m.StoreId)
	}
	return key.ECPrivKey()
}

// DeriveAddress returns the P2WPKH address at the given path.
func (m StorePaymentMethod) DeriveAddress(
	path KeyPath, params *chaincfg.Params,
) (btcutil.Address, error) {
	key, err := m.deriveChild(path)
	if err != nil {
		return nil, err
	}
	return P2WPKHAddress(key, params)
}

func (m StorePaymentMethod) deriveChild(path KeyPath) (*hdkeychain.ExtendedKey, error) {
	key, err := hdkeychain.NewKeyFromString(m.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid account key: %w", err)
	}
	branch, err := key.Derive(path.Branch)
	if err != nil {
		return nil, err
	}
	return branch.Derive(path.Index)
}

func P2WPKHAddress(
	key *hdkeychain.ExtendedKey, params *chaincfg.Params,
) (btcutil.Address, error) {
	pubkey, err := key.ECPubKey()
	if err != nil {
		return nil, err
	}
	return btcutil.NewAddressWitnessPubKeyHash(
		btcutil.Hash160(pubkey.SerializeCompressed()), params,
	)
}

type StorePaymentMethodRepository interface {
	// Get returns nil if the store has no such payment method configured.
	Get(
		ctx context.Context, storeId string, paymentMethodId PayoutMethodId,
	) (*StorePaymentMethod, error)
	Upsert(ctx context.Context, method StorePaymentMethod) error
	Close()
}
