package application

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

const bip21Scheme = "bitcoin"

// parseDestination resolves a payout claim, a plain address or a BIP21 uri,
// into an address of the given network.
func parseDestination(destination string, params *chaincfg.Params) (btcutil.Address, error) {
	str := strings.TrimSpace(destination)
	if scheme, _, ok := strings.Cut(str, ":"); ok && strings.EqualFold(scheme, bip21Scheme) {
		u, err := url.Parse(str)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, err)
		}
		str = u.Opaque
	}
	if len(str) <= 0 {
		return nil, fmt.Errorf("%w: missing address", ErrInvalidDestination)
	}

	addr, err := btcutil.DecodeAddress(str, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, err)
	}
	if !addr.IsForNet(params) {
		return nil, fmt.Errorf(
			"%w: address %s is not for %s", ErrInvalidDestination, str, params.Name,
		)
	}
	return addr, nil
}
