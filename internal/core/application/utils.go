package application

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// toSatoshis converts a BTC denominated amount, rounding to the closest sat.
func toSatoshis(amount decimal.Decimal) btcutil.Amount {
	return btcutil.Amount(amount.Shift(8).Round(0).IntPart())
}
