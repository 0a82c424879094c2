package domain

import (
	"fmt"
	"strings"
)

const (
	OnChainPaymentType   = "CHAIN"
	LightningPaymentType = "LN"
)

// PayoutMethodId identifies how a payout is paid, in the form
// <CRYPTO_CODE>-<PAYMENT_TYPE> (ie. BTC-CHAIN).
// The same identifier names the store payment method funding it.
type PayoutMethodId string

func NewPayoutMethodId(cryptoCode, paymentType string) PayoutMethodId {
	return PayoutMethodId(fmt.Sprintf(
		"%s-%s", strings.ToUpper(cryptoCode), strings.ToUpper(paymentType),
	))
}

func ParsePayoutMethodId(str string) (PayoutMethodId, error) {
	parts := strings.Split(strings.TrimSpace(str), "-")
	if len(parts) != 2 || len(parts[0]) <= 0 || len(parts[1]) <= 0 {
		return "", fmt.Errorf("invalid payout method id %s", str)
	}
	return NewPayoutMethodId(parts[0], parts[1]), nil
}

func (p PayoutMethodId) CryptoCode() string {
	cryptoCode, _, _ := strings.Cut(string(p), "-")
	return cryptoCode
}

func (p PayoutMethodId) PaymentType() string {
	_, paymentType, _ := strings.Cut(string(p), "-")
	return paymentType
}

func (p PayoutMethodId) IsOnChain() bool {
	return p.PaymentType() == OnChainPaymentType
}

func (p PayoutMethodId) String() string {
	return string(p)
}
