package ports

import "github.com/ark-network/payoutd/internal/core/domain"

type RepoManager interface {
	Payouts() domain.PayoutRepository
	Processors() domain.PayoutProcessorRepository
	PaymentMethods() domain.StorePaymentMethodRepository
	WalletTxs() domain.WalletTxRepository
	Close()
}
