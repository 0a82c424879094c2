package domain

import "context"

// PayoutQuery filters payouts, empty fields match everything.
type PayoutQuery struct {
	States        []PayoutState
	PayoutMethods []PayoutMethodId
	Stores        []string
}

type PayoutRepository interface {
	Add(ctx context.Context, payouts ...Payout) error
	Get(ctx context.Context, id string) (*Payout, error)
	// Query returns the matching payouts sorted by creation time.
	Query(ctx context.Context, query PayoutQuery) ([]Payout, error)
	// Update persists all the given payouts as a single unit.
	Update(ctx context.Context, payouts ...Payout) error
	Close()
}
