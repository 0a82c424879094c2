package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPayoutNotFound    = errors.New("payout not found")
	ErrProcessorNotFound = errors.New("payout processor not found")
	ErrPayoutConflict    = errors.New("payout changed concurrently")
)

// PayoutConflictError lists the payouts whose stored state moved away from
// the one they were loaded with. None of the payouts of the update is
// persisted.
type PayoutConflictError struct {
	PayoutIds []string
}

func (e PayoutConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPayoutConflict, strings.Join(e.PayoutIds, ", "))
}

func (e PayoutConflictError) Unwrap() error {
	return ErrPayoutConflict
}
