package application

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedPayoutMethod = errors.New("unsupported payout method")
	ErrWalletUnavailable       = errors.New("wallet service unavailable")
	ErrInvalidDestination      = errors.New("invalid payout destination")
	ErrRegistryNotStarted      = errors.New("registry not started")
	ErrRegistryStopped         = errors.New("registry stopped")
)

type errUnknownProcessor struct {
	processor string
}

func (e errUnknownProcessor) Error() string {
	return fmt.Sprintf("unknown payout processor %s", e.processor)
}
