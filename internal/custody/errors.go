package custody

import (
	"errors"
	"fmt"

	"github.com/metablockshq/spl-token-chapters/internal/pda"
	"github.com/metablockshq/spl-token-chapters/internal/state"
)

var (
	// ErrAuthorityMismatch means the caller does not hold the capability the
	// requested mutation needs, or did not sign for it.
	ErrAuthorityMismatch = errors.New("authority mismatch")
	// ErrExternalGateway matches every *GatewayError.
	ErrExternalGateway = errors.New("external gateway failure")
	// ErrInvalidAccount means a supplied account does not belong to the vault,
	// e.g. a token account of another mint.
	ErrInvalidAccount = errors.New("invalid account")
	// ErrUnknownInstruction is returned by Process for instructions outside the closed set.
	ErrUnknownInstruction = errors.New("unknown instruction")

	ErrSeedOrBumpMismatch = pda.ErrSeedOrBumpMismatch
	ErrAlreadyInitialized = state.ErrAlreadyInitialized
	ErrNotInitialized     = state.ErrNotInitialized
)

// GatewayError carries an error reported by the token ledger itself, with the
// original cause reachable through errors.Unwrap.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExternalGateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func (e *GatewayError) Is(target error) bool {
	return target == ErrExternalGateway
}

// gatewayErr passes taxonomy errors through unchanged and wraps anything else
// the ledger reported.
func gatewayErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrAuthorityMismatch, ErrAlreadyInitialized, ErrNotInitialized, ErrSeedOrBumpMismatch, ErrInvalidAccount} {
		if errors.Is(err, known) {
			return err
		}
	}
	return &GatewayError{Op: op, Err: err}
}
