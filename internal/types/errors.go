package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Chain and RPC failures are mapped onto these at the chain
// client boundary, validation failures at the contract gateway boundary; the
// API layer only presents them.
var (
	// ErrProviderUnavailable means the requested wallet provider is not present.
	ErrProviderUnavailable = errors.New("wallet provider unavailable")

	// ErrNoWalletConnected means a write was attempted without a session.
	ErrNoWalletConnected = errors.New("no wallet connected")

	// ErrWrongNetwork means the wallet chain does not match the required chain
	// and the mismatch has not been resolved yet.
	ErrWrongNetwork = errors.New("wallet connected to wrong network")

	// ErrChainUnavailable means no RPC endpoint could be reached.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrContractNotFound means there is no bytecode at the contract address.
	ErrContractNotFound = errors.New("contract not found at address")

	// ErrInvalidInput means client-side validation rejected the input before
	// any chain call was made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserRejected means the wallet refused to sign or submit.
	ErrUserRejected = errors.New("rejected by wallet")

	// ErrIndeterminate means confirmation tracking exhausted its budget
	// without observing a receipt. The transaction may still land; the caller
	// must verify manually rather than treat this as failure.
	ErrIndeterminate = errors.New("transaction outcome indeterminate")
)

// RevertError carries the decoded on-chain rejection reason, when one could
// be extracted from the error payload.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "transaction reverted"
	}
	return fmt.Sprintf("transaction reverted: %s", e.Reason)
}

// NewRevertError creates a RevertError with the given reason.
func NewRevertError(reason string) *RevertError {
	return &RevertError{Reason: reason}
}

// IsReverted reports whether err is (or wraps) a RevertError.
func IsReverted(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}

// RevertReasonOf returns the decoded revert reason, or "" when err is not a
// revert.
func RevertReasonOf(err error) string {
	var re *RevertError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
