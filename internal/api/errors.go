package api

import (
	"errors"
	"net/http"

	"github.com/chainraise/chainraise/internal/types"
)

// statusForError maps the error taxonomy onto HTTP status codes. Anything
// outside the taxonomy is an internal error.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, types.ErrProviderUnavailable):
		return http.StatusBadRequest, "wallet provider unavailable"
	case errors.Is(err, types.ErrNoWalletConnected):
		return http.StatusUnauthorized, "no wallet connected"
	case errors.Is(err, types.ErrUserRejected):
		return http.StatusForbidden, "rejected by wallet"
	case errors.Is(err, types.ErrWrongNetwork):
		return http.StatusConflict, "wallet on wrong network"
	case errors.Is(err, types.ErrContractNotFound):
		return http.StatusBadGateway, "contract not found"
	case errors.Is(err, types.ErrChainUnavailable):
		return http.StatusServiceUnavailable, "chain unavailable"
	case errors.Is(err, types.ErrIndeterminate):
		return http.StatusAccepted, "transaction outcome indeterminate"
	case types.IsReverted(err):
		return http.StatusUnprocessableEntity, "transaction reverted"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// respondTaxonomyError writes the taxonomy-mapped error response.
func respondTaxonomyError(w http.ResponseWriter, err error) {
	status, message := statusForError(err)
	respondError(w, status, message, err)
}
