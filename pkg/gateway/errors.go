package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mintgate/mintgate-go/pkg/types"
)

// statusForError maps the admission error taxonomy to HTTP statuses. The
// typed sentinels make this a direct errors.Is table; no numeric selector
// decoding is involved.
func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidInput),
		errors.Is(err, types.ErrProofTooLong),
		errors.Is(err, types.ErrDuplicateIdentity):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotAuthorizedSubmitter):
		return http.StatusForbidden
	case errors.Is(err, types.ErrCampaignDoesNotExist),
		errors.Is(err, types.ErrCredentialNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrCampaignNotActive),
		errors.Is(err, types.ErrCampaignExpired),
		errors.Is(err, types.ErrMintingWindowNotOpen),
		errors.Is(err, types.ErrAlreadyClaimed),
		errors.Is(err, types.ErrCapacityReached),
		errors.Is(err, types.ErrCannotModifyStartedCampaign),
		errors.Is(err, types.ErrCampaignHasMints),
		errors.Is(err, types.ErrNonTransferable):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidProof):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrAdmissionPaused):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError emits the uniform JSON error body.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForError(err))
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: err.Error()})
}

// writeJSON emits a JSON response body.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
