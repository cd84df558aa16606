package types

import "errors"

// Admission and lifecycle outcomes. Every one of these is terminal and
// caller-visible; nothing in the core retries. Callers match with
// errors.Is, the gateway maps them to HTTP statuses.
var (
	// ErrInvalidInput covers malformed identities and campaign parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotAuthorizedSubmitter rejects claims not relayed by the single
	// trusted submitter role.
	ErrNotAuthorizedSubmitter = errors.New("caller is not the authorized submitter")

	ErrCampaignDoesNotExist = errors.New("campaign does not exist")
	ErrCampaignNotActive    = errors.New("campaign is not active")
	ErrCampaignExpired      = errors.New("campaign has expired")
	ErrMintingWindowNotOpen = errors.New("minting window is not open")

	// ErrInvalidProof is a cryptographic mismatch: folding the proof over
	// the leaf did not reproduce the stored root.
	ErrInvalidProof = errors.New("invalid merkle proof")

	// ErrProofTooLong rejects proofs over the configured maximum depth
	// before any hashing is done.
	ErrProofTooLong = errors.New("merkle proof exceeds maximum depth")

	ErrAlreadyClaimed  = errors.New("identity has already claimed in this campaign")
	ErrCapacityReached = errors.New("campaign capacity reached")

	ErrCannotModifyStartedCampaign = errors.New("cannot modify a started campaign")
	ErrCampaignHasMints            = errors.New("campaign has issued credentials")

	ErrNonTransferable    = errors.New("credentials are non-transferable")
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrAdmissionPaused is returned while the global kill switch is on.
	ErrAdmissionPaused = errors.New("admission is paused")

	// ErrDuplicateIdentity rejects allowlist inputs that would give one
	// identity two independent proofs.
	ErrDuplicateIdentity = errors.New("duplicate identity in allowlist")
)
