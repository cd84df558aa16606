package types

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// HexHash wraps a 32-byte hash for 0x-prefixed JSON serialization.
type HexHash [32]byte

// MarshalJSON encodes the hash as a 0x-prefixed hex string.
func (h HexHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(hexutil.Encode(h[:]))
}

// UnmarshalJSON decodes a 0x-prefixed hex string of exactly 32 bytes.
func (h *HexHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return fmt.Errorf("invalid hash encoding: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("hash must be 32 bytes, got %d", len(raw))
	}
	copy(h[:], raw)
	return nil
}

// ClaimRequest is the relayer-facing claim submission.
type ClaimRequest struct {
	Identity   string    `json:"identity"`
	CampaignID uint64    `json:"campaign_id"`
	Proof      []HexHash `json:"proof"`
}

// ClaimResponse returns the issued credential id.
type ClaimResponse struct {
	CredentialID uint64 `json:"credential_id"`
}

// CampaignRequest carries admin campaign creation/update fields.
type CampaignRequest struct {
	Root            HexHash `json:"root"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	Capacity        uint64  `json:"capacity"`
	MetadataLocator string  `json:"metadata_locator"`
}

// CampaignResponse is the query-facing campaign view.
type CampaignResponse struct {
	ID              uint64  `json:"id"`
	Root            HexHash `json:"root"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	Capacity        uint64  `json:"capacity"`
	MintedCount     uint64  `json:"minted_count"`
	IsActive        bool    `json:"is_active"`
	MetadataLocator string  `json:"metadata_locator"`
}

// EligibilityResponse is the read-only pre-flight result.
type EligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// MetadataResponse resolves a credential to its metadata locator.
type MetadataResponse struct {
	CredentialID uint64 `json:"credential_id"`
	Locator      string `json:"locator"`
}

// SubmitterRequest rotates the authorized submitter.
type SubmitterRequest struct {
	Submitter string `json:"submitter"`
}

// MetadataLocatorRequest updates a campaign's metadata locator.
type MetadataLocatorRequest struct {
	MetadataLocator string `json:"metadata_locator"`
}

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
