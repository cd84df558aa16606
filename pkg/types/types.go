package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Identity is the fixed-width value checked for allowlist membership.
// It is a 20-byte account handle, reusing the Ethereum address type.
type Identity = common.Address

// ZeroIdentity is the null identity; never eligible to claim.
var ZeroIdentity = Identity{}

// CampaignID identifies a campaign. IDs are assigned by the registry,
// monotonically starting at 1. Zero is never a valid campaign.
type CampaignID uint64

// CredentialID identifies an issued credential. IDs are assigned from a
// single monotonic counter shared across all campaigns, starting at 1.
type CredentialID uint64

// MaxProofDepth bounds accepted proof lengths. A depth of 32 covers
// allowlists of up to 2^32 identities, far beyond any real campaign.
const MaxProofDepth = 32

// MaxCampaignDuration bounds end-start for any campaign.
const MaxCampaignDuration = 365 * 24 * time.Hour

// Campaign is a time-boxed, capacity-bounded admission window bound to a
// single allowlist root.
//
// Once now >= StartTime the scheduling fields (Root, StartTime, EndTime)
// are immutable. MintedCount never exceeds Capacity. Expiry is enforced at
// the point of use; no background sweep transitions campaigns.
type Campaign struct {
	ID              CampaignID `json:"id"`
	Root            [32]byte   `json:"root"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Capacity        uint64     `json:"capacity"`
	MintedCount     uint64     `json:"minted_count"`
	IsActive        bool       `json:"is_active"`
	MetadataLocator string     `json:"metadata_locator"`
}

// Started reports whether the campaign's scheduling fields are frozen.
func (c *Campaign) Started(now time.Time) bool {
	return !now.Before(c.StartTime)
}

// WindowOpen reports whether now falls inside [StartTime, EndTime].
func (c *Campaign) WindowOpen(now time.Time) bool {
	return !now.Before(c.StartTime) && !now.After(c.EndTime)
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (c *Campaign) Clone() *Campaign {
	cp := *c
	return &cp
}

// CampaignParams carries the admin-supplied fields for campaign creation
// and pre-start updates.
type CampaignParams struct {
	Root            [32]byte
	StartTime       time.Time
	EndTime         time.Time
	Capacity        uint64
	MetadataLocator string
}

// Credential is the one-per-identity-per-campaign record of successful
// admission. Ownership is fixed at issuance; the only permitted ownership
// changes are issuance and administrative revocation.
type Credential struct {
	ID         CredentialID `json:"id"`
	Owner      Identity     `json:"owner"`
	CampaignID CampaignID   `json:"campaign_id"`
}

// Clone returns a copy to keep ledger state unaliased.
func (c *Credential) Clone() *Credential {
	cp := *c
	return &cp
}
