package persistence

import "github.com/mintgate/mintgate-go/pkg/types"

// Store persists campaign, claim, and credential state across restarts.
// All implementations must be thread-safe; the registry and ledger write
// through from concurrent request handlers.
//
// Load/List methods return nil (or empty slices) for missing records and
// error only on storage failure. Delete methods are idempotent.
type Store interface {
	// Campaign records

	// SaveCampaign persists a campaign, overwriting any existing record
	// with the same id.
	SaveCampaign(campaign *types.Campaign) error

	// LoadCampaign retrieves a campaign by id. Returns nil if absent.
	LoadCampaign(id types.CampaignID) (*types.Campaign, error)

	// ListCampaigns returns all campaigns sorted by id (ascending).
	ListCampaigns() ([]*types.Campaign, error)

	// DeleteCampaign removes a campaign record.
	DeleteCampaign(id types.CampaignID) error

	// Claim flags

	// SaveClaim records that identity has claimed in campaignID.
	SaveClaim(campaignID types.CampaignID, identity types.Identity) error

	// DeleteClaim unsets a claim flag (administrative revoke path).
	DeleteClaim(campaignID types.CampaignID, identity types.Identity) error

	// HasClaim reports whether the claim flag is set.
	HasClaim(campaignID types.CampaignID, identity types.Identity) (bool, error)

	// ListClaims returns all identities that claimed in campaignID.
	ListClaims(campaignID types.CampaignID) ([]types.Identity, error)

	// Credential records

	// SaveCredential persists an issued credential.
	SaveCredential(credential *types.Credential) error

	// LoadCredential retrieves a credential by id. Returns nil if absent.
	LoadCredential(id types.CredentialID) (*types.Credential, error)

	// ListCredentials returns all credentials sorted by id (ascending).
	ListCredentials() ([]*types.Credential, error)

	// DeleteCredential removes a credential record (revoke path).
	DeleteCredential(id types.CredentialID) error

	// Service state

	// SaveServiceState persists counters and switches, overwriting any
	// existing state.
	SaveServiceState(state *ServiceState) error

	// LoadServiceState retrieves service state. Returns nil on first run.
	LoadServiceState() (*ServiceState, error)

	// Lifecycle

	// Close cleanly shuts down the store. Idempotent; all other
	// operations error after Close.
	Close() error

	// HealthCheck verifies the store is operational. Called at startup
	// and from the health endpoint.
	HealthCheck() error
}
