package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// MemoryStore is an in-memory implementation of persistence.Store intended
// for tests and local development. All data is lost on process exit.
//
// Thread-safe via sync.RWMutex; records are deep-copied on the way in and
// out so callers can never mutate stored state.
type MemoryStore struct {
	mu sync.RWMutex

	campaigns   map[types.CampaignID]*types.Campaign
	claims      map[types.CampaignID]map[types.Identity]struct{}
	credentials map[types.CredentialID]*types.Credential
	state       *persistence.ServiceState

	closed bool
}

var _ persistence.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		campaigns:   make(map[types.CampaignID]*types.Campaign),
		claims:      make(map[types.CampaignID]map[types.Identity]struct{}),
		credentials: make(map[types.CredentialID]*types.Credential),
	}
}

// SaveCampaign persists a campaign record.
func (m *MemoryStore) SaveCampaign(campaign *types.Campaign) error {
	if campaign == nil {
		return fmt.Errorf("cannot save nil Campaign")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	m.campaigns[campaign.ID] = campaign.Clone()
	return nil
}

// LoadCampaign retrieves a campaign by id, nil if absent.
func (m *MemoryStore) LoadCampaign(id types.CampaignID) (*types.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	campaign, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	return campaign.Clone(), nil
}

// ListCampaigns returns all campaigns sorted by id.
func (m *MemoryStore) ListCampaigns() ([]*types.Campaign, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ids := make([]types.CampaignID, 0, len(m.campaigns))
	for id := range m.campaigns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]*types.Campaign, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.campaigns[id].Clone())
	}
	return result, nil
}

// DeleteCampaign removes a campaign record and its claim flags.
func (m *MemoryStore) DeleteCampaign(id types.CampaignID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	delete(m.campaigns, id)
	delete(m.claims, id)
	return nil
}

// SaveClaim sets the (campaign, identity) claim flag.
func (m *MemoryStore) SaveClaim(campaignID types.CampaignID, identity types.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	set, ok := m.claims[campaignID]
	if !ok {
		set = make(map[types.Identity]struct{})
		m.claims[campaignID] = set
	}
	set[identity] = struct{}{}
	return nil
}

// DeleteClaim unsets the claim flag.
func (m *MemoryStore) DeleteClaim(campaignID types.CampaignID, identity types.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	if set, ok := m.claims[campaignID]; ok {
		delete(set, identity)
	}
	return nil
}

// HasClaim reports whether the claim flag is set.
func (m *MemoryStore) HasClaim(campaignID types.CampaignID, identity types.Identity) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, fmt.Errorf("store is closed")
	}

	set, ok := m.claims[campaignID]
	if !ok {
		return false, nil
	}
	_, claimed := set[identity]
	return claimed, nil
}

// ListClaims returns the identities that claimed in the campaign, sorted
// by byte order for determinism.
func (m *MemoryStore) ListClaims(campaignID types.CampaignID) ([]types.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	set := m.claims[campaignID]
	result := make([]types.Identity, 0, len(set))
	for identity := range set {
		result = append(result, identity)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Cmp(result[j]) < 0 })
	return result, nil
}

// SaveCredential persists a credential record.
func (m *MemoryStore) SaveCredential(credential *types.Credential) error {
	if credential == nil {
		return fmt.Errorf("cannot save nil Credential")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	m.credentials[credential.ID] = credential.Clone()
	return nil
}

// LoadCredential retrieves a credential by id, nil if absent.
func (m *MemoryStore) LoadCredential(id types.CredentialID) (*types.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	credential, ok := m.credentials[id]
	if !ok {
		return nil, nil
	}
	return credential.Clone(), nil
}

// ListCredentials returns all credentials sorted by id.
func (m *MemoryStore) ListCredentials() ([]*types.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ids := make([]types.CredentialID, 0, len(m.credentials))
	for id := range m.credentials {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]*types.Credential, 0, len(ids))
	for _, id := range ids {
		result = append(result, m.credentials[id].Clone())
	}
	return result, nil
}

// DeleteCredential removes a credential record.
func (m *MemoryStore) DeleteCredential(id types.CredentialID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	delete(m.credentials, id)
	return nil
}

// SaveServiceState persists counters and switches.
func (m *MemoryStore) SaveServiceState(state *persistence.ServiceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ServiceState")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}

	cp := *state
	m.state = &cp
	return nil
}

// LoadServiceState retrieves service state, nil on first run.
func (m *MemoryStore) LoadServiceState() (*persistence.ServiceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("store is closed")
	}

	if m.state == nil {
		return nil, nil
	}
	cp := *m.state
	return &cp, nil
}

// Close marks the store closed. Idempotent.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// HealthCheck reports whether the store is usable.
func (m *MemoryStore) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
