package ledger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// MetadataSource resolves a campaign's metadata locator. The registry
// satisfies this.
type MetadataSource interface {
	GetCampaign(id types.CampaignID) (*types.Campaign, error)
}

// Ledger records issued credentials and enforces non-transferability.
// Ownership changes only at issuance (nobody -> owner) and revocation
// (owner -> nobody); everything else fails ErrNonTransferable.
type Ledger struct {
	mu sync.RWMutex

	credentials map[types.CredentialID]*types.Credential
	byOwner     map[types.Identity][]types.CredentialID

	metadata MetadataSource
	store    persistence.Store
	logger   *zap.Logger
}

// NewLedger creates a ledger, reloading issued credentials from the store
// when one is configured.
func NewLedger(metadata MetadataSource, store persistence.Store, logger *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		credentials: make(map[types.CredentialID]*types.Credential),
		byOwner:     make(map[types.Identity][]types.CredentialID),
		metadata:    metadata,
		store:       store,
		logger:      logger,
	}

	if store != nil {
		credentials, err := store.ListCredentials()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load credentials")
		}
		for _, credential := range credentials {
			l.credentials[credential.ID] = credential
			l.byOwner[credential.Owner] = append(l.byOwner[credential.Owner], credential.ID)
		}
		logger.Sugar().Infow("Ledger loaded from store", "credentials", len(credentials))
	}

	return l, nil
}

// Issue records a credential for owner. The id is assigned by the
// admission controller's global counter and must be unused.
func (l *Ledger) Issue(owner types.Identity, id types.CredentialID, campaignID types.CampaignID) error {
	if owner == types.ZeroIdentity {
		return fmt.Errorf("cannot issue to the zero identity: %w", types.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.credentials[id]; exists {
		return fmt.Errorf("credential %d already issued: %w", id, types.ErrInvalidInput)
	}

	credential := &types.Credential{
		ID:         id,
		Owner:      owner,
		CampaignID: campaignID,
	}

	if l.store != nil {
		if err := l.store.SaveCredential(credential); err != nil {
			return errors.Wrapf(err, "failed to persist credential %d", id)
		}
	}

	l.credentials[id] = credential
	l.byOwner[owner] = append(l.byOwner[owner], id)

	l.logger.Sugar().Infow("Credential issued",
		"credential_id", id, "owner", owner.Hex(), "campaign_id", campaignID)

	return nil
}

// Transfer always fails: credentials are bound to the identity that earned
// admission.
func (l *Ledger) Transfer(id types.CredentialID, from, to types.Identity) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, exists := l.credentials[id]; !exists {
		return types.ErrCredentialNotFound
	}
	return types.ErrNonTransferable
}

// Revoke destroys a credential, returning the destroyed record so the
// caller can free the claim slot.
func (l *Ledger) Revoke(id types.CredentialID) (*types.Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	credential, exists := l.credentials[id]
	if !exists {
		return nil, types.ErrCredentialNotFound
	}

	if l.store != nil {
		if err := l.store.DeleteCredential(id); err != nil {
			return nil, errors.Wrapf(err, "failed to delete credential %d", id)
		}
	}

	delete(l.credentials, id)

	owned := l.byOwner[credential.Owner]
	for i, ownedID := range owned {
		if ownedID == id {
			l.byOwner[credential.Owner] = append(owned[:i], owned[i+1:]...)
			break
		}
	}
	if len(l.byOwner[credential.Owner]) == 0 {
		delete(l.byOwner, credential.Owner)
	}

	l.logger.Sugar().Infow("Credential revoked",
		"credential_id", id, "owner", credential.Owner.Hex())

	return credential.Clone(), nil
}

// OwnerOf returns the credential's owner.
func (l *Ledger) OwnerOf(id types.CredentialID) (types.Identity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	credential, exists := l.credentials[id]
	if !exists {
		return types.ZeroIdentity, types.ErrCredentialNotFound
	}
	return credential.Owner, nil
}

// Get returns a copy of the credential record.
func (l *Ledger) Get(id types.CredentialID) (*types.Credential, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	credential, exists := l.credentials[id]
	if !exists {
		return nil, types.ErrCredentialNotFound
	}
	return credential.Clone(), nil
}

// CredentialsOf returns the ids owned by identity.
func (l *Ledger) CredentialsOf(owner types.Identity) []types.CredentialID {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.CredentialID, len(l.byOwner[owner]))
	copy(out, l.byOwner[owner])
	return out
}

// ResolveMetadata derives the credential's metadata locator from the
// owning campaign's locator and the OWNER identity, not the credential id.
// Metadata is therefore independent of mint ordering and stable across
// revoke-and-reissue under a new id.
func (l *Ledger) ResolveMetadata(id types.CredentialID) (string, error) {
	l.mu.RLock()
	credential, exists := l.credentials[id]
	l.mu.RUnlock()

	if !exists {
		return "", types.ErrCredentialNotFound
	}

	campaign, err := l.metadata.GetCampaign(credential.CampaignID)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(campaign.MetadataLocator, "/")
	return fmt.Sprintf("%s/%s", base, strings.ToLower(credential.Owner.Hex()[2:])), nil
}
