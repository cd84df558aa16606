package admission

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mintgate/mintgate-go/pkg/hashing"
	"github.com/mintgate/mintgate-go/pkg/ledger"
	"github.com/mintgate/mintgate-go/pkg/merkle"
	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/registry"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// Controller orchestrates claims: authorization, campaign checks, proof
// verification, and the credential commit. The whole claim path runs under
// one mutex so concurrent callers observe each claim as a single
// indivisible transition; near-capacity races can never overshoot and a
// duplicate identity gets exactly one credential.
type Controller struct {
	mu sync.Mutex

	registry *registry.Registry
	ledger   *ledger.Ledger

	authorizedSubmitter types.Identity
	paused              bool
	nextCredentialID    types.CredentialID
	maxProofDepth       int

	store  persistence.Store
	logger *zap.Logger
}

// Config carries controller construction parameters.
type Config struct {
	// AuthorizedSubmitter is the single trusted role permitted to submit
	// claims on behalf of identities (sponsors transaction cost).
	AuthorizedSubmitter types.Identity

	// MaxProofDepth bounds accepted proof lengths. Zero means
	// types.MaxProofDepth.
	MaxProofDepth int
}

// NewController creates a controller, restoring the credential counter,
// pause switch, and submitter from the store when one is configured.
func NewController(cfg Config, reg *registry.Registry, led *ledger.Ledger, store persistence.Store, logger *zap.Logger) (*Controller, error) {
	if cfg.AuthorizedSubmitter == types.ZeroIdentity {
		return nil, fmt.Errorf("authorized submitter cannot be zero: %w", types.ErrInvalidInput)
	}

	maxDepth := cfg.MaxProofDepth
	if maxDepth <= 0 {
		maxDepth = types.MaxProofDepth
	}

	c := &Controller{
		registry:            reg,
		ledger:              led,
		authorizedSubmitter: cfg.AuthorizedSubmitter,
		nextCredentialID:    1,
		maxProofDepth:       maxDepth,
		store:               store,
		logger:              logger,
	}

	if store != nil {
		state, err := store.LoadServiceState()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load service state")
		}
		if state != nil {
			c.nextCredentialID = types.CredentialID(state.NextCredentialID)
			c.paused = state.Paused
			if common.IsHexAddress(state.AuthorizedSubmitter) {
				c.authorizedSubmitter = common.HexToAddress(state.AuthorizedSubmitter)
			}
			logger.Sugar().Infow("Controller state restored",
				"next_credential_id", c.nextCredentialID, "paused", c.paused)
		} else {
			if err := c.persistState(); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

// Claim admits an identity into a campaign and issues its credential.
//
// Checks run in a fixed order and short-circuit on the first failure:
// invalid identity, unauthorized submitter, oversized proof, missing
// campaign, inactive campaign, closed window, duplicate claim, exhausted
// capacity, invalid proof. Retrying a successful claim deterministically
// returns ErrAlreadyClaimed, never a second credential.
func (c *Controller) Claim(submitter, identity types.Identity, campaignID types.CampaignID, proof [][32]byte, now time.Time) (types.CredentialID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if identity == types.ZeroIdentity {
		return 0, fmt.Errorf("identity cannot be zero: %w", types.ErrInvalidInput)
	}
	if submitter != c.authorizedSubmitter {
		return 0, types.ErrNotAuthorizedSubmitter
	}
	if len(proof) > c.maxProofDepth {
		return 0, fmt.Errorf("proof length %d exceeds maximum depth %d: %w",
			len(proof), c.maxProofDepth, types.ErrProofTooLong)
	}
	if c.paused {
		return 0, types.ErrAdmissionPaused
	}

	leaf := hashing.Leaf(identity)
	campaign, err := c.registry.Claim(campaignID, identity, now, func(campaign *types.Campaign) error {
		return merkle.Verify(leaf, proof, campaign.Root)
	})
	if err != nil {
		return 0, err
	}

	credentialID := c.nextCredentialID
	c.nextCredentialID++

	if err := c.persistState(); err != nil {
		// The claim flag is already committed; surface the storage fault
		// rather than risking a reused credential id.
		return 0, err
	}

	if err := c.ledger.Issue(identity, credentialID, campaignID); err != nil {
		return 0, err
	}

	c.logger.Sugar().Infow("Claim admitted",
		"campaign_id", campaignID,
		"identity", identity.Hex(),
		"credential_id", credentialID,
		"minted", campaign.MintedCount,
		"capacity", campaign.Capacity)

	return credentialID, nil
}

// Qualify replicates the campaign-side admission checks (existence,
// activation, window, duplicate claim, capacity) without verifying a
// proof. Read-only; used for UI pre-flight.
func (c *Controller) Qualify(identity types.Identity, campaignID types.CampaignID, now time.Time) error {
	if identity == types.ZeroIdentity {
		return fmt.Errorf("identity cannot be zero: %w", types.ErrInvalidInput)
	}

	campaign, err := c.registry.GetCampaign(campaignID)
	if err != nil {
		return err
	}
	if campaign.Root == [32]byte{} {
		return types.ErrCampaignDoesNotExist
	}
	if !campaign.IsActive {
		return types.ErrCampaignNotActive
	}
	if !campaign.WindowOpen(now) {
		return types.ErrMintingWindowNotOpen
	}
	claimed, err := c.registry.HasClaimed(campaignID, identity)
	if err != nil {
		return err
	}
	if claimed {
		return types.ErrAlreadyClaimed
	}
	if campaign.MintedCount >= campaign.Capacity {
		return types.ErrCapacityReached
	}
	return nil
}

// Revoke destroys a credential and frees its claim slot: the claim flag is
// unset and the campaign's minted counter decremented, so the identity's
// slot can be reissued.
func (c *Controller) Revoke(credentialID types.CredentialID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	credential, err := c.ledger.Revoke(credentialID)
	if err != nil {
		return err
	}

	if err := c.registry.RevertClaim(credential.CampaignID, credential.Owner); err != nil {
		return err
	}

	c.logger.Sugar().Infow("Credential revoked and claim slot freed",
		"credential_id", credentialID,
		"campaign_id", credential.CampaignID,
		"owner", credential.Owner.Hex())

	return nil
}

// Pause engages the global admission kill switch.
func (c *Controller) Pause() error {
	return c.setPaused(true)
}

// Unpause releases the kill switch.
func (c *Controller) Unpause() error {
	return c.setPaused(false)
}

func (c *Controller) setPaused(paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = paused
	if err := c.persistState(); err != nil {
		c.paused = !paused
		return err
	}

	c.logger.Sugar().Infow("Admission pause switch changed", "paused", paused)
	return nil
}

// Paused reports the kill switch state.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// RotateSubmitter replaces the authorized submitter role.
func (c *Controller) RotateSubmitter(submitter types.Identity) error {
	if submitter == types.ZeroIdentity {
		return fmt.Errorf("authorized submitter cannot be zero: %w", types.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.authorizedSubmitter
	c.authorizedSubmitter = submitter
	if err := c.persistState(); err != nil {
		c.authorizedSubmitter = previous
		return err
	}

	c.logger.Sugar().Infow("Authorized submitter rotated",
		"previous", previous.Hex(), "current", submitter.Hex())
	return nil
}

// AuthorizedSubmitter returns the current submitter role.
func (c *Controller) AuthorizedSubmitter() types.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authorizedSubmitter
}

// persistState writes counters and switches through to the store. Callers
// hold the lock.
func (c *Controller) persistState() error {
	if c.store == nil {
		return nil
	}
	state := &persistence.ServiceState{
		NextCredentialID:    uint64(c.nextCredentialID),
		Paused:              c.paused,
		AuthorizedSubmitter: c.authorizedSubmitter.Hex(),
	}
	if err := c.store.SaveServiceState(state); err != nil {
		return errors.Wrap(err, "failed to persist service state")
	}
	return nil
}
