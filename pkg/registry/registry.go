package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// Registry owns all campaign and claim-flag state. Every mutation funnels
// through its transition methods under one lock; nothing else in the
// process holds campaign state.
//
// Time never transitions a campaign by itself: expiry and window checks
// compare the caller-supplied now at the point of use.
type Registry struct {
	mu sync.RWMutex

	campaigns      map[types.CampaignID]*types.Campaign
	claims         map[types.CampaignID]map[types.Identity]bool
	nextCampaignID types.CampaignID

	store  persistence.Store
	logger *zap.Logger
}

// NewRegistry creates a registry, reloading campaigns and claim flags from
// the store when one is configured.
func NewRegistry(store persistence.Store, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		campaigns:      make(map[types.CampaignID]*types.Campaign),
		claims:         make(map[types.CampaignID]map[types.Identity]bool),
		nextCampaignID: 1,
		store:          store,
		logger:         logger,
	}

	if store != nil {
		campaigns, err := store.ListCampaigns()
		if err != nil {
			return nil, errors.Wrap(err, "failed to load campaigns")
		}
		for _, campaign := range campaigns {
			r.campaigns[campaign.ID] = campaign
			if campaign.ID >= r.nextCampaignID {
				r.nextCampaignID = campaign.ID + 1
			}

			identities, err := store.ListClaims(campaign.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to load claims for campaign %d", campaign.ID)
			}
			flags := make(map[types.Identity]bool, len(identities))
			for _, identity := range identities {
				flags[identity] = true
			}
			r.claims[campaign.ID] = flags
		}

		logger.Sugar().Infow("Registry loaded from store", "campaigns", len(campaigns))
	}

	return r, nil
}

// validateParams applies the shared creation/update field rules.
func validateParams(params types.CampaignParams, now time.Time) error {
	var allErrors field.ErrorList

	if params.Root == [32]byte{} {
		allErrors = append(allErrors, field.Required(field.NewPath("root"), "allowlist root cannot be zero"))
	}
	if !params.StartTime.After(now) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("startTime"), params.StartTime, "start must be strictly in the future"))
	}
	if !params.StartTime.Before(params.EndTime) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("endTime"), params.EndTime, "end must be after start"))
	}
	if params.EndTime.Sub(params.StartTime) > types.MaxCampaignDuration {
		allErrors = append(allErrors, field.Invalid(field.NewPath("endTime"), params.EndTime, "duration exceeds maximum"))
	}
	if params.Capacity == 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("capacity"), params.Capacity, "capacity must be positive"))
	}
	if params.MetadataLocator == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("metadataLocator"), "metadata locator cannot be empty"))
	}

	if len(allErrors) > 0 {
		return fmt.Errorf("%w: %v", types.ErrInvalidInput, allErrors.ToAggregate())
	}
	return nil
}

// CreateCampaign validates params and creates a new inactive campaign.
func (r *Registry) CreateCampaign(params types.CampaignParams, now time.Time) (*types.Campaign, error) {
	if err := validateParams(params, now); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	campaign := &types.Campaign{
		ID:              r.nextCampaignID,
		Root:            params.Root,
		StartTime:       params.StartTime,
		EndTime:         params.EndTime,
		Capacity:        params.Capacity,
		IsActive:        false,
		MetadataLocator: params.MetadataLocator,
	}

	if err := r.persistCampaign(campaign); err != nil {
		return nil, err
	}

	r.campaigns[campaign.ID] = campaign
	r.claims[campaign.ID] = make(map[types.Identity]bool)
	r.nextCampaignID++

	r.logger.Sugar().Infow("Campaign created",
		"campaign_id", campaign.ID,
		"start", campaign.StartTime,
		"end", campaign.EndTime,
		"capacity", campaign.Capacity)

	return campaign.Clone(), nil
}

// UpdateCampaign replaces the scheduling fields of a campaign that has not
// started yet.
func (r *Registry) UpdateCampaign(id types.CampaignID, params types.CampaignParams, now time.Time) (*types.Campaign, error) {
	if err := validateParams(params, now); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, types.ErrCampaignDoesNotExist
	}
	if campaign.Started(now) {
		return nil, types.ErrCannotModifyStartedCampaign
	}

	updated := campaign.Clone()
	updated.Root = params.Root
	updated.StartTime = params.StartTime
	updated.EndTime = params.EndTime
	updated.Capacity = params.Capacity
	updated.MetadataLocator = params.MetadataLocator

	if err := r.persistCampaign(updated); err != nil {
		return nil, err
	}

	r.campaigns[id] = updated

	r.logger.Sugar().Infow("Campaign updated", "campaign_id", id)

	return updated.Clone(), nil
}

// SetActive flips the activation flag. Activating a campaign whose end has
// passed fails with ErrCampaignExpired; deactivation is always permitted.
func (r *Registry) SetActive(id types.CampaignID, active bool, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return types.ErrCampaignDoesNotExist
	}
	if active && now.After(campaign.EndTime) {
		return types.ErrCampaignExpired
	}

	updated := campaign.Clone()
	updated.IsActive = active

	if err := r.persistCampaign(updated); err != nil {
		return err
	}

	r.campaigns[id] = updated

	r.logger.Sugar().Infow("Campaign activation changed", "campaign_id", id, "active", active)

	return nil
}

// SetMetadataLocator updates the metadata locator. Permitted at any time;
// it affects resolved credential metadata only, never admission.
func (r *Registry) SetMetadataLocator(id types.CampaignID, locator string) error {
	if locator == "" {
		return fmt.Errorf("metadata locator cannot be empty: %w", types.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return types.ErrCampaignDoesNotExist
	}

	updated := campaign.Clone()
	updated.MetadataLocator = locator

	if err := r.persistCampaign(updated); err != nil {
		return err
	}

	r.campaigns[id] = updated
	return nil
}

// DeleteCampaign removes a campaign that is inactive, has not started, and
// has never minted.
func (r *Registry) DeleteCampaign(id types.CampaignID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return types.ErrCampaignDoesNotExist
	}
	if campaign.IsActive {
		return fmt.Errorf("campaign %d is active: %w", id, types.ErrInvalidInput)
	}
	if campaign.Started(now) {
		return types.ErrCannotModifyStartedCampaign
	}
	if campaign.MintedCount > 0 {
		return types.ErrCampaignHasMints
	}

	if r.store != nil {
		if err := r.store.DeleteCampaign(id); err != nil {
			return errors.Wrapf(err, "failed to delete campaign %d", id)
		}
	}

	delete(r.campaigns, id)
	delete(r.claims, id)

	r.logger.Sugar().Infow("Campaign deleted", "campaign_id", id)

	return nil
}

// GetCampaign returns a copy of the campaign.
func (r *Registry) GetCampaign(id types.CampaignID) (*types.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return nil, types.ErrCampaignDoesNotExist
	}
	return campaign.Clone(), nil
}

// ListCampaigns returns copies of all campaigns ordered by id.
func (r *Registry) ListCampaigns() []*types.Campaign {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*types.Campaign, 0, len(r.campaigns))
	for id := types.CampaignID(1); id < r.nextCampaignID; id++ {
		if campaign, ok := r.campaigns[id]; ok {
			result = append(result, campaign.Clone())
		}
	}
	return result
}

// HasClaimed reports the (campaign, identity) claim flag.
func (r *Registry) HasClaimed(id types.CampaignID, identity types.Identity) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.campaigns[id]; !ok {
		return false, types.ErrCampaignDoesNotExist
	}
	return r.claims[id][identity], nil
}

// Claim runs admission checks 4-8 and the proof verification callback, then
// commits the claim, all under the registry lock so no admin transition can
// interleave. The callback receives a copy of the campaign and must return
// nil only for a valid proof.
func (r *Registry) Claim(id types.CampaignID, identity types.Identity, now time.Time, verify func(campaign *types.Campaign) error) (*types.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok || campaign.Root == [32]byte{} {
		return nil, types.ErrCampaignDoesNotExist
	}
	if !campaign.IsActive {
		return nil, types.ErrCampaignNotActive
	}
	if !campaign.WindowOpen(now) {
		return nil, types.ErrMintingWindowNotOpen
	}
	if r.claims[id][identity] {
		return nil, types.ErrAlreadyClaimed
	}
	if campaign.MintedCount >= campaign.Capacity {
		return nil, types.ErrCapacityReached
	}

	if err := verify(campaign.Clone()); err != nil {
		return nil, err
	}

	updated := campaign.Clone()
	updated.MintedCount++

	if err := r.persistCampaign(updated); err != nil {
		return nil, err
	}
	if r.store != nil {
		if err := r.store.SaveClaim(id, identity); err != nil {
			return nil, errors.Wrapf(err, "failed to persist claim for campaign %d", id)
		}
	}

	r.campaigns[id] = updated
	r.claims[id][identity] = true

	return updated.Clone(), nil
}

// RevertClaim unsets a claim flag and decrements the minted counter. Used
// only by the administrative revoke path.
func (r *Registry) RevertClaim(id types.CampaignID, identity types.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[id]
	if !ok {
		return types.ErrCampaignDoesNotExist
	}
	if !r.claims[id][identity] {
		return fmt.Errorf("identity %s has no claim in campaign %d: %w", identity.Hex(), id, types.ErrInvalidInput)
	}
	if campaign.MintedCount == 0 {
		return fmt.Errorf("campaign %d has zero minted count: %w", id, types.ErrInvalidInput)
	}

	updated := campaign.Clone()
	updated.MintedCount--

	if err := r.persistCampaign(updated); err != nil {
		return err
	}
	if r.store != nil {
		if err := r.store.DeleteClaim(id, identity); err != nil {
			return errors.Wrapf(err, "failed to delete claim for campaign %d", id)
		}
	}

	r.campaigns[id] = updated
	delete(r.claims[id], identity)

	r.logger.Sugar().Infow("Claim reverted", "campaign_id", id, "identity", identity.Hex())

	return nil
}

// persistCampaign writes through to the store when one is configured.
// Callers hold the write lock.
func (r *Registry) persistCampaign(campaign *types.Campaign) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveCampaign(campaign); err != nil {
		return errors.Wrapf(err, "failed to persist campaign %d", campaign.ID)
	}
	return nil
}
