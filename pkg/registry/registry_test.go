package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mintgate/mintgate-go/pkg/types"
)

var (
	testNow  = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testRoot = [32]byte{0xaa, 0x01}
)

func testParams() types.CampaignParams {
	return types.CampaignParams{
		Root:            testRoot,
		StartTime:       testNow.Add(time.Hour),
		EndTime:         testNow.Add(48 * time.Hour),
		Capacity:        100,
		MetadataLocator: "ipfs://QmCampaignMeta",
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(nil, zap.NewNop())
	require.NoError(t, err)
	return r
}

func alwaysValid(*types.Campaign) error { return nil }

func TestCreateCampaign(t *testing.T) {
	r := newTestRegistry(t)

	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)
	require.Equal(t, types.CampaignID(1), campaign.ID)
	require.False(t, campaign.IsActive, "campaigns must be created inactive")
	require.Zero(t, campaign.MintedCount)

	second, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)
	require.Equal(t, types.CampaignID(2), second.ID, "ids must be monotonic")
}

func TestCreateCampaignValidation(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name   string
		mutate func(*types.CampaignParams)
	}{
		{"zero root", func(p *types.CampaignParams) { p.Root = [32]byte{} }},
		{"start in past", func(p *types.CampaignParams) { p.StartTime = testNow.Add(-time.Hour) }},
		{"start equals now", func(p *types.CampaignParams) { p.StartTime = testNow }},
		{"end before start", func(p *types.CampaignParams) { p.EndTime = p.StartTime.Add(-time.Minute) }},
		{"end equals start", func(p *types.CampaignParams) { p.EndTime = p.StartTime }},
		{"duration over maximum", func(p *types.CampaignParams) { p.EndTime = p.StartTime.Add(types.MaxCampaignDuration + time.Hour) }},
		{"zero capacity", func(p *types.CampaignParams) { p.Capacity = 0 }},
		{"empty metadata locator", func(p *types.CampaignParams) { p.MetadataLocator = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := testParams()
			tc.mutate(&params)
			_, err := r.CreateCampaign(params, testNow)
			require.ErrorIs(t, err, types.ErrInvalidInput)
		})
	}
}

func TestUpdateCampaignBeforeStart(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)

	params := testParams()
	params.Capacity = 500
	params.Root = [32]byte{0xbb}

	updated, err := r.UpdateCampaign(campaign.ID, params, testNow)
	require.NoError(t, err)
	require.Equal(t, uint64(500), updated.Capacity)
	require.Equal(t, [32]byte{0xbb}, updated.Root)
}

func TestUpdateCampaignAfterStart(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)

	// Params valid relative to the later now, so the guard being hit is
	// the started check, not field validation.
	later := campaign.StartTime.Add(time.Minute)
	params := testParams()
	params.StartTime = later.Add(time.Hour)
	params.EndTime = later.Add(2 * time.Hour)

	_, err = r.UpdateCampaign(campaign.ID, params, later)
	require.ErrorIs(t, err, types.ErrCannotModifyStartedCampaign)

	// At exactly StartTime the campaign counts as started.
	atStart := campaign.StartTime
	params.StartTime = atStart.Add(time.Hour)
	params.EndTime = atStart.Add(2 * time.Hour)
	_, err = r.UpdateCampaign(campaign.ID, params, atStart)
	require.ErrorIs(t, err, types.ErrCannotModifyStartedCampaign)
}

func TestUpdateCampaignNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.UpdateCampaign(99, testParams(), testNow)
	require.ErrorIs(t, err, types.ErrCampaignDoesNotExist)
}

func TestSetActive(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)

	require.NoError(t, r.SetActive(campaign.ID, true, testNow))
	got, err := r.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive)

	// Deactivation is permitted at any time.
	require.NoError(t, r.SetActive(campaign.ID, false, campaign.EndTime.Add(time.Hour)))

	// Activating after expiry fails.
	err = r.SetActive(campaign.ID, true, campaign.EndTime.Add(time.Hour))
	require.ErrorIs(t, err, types.ErrCampaignExpired)

	require.ErrorIs(t, r.SetActive(99, true, testNow), types.ErrCampaignDoesNotExist)
}

func TestSetMetadataLocator(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)

	require.NoError(t, r.SetMetadataLocator(campaign.ID, "ipfs://QmNewMeta"))
	got, err := r.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.Equal(t, "ipfs://QmNewMeta", got.MetadataLocator)

	require.ErrorIs(t, r.SetMetadataLocator(campaign.ID, ""), types.ErrInvalidInput)
	require.ErrorIs(t, r.SetMetadataLocator(99, "ipfs://x"), types.ErrCampaignDoesNotExist)
}

func TestDeleteCampaign(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)

	t.Run("active campaign", func(t *testing.T) {
		require.NoError(t, r.SetActive(campaign.ID, true, testNow))
		require.ErrorIs(t, r.DeleteCampaign(campaign.ID, testNow), types.ErrInvalidInput)
		require.NoError(t, r.SetActive(campaign.ID, false, testNow))
	})

	t.Run("started campaign", func(t *testing.T) {
		err := r.DeleteCampaign(campaign.ID, campaign.StartTime.Add(time.Minute))
		require.ErrorIs(t, err, types.ErrCannotModifyStartedCampaign)
	})

	t.Run("unstarted inactive campaign", func(t *testing.T) {
		require.NoError(t, r.DeleteCampaign(campaign.ID, testNow))
		_, err := r.GetCampaign(campaign.ID)
		require.ErrorIs(t, err, types.ErrCampaignDoesNotExist)
	})

	t.Run("campaign with mints", func(t *testing.T) {
		withMints, err := r.CreateCampaign(testParams(), testNow)
		require.NoError(t, err)
		require.NoError(t, r.SetActive(withMints.ID, true, testNow))

		identity := types.Identity{0x01}
		_, err = r.Claim(withMints.ID, identity, withMints.StartTime.Add(time.Minute), alwaysValid)
		require.NoError(t, err)

		require.NoError(t, r.SetActive(withMints.ID, false, testNow))
		// Not started per the supplied now, not active, but minted.
		require.ErrorIs(t, r.DeleteCampaign(withMints.ID, testNow), types.ErrCampaignHasMints)
	})
}

func TestClaimChecksInOrder(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)

	identity := types.Identity{0x01}
	open := campaign.StartTime.Add(time.Minute)

	t.Run("missing campaign", func(t *testing.T) {
		_, err := r.Claim(99, identity, open, alwaysValid)
		require.ErrorIs(t, err, types.ErrCampaignDoesNotExist)
	})

	t.Run("inactive", func(t *testing.T) {
		_, err := r.Claim(campaign.ID, identity, open, alwaysValid)
		require.ErrorIs(t, err, types.ErrCampaignNotActive)
	})

	require.NoError(t, r.SetActive(campaign.ID, true, testNow))

	t.Run("window not open yet", func(t *testing.T) {
		_, err := r.Claim(campaign.ID, identity, campaign.StartTime.Add(-time.Second), alwaysValid)
		require.ErrorIs(t, err, types.ErrMintingWindowNotOpen)
	})

	t.Run("window closed", func(t *testing.T) {
		_, err := r.Claim(campaign.ID, identity, campaign.EndTime.Add(time.Second), alwaysValid)
		require.ErrorIs(t, err, types.ErrMintingWindowNotOpen)
	})

	t.Run("window boundaries inclusive", func(t *testing.T) {
		_, err := r.Claim(campaign.ID, types.Identity{0xf0}, campaign.StartTime, alwaysValid)
		require.NoError(t, err)
		_, err = r.Claim(campaign.ID, types.Identity{0xf1}, campaign.EndTime, alwaysValid)
		require.NoError(t, err)
	})

	t.Run("duplicate claim", func(t *testing.T) {
		_, err := r.Claim(campaign.ID, identity, open, alwaysValid)
		require.NoError(t, err)
		_, err = r.Claim(campaign.ID, identity, open, alwaysValid)
		require.ErrorIs(t, err, types.ErrAlreadyClaimed)
	})

	t.Run("verify failure leaves no claim", func(t *testing.T) {
		bad := types.Identity{0x02}
		_, err := r.Claim(campaign.ID, bad, open, func(*types.Campaign) error {
			return types.ErrInvalidProof
		})
		require.ErrorIs(t, err, types.ErrInvalidProof)

		claimed, err := r.HasClaimed(campaign.ID, bad)
		require.NoError(t, err)
		require.False(t, claimed)
	})
}

func TestClaimCapacity(t *testing.T) {
	r := newTestRegistry(t)
	params := testParams()
	params.Capacity = 2
	campaign, err := r.CreateCampaign(params, testNow)
	require.NoError(t, err)
	require.NoError(t, r.SetActive(campaign.ID, true, testNow))

	open := campaign.StartTime.Add(time.Minute)
	for i := byte(1); i <= 2; i++ {
		_, err := r.Claim(campaign.ID, types.Identity{i}, open, alwaysValid)
		require.NoError(t, err)
	}

	_, err = r.Claim(campaign.ID, types.Identity{0x03}, open, alwaysValid)
	require.ErrorIs(t, err, types.ErrCapacityReached)
}

func TestRevertClaim(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)
	require.NoError(t, r.SetActive(campaign.ID, true, testNow))

	identity := types.Identity{0x01}
	open := campaign.StartTime.Add(time.Minute)

	require.ErrorIs(t, r.RevertClaim(campaign.ID, identity), types.ErrInvalidInput)

	updated, err := r.Claim(campaign.ID, identity, open, alwaysValid)
	require.NoError(t, err)
	require.Equal(t, uint64(1), updated.MintedCount)

	require.NoError(t, r.RevertClaim(campaign.ID, identity))

	got, err := r.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.Zero(t, got.MintedCount)

	// The identity can claim again after the revert.
	_, err = r.Claim(campaign.ID, identity, open, alwaysValid)
	require.NoError(t, err)
}

func TestListCampaignsOrdered(t *testing.T) {
	r := newTestRegistry(t)
	for i := 0; i < 3; i++ {
		_, err := r.CreateCampaign(testParams(), testNow)
		require.NoError(t, err)
	}

	campaigns := r.ListCampaigns()
	require.Len(t, campaigns, 3)
	for i, campaign := range campaigns {
		require.Equal(t, types.CampaignID(i+1), campaign.ID)
	}
}

func TestGetCampaignReturnsCopy(t *testing.T) {
	r := newTestRegistry(t)
	campaign, err := r.CreateCampaign(testParams(), testNow)
	require.NoError(t, err)

	got, err := r.GetCampaign(campaign.ID)
	require.NoError(t, err)
	got.Capacity = 1

	again, err := r.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(100), again.Capacity)
}
