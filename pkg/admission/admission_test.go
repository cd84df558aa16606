package admission

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mintgate/mintgate-go/pkg/ledger"
	"github.com/mintgate/mintgate-go/pkg/merkle"
	"github.com/mintgate/mintgate-go/pkg/registry"
	"github.com/mintgate/mintgate-go/pkg/types"
)

var (
	testNow       = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testSubmitter = types.Identity{0xee, 0x01}
)

func testIdentities(n int) []types.Identity {
	out := make([]types.Identity, n)
	for i := range out {
		binary.BigEndian.PutUint64(out[i][12:], uint64(i+1))
	}
	return out
}

type fixture struct {
	controller *Controller
	registry   *registry.Registry
	ledger     *ledger.Ledger
	tree       *merkle.Tree
	campaign   *types.Campaign
	open       time.Time
}

// newFixture builds an allowlist of n identities, an active campaign bound
// to its root, and a controller around them.
func newFixture(t *testing.T, n int, capacity uint64) *fixture {
	t.Helper()
	logger := zap.NewNop()

	reg, err := registry.NewRegistry(nil, logger)
	require.NoError(t, err)
	led, err := ledger.NewLedger(reg, nil, logger)
	require.NoError(t, err)

	tree, err := merkle.Build(testIdentities(n))
	require.NoError(t, err)

	campaign, err := reg.CreateCampaign(types.CampaignParams{
		Root:            tree.Root(),
		StartTime:       testNow.Add(time.Hour),
		EndTime:         testNow.Add(48 * time.Hour),
		Capacity:        capacity,
		MetadataLocator: "ipfs://QmCampaignMeta",
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, reg.SetActive(campaign.ID, true, testNow))

	controller, err := NewController(Config{AuthorizedSubmitter: testSubmitter}, reg, led, nil, logger)
	require.NoError(t, err)

	return &fixture{
		controller: controller,
		registry:   reg,
		ledger:     led,
		tree:       tree,
		campaign:   campaign,
		open:       campaign.StartTime.Add(time.Minute),
	}
}

func (f *fixture) proofFor(t *testing.T, identity types.Identity) [][32]byte {
	t.Helper()
	proof, err := f.tree.Proof(identity)
	require.NoError(t, err)
	return proof
}

func TestNewControllerRejectsZeroSubmitter(t *testing.T) {
	_, err := NewController(Config{}, nil, nil, nil, zap.NewNop())
	require.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestClaimHappyPath(t *testing.T) {
	f := newFixture(t, 8, 100)
	identity := testIdentities(8)[0]

	credentialID, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, f.proofFor(t, identity), f.open)
	require.NoError(t, err)
	require.Equal(t, types.CredentialID(1), credentialID)

	owner, err := f.ledger.OwnerOf(credentialID)
	require.NoError(t, err)
	require.Equal(t, identity, owner)

	campaign, err := f.registry.GetCampaign(f.campaign.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), campaign.MintedCount)
}

func TestClaimCheckOrder(t *testing.T) {
	f := newFixture(t, 8, 100)
	identities := testIdentities(8)
	identity := identities[0]
	proof := f.proofFor(t, identity)

	t.Run("zero identity", func(t *testing.T) {
		_, err := f.controller.Claim(testSubmitter, types.ZeroIdentity, f.campaign.ID, proof, f.open)
		require.ErrorIs(t, err, types.ErrInvalidInput)
	})

	t.Run("wrong submitter", func(t *testing.T) {
		// Authorization is checked before campaign existence: an
		// unauthorized caller learns nothing about campaign 999.
		_, err := f.controller.Claim(types.Identity{0xbd}, identity, 999, proof, f.open)
		require.ErrorIs(t, err, types.ErrNotAuthorizedSubmitter)
	})

	t.Run("oversized proof", func(t *testing.T) {
		long := make([][32]byte, types.MaxProofDepth+1)
		_, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, long, f.open)
		require.ErrorIs(t, err, types.ErrProofTooLong)
	})

	t.Run("missing campaign", func(t *testing.T) {
		_, err := f.controller.Claim(testSubmitter, identity, 999, proof, f.open)
		require.ErrorIs(t, err, types.ErrCampaignDoesNotExist)
	})

	t.Run("window not open", func(t *testing.T) {
		_, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, testNow)
		require.ErrorIs(t, err, types.ErrMintingWindowNotOpen)
	})

	t.Run("invalid proof", func(t *testing.T) {
		// Valid proof for a different identity.
		otherProof := f.proofFor(t, identities[1])
		_, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, otherProof, f.open)
		require.ErrorIs(t, err, types.ErrInvalidProof)

		// Proof check runs last: the identity's claim flag stays clear.
		claimed, err := f.registry.HasClaimed(f.campaign.ID, identity)
		require.NoError(t, err)
		require.False(t, claimed)
	})

	t.Run("not on allowlist", func(t *testing.T) {
		outsider := types.Identity{0xff, 0xff}
		_, err := f.controller.Claim(testSubmitter, outsider, f.campaign.ID, proof, f.open)
		require.ErrorIs(t, err, types.ErrInvalidProof)
	})

	t.Run("duplicate claim", func(t *testing.T) {
		_, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
		require.NoError(t, err)
		_, err = f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
		require.ErrorIs(t, err, types.ErrAlreadyClaimed)
	})
}

func TestClaimPaused(t *testing.T) {
	f := newFixture(t, 4, 100)
	identity := testIdentities(4)[0]
	proof := f.proofFor(t, identity)

	require.NoError(t, f.controller.Pause())
	require.True(t, f.controller.Paused())

	_, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
	require.ErrorIs(t, err, types.ErrAdmissionPaused)

	require.NoError(t, f.controller.Unpause())
	_, err = f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
	require.NoError(t, err)
}

func TestClaimCapacityAcrossIdentities(t *testing.T) {
	f := newFixture(t, 8, 3)
	identities := testIdentities(8)

	for i := 0; i < 3; i++ {
		_, err := f.controller.Claim(testSubmitter, identities[i], f.campaign.ID, f.proofFor(t, identities[i]), f.open)
		require.NoError(t, err)
	}

	_, err := f.controller.Claim(testSubmitter, identities[3], f.campaign.ID, f.proofFor(t, identities[3]), f.open)
	require.ErrorIs(t, err, types.ErrCapacityReached)
}

func TestConcurrentClaims(t *testing.T) {
	const (
		allowlisted = 32
		capacity    = 10
	)
	f := newFixture(t, allowlisted, capacity)
	identities := testIdentities(allowlisted)

	var wg sync.WaitGroup
	results := make(chan error, allowlisted*2)

	// Every identity races, and every identity also races against a
	// duplicate of itself.
	for i := 0; i < allowlisted; i++ {
		identity := identities[i]
		proof := f.proofFor(t, identity)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
				results <- err
			}()
		}
	}
	wg.Wait()
	close(results)

	var admitted int
	for err := range results {
		if err == nil {
			admitted++
		} else {
			require.Truef(t,
				errors.Is(err, types.ErrAlreadyClaimed) || errors.Is(err, types.ErrCapacityReached),
				"unexpected claim error: %v", err)
		}
	}
	require.Equal(t, capacity, admitted, "minted count must equal capacity exactly")

	campaign, err := f.registry.GetCampaign(f.campaign.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(capacity), campaign.MintedCount)

	// No identity holds more than one credential.
	for _, identity := range identities {
		require.LessOrEqual(t, len(f.ledger.CredentialsOf(identity)), 1)
	}
}

func TestQualify(t *testing.T) {
	f := newFixture(t, 4, 1)
	identities := testIdentities(4)

	require.NoError(t, f.controller.Qualify(identities[0], f.campaign.ID, f.open))
	require.ErrorIs(t, f.controller.Qualify(types.ZeroIdentity, f.campaign.ID, f.open), types.ErrInvalidInput)
	require.ErrorIs(t, f.controller.Qualify(identities[0], 999, f.open), types.ErrCampaignDoesNotExist)
	require.ErrorIs(t, f.controller.Qualify(identities[0], f.campaign.ID, testNow), types.ErrMintingWindowNotOpen)

	_, err := f.controller.Claim(testSubmitter, identities[0], f.campaign.ID, f.proofFor(t, identities[0]), f.open)
	require.NoError(t, err)

	require.ErrorIs(t, f.controller.Qualify(identities[0], f.campaign.ID, f.open), types.ErrAlreadyClaimed)
	require.ErrorIs(t, f.controller.Qualify(identities[1], f.campaign.ID, f.open), types.ErrCapacityReached)
}

func TestRevokeFreesClaimSlot(t *testing.T) {
	f := newFixture(t, 4, 100)
	identity := testIdentities(4)[0]
	proof := f.proofFor(t, identity)

	credentialID, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
	require.NoError(t, err)

	require.NoError(t, f.controller.Revoke(credentialID))

	_, err = f.ledger.Get(credentialID)
	require.ErrorIs(t, err, types.ErrCredentialNotFound)

	campaign, err := f.registry.GetCampaign(f.campaign.ID)
	require.NoError(t, err)
	require.Zero(t, campaign.MintedCount)

	// Reissue under a fresh id; the counter never goes backwards.
	reissued, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
	require.NoError(t, err)
	require.Greater(t, reissued, credentialID)

	require.ErrorIs(t, f.controller.Revoke(999), types.ErrCredentialNotFound)
}

func TestRotateSubmitter(t *testing.T) {
	f := newFixture(t, 4, 100)
	identity := testIdentities(4)[0]
	proof := f.proofFor(t, identity)
	replacement := types.Identity{0xee, 0x02}

	require.ErrorIs(t, f.controller.RotateSubmitter(types.ZeroIdentity), types.ErrInvalidInput)

	require.NoError(t, f.controller.RotateSubmitter(replacement))
	require.Equal(t, replacement, f.controller.AuthorizedSubmitter())

	_, err := f.controller.Claim(testSubmitter, identity, f.campaign.ID, proof, f.open)
	require.ErrorIs(t, err, types.ErrNotAuthorizedSubmitter)

	_, err = f.controller.Claim(replacement, identity, f.campaign.ID, proof, f.open)
	require.NoError(t, err)
}

// TestCampaignLifecycle walks a campaign end to end: creation, pre-start
// update, activation, claims inside the window, expiry, and a post-expiry
// revoke that still works.
func TestCampaignLifecycle(t *testing.T) {
	logger := zap.NewNop()
	reg, err := registry.NewRegistry(nil, logger)
	require.NoError(t, err)
	led, err := ledger.NewLedger(reg, nil, logger)
	require.NoError(t, err)
	controller, err := NewController(Config{AuthorizedSubmitter: testSubmitter}, reg, led, nil, logger)
	require.NoError(t, err)

	identities := testIdentities(5)
	tree, err := merkle.Build(identities)
	require.NoError(t, err)

	campaign, err := reg.CreateCampaign(types.CampaignParams{
		Root:            tree.Root(),
		StartTime:       testNow.Add(time.Hour),
		EndTime:         testNow.Add(24 * time.Hour),
		Capacity:        10,
		MetadataLocator: "ipfs://QmLifecycle",
	}, testNow)
	require.NoError(t, err)

	// Pre-start: tighten capacity.
	params := types.CampaignParams{
		Root:            tree.Root(),
		StartTime:       campaign.StartTime,
		EndTime:         campaign.EndTime,
		Capacity:        2,
		MetadataLocator: "ipfs://QmLifecycle",
	}
	campaign, err = reg.UpdateCampaign(campaign.ID, params, testNow)
	require.NoError(t, err)

	// Claims before activation fail even inside the window.
	open := campaign.StartTime.Add(time.Minute)
	proof0, err := tree.Proof(identities[0])
	require.NoError(t, err)
	_, err = controller.Claim(testSubmitter, identities[0], campaign.ID, proof0, open)
	require.ErrorIs(t, err, types.ErrCampaignNotActive)

	require.NoError(t, reg.SetActive(campaign.ID, true, testNow))

	// Two claims fill the capacity.
	cred0, err := controller.Claim(testSubmitter, identities[0], campaign.ID, proof0, open)
	require.NoError(t, err)
	proof1, err := tree.Proof(identities[1])
	require.NoError(t, err)
	_, err = controller.Claim(testSubmitter, identities[1], campaign.ID, proof1, open)
	require.NoError(t, err)

	proof2, err := tree.Proof(identities[2])
	require.NoError(t, err)
	_, err = controller.Claim(testSubmitter, identities[2], campaign.ID, proof2, open)
	require.ErrorIs(t, err, types.ErrCapacityReached)

	// After expiry the window is closed regardless of activation.
	expired := campaign.EndTime.Add(time.Minute)
	_, err = controller.Claim(testSubmitter, identities[2], campaign.ID, proof2, expired)
	require.ErrorIs(t, err, types.ErrMintingWindowNotOpen)

	// Administrative revocation is not time-boxed.
	require.NoError(t, controller.Revoke(cred0))
	got, err := reg.GetCampaign(campaign.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.MintedCount)
}
