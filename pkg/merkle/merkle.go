package merkle

import (
	"fmt"

	"github.com/mintgate/mintgate-go/pkg/hashing"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// Build creates a merkle tree from the given identities.
//
// The input order is preserved: the same identity list in the same order
// always yields the same root and the same proofs. Duplicate identities are
// rejected, since a duplicate would receive two independent proofs for the
// same leaf. The zero identity is rejected as never eligible.
func Build(identities []types.Identity) (*Tree, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty identity list")
	}

	proofIndex := make(map[types.Identity]int, len(identities))
	leaves := make([][32]byte, len(identities))
	for i, identity := range identities {
		if identity == types.ZeroIdentity {
			return nil, fmt.Errorf("identity at index %d: %w", i, types.ErrInvalidInput)
		}
		if prev, ok := proofIndex[identity]; ok {
			return nil, fmt.Errorf("identity %s at indices %d and %d: %w",
				identity.Hex(), prev, i, types.ErrDuplicateIdentity)
		}
		proofIndex[identity] = i
		leaves[i] = hashing.Leaf(identity)
	}

	// Build tree levels bottom-up. An unpaired trailing node is carried to
	// the next level unchanged.
	levels := make([][][32]byte, 0)
	levels = append(levels, leaves)

	currentLevel := leaves
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 < len(currentLevel) {
				nextLevel = append(nextLevel, hashing.Pair(currentLevel[i], currentLevel[i+1]))
			} else {
				nextLevel = append(nextLevel, currentLevel[i])
			}
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	ids := make([]types.Identity, len(identities))
	copy(ids, identities)

	return &Tree{
		identities: ids,
		leaves:     leaves,
		levels:     levels,
		proofIndex: proofIndex,
	}, nil
}

// Proof returns the sibling path for the identity, ordered leaf to root.
//
// Levels where the identity's node was carried up unpaired contribute no
// sibling, so proofs can be shorter than the tree height.
func (t *Tree) Proof(identity types.Identity) ([][32]byte, error) {
	index, ok := t.proofIndex[identity]
	if !ok {
		return nil, fmt.Errorf("identity %s is not in the tree", identity.Hex())
	}

	proof := make([][32]byte, 0)

	for level := 0; level < len(t.levels)-1; level++ {
		currentLevel := t.levels[level]

		var siblingIndex int
		if index%2 == 0 {
			siblingIndex = index + 1
		} else {
			siblingIndex = index - 1
		}

		// A trailing unpaired node has no sibling at this level.
		if siblingIndex < len(currentLevel) {
			proof = append(proof, currentLevel[siblingIndex])
		}

		index = index / 2
	}

	return proof, nil
}

// Proofs returns the proof of every identity in the tree, keyed by identity.
func (t *Tree) Proofs() (map[types.Identity][][32]byte, error) {
	proofs := make(map[types.Identity][][32]byte, len(t.identities))
	for _, identity := range t.identities {
		proof, err := t.Proof(identity)
		if err != nil {
			return nil, err
		}
		proofs[identity] = proof
	}
	return proofs, nil
}

// Verify checks that folding the sorted-pair hash over proof, starting from
// leaf, reproduces root. Returns ErrInvalidProof on mismatch.
func Verify(leaf [32]byte, proof [][32]byte, root [32]byte) error {
	currentHash := leaf
	for _, sibling := range proof {
		currentHash = hashing.Pair(currentHash, sibling)
	}
	if currentHash != root {
		return types.ErrInvalidProof
	}
	return nil
}

// VerifyDepth is Verify with a maximum proof length enforced before any
// hashing, guarding against attacker-supplied unbounded proofs. Returns
// ErrProofTooLong when len(proof) > maxDepth.
func VerifyDepth(leaf [32]byte, proof [][32]byte, root [32]byte, maxDepth int) error {
	if len(proof) > maxDepth {
		return fmt.Errorf("proof length %d exceeds maximum depth %d: %w",
			len(proof), maxDepth, types.ErrProofTooLong)
	}
	return Verify(leaf, proof, root)
}
