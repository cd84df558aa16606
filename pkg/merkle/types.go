package merkle

import "github.com/mintgate/mintgate-go/pkg/types"

// Tree is a binary merkle tree over an allowlist of identities.
//
// Nodes are combined with the sorted-pair rule (hashing.Pair), so proofs
// carry only sibling values and no position information. An unpaired node
// at the end of a level is carried to the next level unchanged, never
// duplicated.
type Tree struct {
	// identities in build order, after duplicate rejection
	identities []types.Identity

	// leaves[i] is the leaf hash of identities[i]
	leaves [][32]byte

	// levels[0] = leaves, levels[len-1] = [root]
	levels [][][32]byte

	// proofIndex maps each identity to its leaf position
	proofIndex map[types.Identity]int
}

// Root returns the tree's root hash.
func (t *Tree) Root() [32]byte {
	return t.levels[len(t.levels)-1][0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.leaves)
}

// Identities returns the identities in leaf order.
func (t *Tree) Identities() []types.Identity {
	out := make([]types.Identity, len(t.identities))
	copy(out, t.identities)
	return out
}

// Leaf returns the leaf hash of the identity, if it is in the tree.
func (t *Tree) Leaf(identity types.Identity) ([32]byte, bool) {
	idx, ok := t.proofIndex[identity]
	if !ok {
		return [32]byte{}, false
	}
	return t.leaves[idx], true
}
