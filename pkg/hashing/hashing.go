package hashing

import (
	"bytes"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mintgate/mintgate-go/pkg/types"
)

// Leaf computes the allowlist leaf hash for an identity.
//
// The identity is hashed packed: keccak256 over its raw 20 bytes with no
// padding. Builder and verifier MUST both go through this function; any
// divergence in encoding silently produces roots that never validate.
func Leaf(identity types.Identity) [32]byte {
	hash := crypto.Keccak256Hash(identity.Bytes())
	return [32]byte(hash)
}

// Pair computes the parent hash of two nodes.
//
// The pair is ordered by unsigned byte-lexicographic comparison before
// hashing, keccak256(min(a,b) || max(a,b)), so verification only needs the
// sibling value, never its left/right position.
func Pair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}

	data := make([]byte, 64)
	copy(data[0:32], a[:])
	copy(data[32:64], b[:])

	hash := crypto.Keccak256Hash(data)
	return [32]byte(hash)
}
