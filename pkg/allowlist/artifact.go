package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/mintgate/mintgate-go/pkg/hashing"
	"github.com/mintgate/mintgate-go/pkg/merkle"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// Artifact is the single contract between offline tree generation and the
// admission path: the campaign root plus every identity's proof. Any change
// to the identity encoding or pairing rule invalidates all distributed
// proofs, so artifacts carry an integrity checksum that is validated on
// load.
type Artifact struct {
	Root     [32]byte
	Proofs   map[types.Identity][][32]byte
	Checksum [32]byte
}

// artifactJSON is the wire shape; identities are checksummed hex, hashes
// 0x-prefixed hex.
type artifactJSON struct {
	Root     types.HexHash              `json:"root"`
	Count    int                        `json:"count"`
	Checksum types.HexHash              `json:"checksum"`
	Proofs   map[string][]types.HexHash `json:"proofs"`
}

// BuildArtifact extracts the root and all proofs from a built tree and
// seals them with the checksum.
func BuildArtifact(tree *merkle.Tree) (*Artifact, error) {
	proofs, err := tree.Proofs()
	if err != nil {
		return nil, fmt.Errorf("failed to collect proofs: %w", err)
	}

	a := &Artifact{
		Root:   tree.Root(),
		Proofs: proofs,
	}
	a.Checksum = a.computeChecksum()
	return a, nil
}

// computeChecksum hashes the root and every (identity, proof) entry in
// identity byte order, so the digest is independent of map iteration.
func (a *Artifact) computeChecksum() [32]byte {
	identities := make([]types.Identity, 0, len(a.Proofs))
	for identity := range a.Proofs {
		identities = append(identities, identity)
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].Cmp(identities[j]) < 0
	})

	h := sha3.New256()
	h.Write(a.Root[:])
	for _, identity := range identities {
		h.Write(identity.Bytes())
		for _, node := range a.Proofs[identity] {
			h.Write(node[:])
		}
	}

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// ProofFor returns the identity's proof, or an error when the identity is
// not in the allowlist.
func (a *Artifact) ProofFor(identity types.Identity) ([][32]byte, error) {
	proof, ok := a.Proofs[identity]
	if !ok {
		return nil, fmt.Errorf("identity %s is not in the allowlist", identity.Hex())
	}
	out := make([][32]byte, len(proof))
	copy(out, proof)
	return out, nil
}

// Verify checks the checksum and then re-verifies every proof against the
// root. Run after loading an artifact from untrusted storage.
func (a *Artifact) Verify() error {
	if a.Root == [32]byte{} {
		return fmt.Errorf("artifact root is zero: %w", types.ErrInvalidInput)
	}
	if a.computeChecksum() != a.Checksum {
		return fmt.Errorf("artifact checksum mismatch: %w", types.ErrInvalidInput)
	}

	for identity, proof := range a.Proofs {
		if err := merkle.VerifyDepth(hashing.Leaf(identity), proof, a.Root, types.MaxProofDepth); err != nil {
			return fmt.Errorf("proof for %s does not verify: %w", identity.Hex(), err)
		}
	}
	return nil
}

// MarshalJSON encodes the artifact in its wire shape.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	out := artifactJSON{
		Root:     types.HexHash(a.Root),
		Count:    len(a.Proofs),
		Checksum: types.HexHash(a.Checksum),
		Proofs:   make(map[string][]types.HexHash, len(a.Proofs)),
	}
	for identity, proof := range a.Proofs {
		hexProof := make([]types.HexHash, len(proof))
		for i, node := range proof {
			hexProof[i] = types.HexHash(node)
		}
		out.Proofs[identity.Hex()] = hexProof
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the wire shape, rejecting malformed identities.
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var in artifactJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	a.Root = [32]byte(in.Root)
	a.Checksum = [32]byte(in.Checksum)
	a.Proofs = make(map[types.Identity][][32]byte, len(in.Proofs))

	for identityHex, hexProof := range in.Proofs {
		if !common.IsHexAddress(identityHex) {
			return fmt.Errorf("malformed identity %q: %w", identityHex, types.ErrInvalidInput)
		}
		proof := make([][32]byte, len(hexProof))
		for i, node := range hexProof {
			proof[i] = [32]byte(node)
		}
		a.Proofs[common.HexToAddress(identityHex)] = proof
	}
	return nil
}

// WriteFile serializes the artifact to path.
func (a *Artifact) WriteFile(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact file: %w", err)
	}
	return nil
}

// ReadFile loads and integrity-checks an artifact from path.
func ReadFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact file: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse artifact: %w", err)
	}
	if err := a.Verify(); err != nil {
		return nil, err
	}
	return &a, nil
}
