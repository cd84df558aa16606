package allowlist

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mintgate/mintgate-go/pkg/types"
)

// ReadIdentitiesCSV parses an allowlist CSV: one identity per record in
// the first column, '#' comment lines and blank lines skipped. Order is
// preserved because it determines the tree shape. Duplicates are rejected
// rather than silently deduplicated, so the operator sees the bad input.
func ReadIdentitiesCSV(r io.Reader) ([]types.Identity, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	seen := make(map[types.Identity]int)
	var identities []types.Identity

	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		line++

		if len(record) == 0 {
			continue
		}
		raw := strings.TrimSpace(record[0])
		if raw == "" {
			continue
		}

		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("record %d: %q is not a valid identity: %w", line, raw, types.ErrInvalidInput)
		}
		identity := common.HexToAddress(raw)

		if prev, ok := seen[identity]; ok {
			return nil, fmt.Errorf("record %d duplicates record %d (%s): %w", line, prev, identity.Hex(), types.ErrDuplicateIdentity)
		}
		seen[identity] = line
		identities = append(identities, identity)
	}

	if len(identities) == 0 {
		return nil, fmt.Errorf("allowlist CSV contains no identities: %w", types.ErrInvalidInput)
	}

	return identities, nil
}
