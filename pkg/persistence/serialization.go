package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/mintgate/mintgate-go/pkg/types"
)

// MarshalCampaign serializes a campaign record to JSON bytes.
func MarshalCampaign(campaign *types.Campaign) ([]byte, error) {
	if campaign == nil {
		return nil, fmt.Errorf("cannot marshal nil Campaign")
	}

	data, err := json.Marshal(campaign)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Campaign to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalCampaign deserializes a campaign record from JSON bytes.
func UnmarshalCampaign(data []byte) (*types.Campaign, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var campaign types.Campaign
	if err := json.Unmarshal(data, &campaign); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Campaign: %w", err)
	}

	return &campaign, nil
}

// MarshalCredential serializes a credential record to JSON bytes.
func MarshalCredential(credential *types.Credential) ([]byte, error) {
	if credential == nil {
		return nil, fmt.Errorf("cannot marshal nil Credential")
	}

	return json.Marshal(credential)
}

// UnmarshalCredential deserializes a credential record from JSON bytes.
func UnmarshalCredential(data []byte) (*types.Credential, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var credential types.Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Credential: %w", err)
	}

	return &credential, nil
}

// MarshalServiceState serializes ServiceState to JSON bytes.
func MarshalServiceState(state *ServiceState) ([]byte, error) {
	if state == nil {
		return nil, fmt.Errorf("cannot marshal nil ServiceState")
	}

	return json.Marshal(state)
}

// UnmarshalServiceState deserializes ServiceState from JSON bytes.
func UnmarshalServiceState(data []byte) (*ServiceState, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var state ServiceState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to ServiceState: %w", err)
	}

	return &state, nil
}
