package persistence

// ServiceState holds the counters and switches that must survive restarts.
// The admission controller is its only writer.
type ServiceState struct {
	// NextCredentialID is the next global credential id. The counter is
	// shared across all campaigns and never reused, even after revokes.
	NextCredentialID uint64 `json:"nextCredentialId"`

	// Paused is the global admission kill switch.
	Paused bool `json:"paused"`

	// AuthorizedSubmitter is the hex address of the single role permitted
	// to submit claims on behalf of identities.
	AuthorizedSubmitter string `json:"authorizedSubmitter"`
}
