package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/mintgate/mintgate-go/pkg/types"
)

// Environment variable names for server configuration
const (
	EnvPort             = "MINTGATE_PORT"
	EnvSubmitterAddress = "MINTGATE_SUBMITTER_ADDRESS"
	EnvAdminJWTSecret   = "MINTGATE_ADMIN_JWT_SECRET"
	EnvAdminJWKSURL     = "MINTGATE_ADMIN_JWKS_URL"
	EnvPersistenceType  = "MINTGATE_PERSISTENCE_TYPE"
	EnvBadgerPath       = "MINTGATE_BADGER_PATH"
	EnvRedisAddress     = "MINTGATE_REDIS_ADDRESS"
	EnvRedisPassword    = "MINTGATE_REDIS_PASSWORD"
	EnvClaimRateLimit   = "MINTGATE_CLAIM_RATE_LIMIT"
	EnvMaxProofDepth    = "MINTGATE_MAX_PROOF_DEPTH"
	EnvVerbose          = "MINTGATE_VERBOSE"
)

// PersistenceType selects the backing store.
type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceMemory PersistenceType = "memory"
	PersistenceBadger PersistenceType = "badger"
	PersistenceRedis  PersistenceType = "redis"
)

// ParsePersistenceType validates a persistence type string.
func ParsePersistenceType(s string) (PersistenceType, error) {
	switch PersistenceType(s) {
	case PersistenceMemory, PersistenceBadger, PersistenceRedis:
		return PersistenceType(s), nil
	default:
		return "", fmt.Errorf("unsupported persistence type: %s (supported: memory, badger, redis)", s)
	}
}

// ServerConfig is the complete configuration for the admission server.
type ServerConfig struct {
	Port int `json:"port"`

	// SubmitterAddress is the authorized submitter role; only claims
	// relayed by this identity are admitted.
	SubmitterAddress string `json:"submitter_address"`

	// Admin authentication: either a shared HMAC secret or a JWKS URL
	// for asymmetric keys. Exactly one must be set.
	AdminJWTSecret string `json:"admin_jwt_secret,omitempty"`
	AdminJWKSURL   string `json:"admin_jwks_url,omitempty"`

	// Persistence selection
	PersistenceType PersistenceType `json:"persistence_type"`
	BadgerPath      string          `json:"badger_path,omitempty"`
	RedisAddress    string          `json:"redis_address,omitempty"`
	RedisPassword   string          `json:"-"`

	// ClaimRateLimit is the sustained claims-per-second accepted by the
	// gateway; burst is twice this. Zero disables limiting.
	ClaimRateLimit float64 `json:"claim_rate_limit"`

	// MaxProofDepth guards against oversized attacker-supplied proofs.
	MaxProofDepth int `json:"max_proof_depth"`

	Verbose bool `json:"verbose"`
}

// Validate checks the configuration and fills defaults.
func (c *ServerConfig) Validate() error {
	var allErrors field.ErrorList

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "port must be between 1-65535"))
	}

	if c.SubmitterAddress == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("submitterAddress"), "submitter address is required"))
	} else if !common.IsHexAddress(c.SubmitterAddress) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("submitterAddress"), c.SubmitterAddress, "invalid address format"))
	}

	if c.AdminJWTSecret == "" && c.AdminJWKSURL == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("adminJwtSecret"), "either an admin JWT secret or a JWKS URL is required"))
	}
	if c.AdminJWTSecret != "" && c.AdminJWKSURL != "" {
		allErrors = append(allErrors, field.Invalid(field.NewPath("adminJwksUrl"), c.AdminJWKSURL, "JWT secret and JWKS URL are mutually exclusive"))
	}

	switch c.PersistenceType {
	case PersistenceMemory:
	case PersistenceBadger:
		if c.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("badgerPath"), "badger path is required for badger persistence"))
		}
	case PersistenceRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redis address is required for redis persistence"))
		}
	default:
		allErrors = append(allErrors, field.Invalid(field.NewPath("persistenceType"), c.PersistenceType, "supported: memory, badger, redis"))
	}

	if c.ClaimRateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("claimRateLimit"), c.ClaimRateLimit, "rate limit cannot be negative"))
	}

	if c.MaxProofDepth == 0 {
		c.MaxProofDepth = types.MaxProofDepth
	}
	if c.MaxProofDepth < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("maxProofDepth"), c.MaxProofDepth, "max proof depth must be positive"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// Submitter returns the parsed submitter identity. Call after Validate.
func (c *ServerConfig) Submitter() types.Identity {
	return common.HexToAddress(c.SubmitterAddress)
}
