package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// Key layout. Redis has no native prefix iteration, so campaign and
// credential ids are tracked in index sets and claim flags live in one set
// per campaign.
const (
	keyPrefixCampaign   = "mintgate:campaign:"
	keyPrefixCredential = "mintgate:credential:"
	keyPrefixClaims     = "mintgate:claims:"
	keyServiceState     = "mintgate:state:main"
	keySchemaVersion    = "mintgate:metadata:schema_version"
	keySetCampaigns     = "mintgate:campaigns:index"
	keySetCredentials   = "mintgate:credentials:index"

	currentSchemaVersion = "v1"
	opTimeout            = 5 * time.Second
)

// RedisStore is a persistence.Store backed by Redis, for deployments where
// the admission service runs alongside an existing Redis.
type RedisStore struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ persistence.Store = (*RedisStore)(nil)

// RedisConfig holds the connection settings.
type RedisConfig struct {
	// Address is the Redis server address (host:port).
	Address string
	// Password is the optional Redis password.
	Password string
	// DB is the Redis database number.
	DB int
	// KeyPrefix is an optional extra prefix for multi-tenant setups.
	KeyPrefix string
}

// NewRedisStore connects to Redis and validates the schema version.
func NewRedisStore(cfg *RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rs := &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rs.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Sugar().Infow("Redis store initialized", "address", cfg.Address, "db", cfg.DB)

	return rs, nil
}

func (r *RedisStore) key(k string) string {
	return r.keyPrefix + k
}

func (r *RedisStore) initSchema(ctx context.Context) error {
	existing, err := r.client.Get(ctx, r.key(keySchemaVersion)).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, r.key(keySchemaVersion), currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existing != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
	}
	return nil
}

func (r *RedisStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// SaveCampaign persists a campaign record and indexes its id.
func (r *RedisStore) SaveCampaign(campaign *types.Campaign) error {
	if campaign == nil {
		return fmt.Errorf("cannot save nil Campaign")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := persistence.MarshalCampaign(campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal Campaign: %w", err)
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(keyPrefixCampaign+strconv.FormatUint(uint64(campaign.ID), 10)), data, 0)
	pipe.SAdd(ctx, r.key(keySetCampaigns), uint64(campaign.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save Campaign: %w", err)
	}
	return nil
}

// LoadCampaign retrieves a campaign by id, nil if absent.
func (r *RedisStore) LoadCampaign(id types.CampaignID) (*types.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	return r.getCampaign(ctx, id)
}

// getCampaign reads a campaign record without touching the store lock.
func (r *RedisStore) getCampaign(ctx context.Context, id types.CampaignID) (*types.Campaign, error) {
	data, err := r.client.Get(ctx, r.key(keyPrefixCampaign+strconv.FormatUint(uint64(id), 10))).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Campaign: %w", err)
	}

	return persistence.UnmarshalCampaign(data)
}

// ListCampaigns returns all campaigns sorted by id.
func (r *RedisStore) ListCampaigns() ([]*types.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.key(keySetCampaigns)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read campaign index: %w", err)
	}

	var campaigns []*types.Campaign
	for _, idStr := range ids {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			r.logger.Sugar().Warnw("Malformed campaign index entry, skipping", "entry", idStr)
			continue
		}
		campaign, err := r.getCampaign(ctx, types.CampaignID(id))
		if err != nil {
			return nil, err
		}
		if campaign != nil {
			campaigns = append(campaigns, campaign)
		}
	}

	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].ID < campaigns[j].ID
	})

	return campaigns, nil
}

// DeleteCampaign removes a campaign record, its index entry, and its claim
// set.
func (r *RedisStore) DeleteCampaign(id types.CampaignID) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	idStr := strconv.FormatUint(uint64(id), 10)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(keyPrefixCampaign+idStr))
	pipe.Del(ctx, r.key(keyPrefixClaims+idStr))
	pipe.SRem(ctx, r.key(keySetCampaigns), uint64(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete Campaign: %w", err)
	}
	return nil
}

// SaveClaim sets the (campaign, identity) claim flag.
func (r *RedisStore) SaveClaim(campaignID types.CampaignID, identity types.Identity) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	key := r.key(keyPrefixClaims + strconv.FormatUint(uint64(campaignID), 10))
	if err := r.client.SAdd(ctx, key, identity.Hex()).Err(); err != nil {
		return fmt.Errorf("failed to save claim flag: %w", err)
	}
	return nil
}

// DeleteClaim unsets the claim flag.
func (r *RedisStore) DeleteClaim(campaignID types.CampaignID, identity types.Identity) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	key := r.key(keyPrefixClaims + strconv.FormatUint(uint64(campaignID), 10))
	if err := r.client.SRem(ctx, key, identity.Hex()).Err(); err != nil {
		return fmt.Errorf("failed to delete claim flag: %w", err)
	}
	return nil
}

// HasClaim reports whether the claim flag is set.
func (r *RedisStore) HasClaim(campaignID types.CampaignID, identity types.Identity) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	key := r.key(keyPrefixClaims + strconv.FormatUint(uint64(campaignID), 10))
	claimed, err := r.client.SIsMember(ctx, key, identity.Hex()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read claim flag: %w", err)
	}
	return claimed, nil
}

// ListClaims returns the identities that claimed in the campaign.
func (r *RedisStore) ListClaims(campaignID types.CampaignID) ([]types.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	key := r.key(keyPrefixClaims + strconv.FormatUint(uint64(campaignID), 10))
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list claim flags: %w", err)
	}

	identities := make([]types.Identity, 0, len(members))
	for _, member := range members {
		if !common.IsHexAddress(member) {
			r.logger.Sugar().Warnw("Malformed claim entry, skipping", "entry", member)
			continue
		}
		identities = append(identities, common.HexToAddress(member))
	}

	sort.Slice(identities, func(i, j int) bool {
		return identities[i].Cmp(identities[j]) < 0
	})

	return identities, nil
}

// SaveCredential persists a credential record and indexes its id.
func (r *RedisStore) SaveCredential(credential *types.Credential) error {
	if credential == nil {
		return fmt.Errorf("cannot save nil Credential")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := persistence.MarshalCredential(credential)
	if err != nil {
		return fmt.Errorf("failed to marshal Credential: %w", err)
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(keyPrefixCredential+strconv.FormatUint(uint64(credential.ID), 10)), data, 0)
	pipe.SAdd(ctx, r.key(keySetCredentials), uint64(credential.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save Credential: %w", err)
	}
	return nil
}

// LoadCredential retrieves a credential by id, nil if absent.
func (r *RedisStore) LoadCredential(id types.CredentialID) (*types.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	return r.getCredential(ctx, id)
}

// getCredential reads a credential record without touching the store lock.
func (r *RedisStore) getCredential(ctx context.Context, id types.CredentialID) (*types.Credential, error) {
	data, err := r.client.Get(ctx, r.key(keyPrefixCredential+strconv.FormatUint(uint64(id), 10))).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Credential: %w", err)
	}

	return persistence.UnmarshalCredential(data)
}

// ListCredentials returns all credentials sorted by id.
func (r *RedisStore) ListCredentials() ([]*types.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.key(keySetCredentials)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read credential index: %w", err)
	}

	var credentials []*types.Credential
	for _, idStr := range ids {
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			r.logger.Sugar().Warnw("Malformed credential index entry, skipping", "entry", idStr)
			continue
		}
		credential, err := r.getCredential(ctx, types.CredentialID(id))
		if err != nil {
			return nil, err
		}
		if credential != nil {
			credentials = append(credentials, credential)
		}
	}

	sort.Slice(credentials, func(i, j int) bool {
		return credentials[i].ID < credentials[j].ID
	})

	return credentials, nil
}

// DeleteCredential removes a credential record and its index entry.
func (r *RedisStore) DeleteCredential(id types.CredentialID) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(keyPrefixCredential+strconv.FormatUint(uint64(id), 10)))
	pipe.SRem(ctx, r.key(keySetCredentials), uint64(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete Credential: %w", err)
	}
	return nil
}

// SaveServiceState persists counters and switches.
func (r *RedisStore) SaveServiceState(state *persistence.ServiceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ServiceState")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := persistence.MarshalServiceState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ServiceState: %w", err)
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	if err := r.client.Set(ctx, r.key(keyServiceState), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save ServiceState: %w", err)
	}
	return nil
}

// LoadServiceState retrieves service state, nil on first run.
func (r *RedisStore) LoadServiceState() (*persistence.ServiceState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	data, err := r.client.Get(ctx, r.key(keyServiceState)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ServiceState: %w", err)
	}

	return persistence.UnmarshalServiceState(data)
}

// Close shuts down the client. Idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}

// HealthCheck pings the server.
func (r *RedisStore) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("store is closed")
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	return r.client.Ping(ctx).Err()
}
