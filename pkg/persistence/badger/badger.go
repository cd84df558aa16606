package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/mintgate/mintgate-go/pkg/persistence"
	"github.com/mintgate/mintgate-go/pkg/types"
)

// Key prefixes for namespacing
const (
	keyPrefixCampaign    = "campaign:"
	keyPrefixClaim       = "claim:"
	keyPrefixCredential  = "credential:"
	keyServiceState      = "state:main"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerStore is the durable persistence.Store implementation. Writes are
// synced to disk on every commit.
type BadgerStore struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ persistence.Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a Badger database at dataPath and
// starts a background value-log GC goroutine.
func NewBadgerStore(dataPath string, logger *zap.Logger) (*BadgerStore, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true // issued credentials must survive a crash
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bs := &BadgerStore{
		db:     db,
		logger: logger,
	}

	if err := bs.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs.gcCancel = cancel
	bs.gcWg.Add(1)
	go bs.runGC(ctx)

	logger.Sugar().Infow("Badger store initialized", "path", absPath)

	return bs, nil
}

// initSchema writes the schema version on first open and validates it on
// subsequent opens.
func (b *BadgerStore) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value-log garbage collection in the background.
func (b *BadgerStore) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// campaignKey builds a big-endian id key so iteration order is id order.
func campaignKey(id types.CampaignID) []byte {
	key := make([]byte, len(keyPrefixCampaign)+8)
	copy(key, keyPrefixCampaign)
	binary.BigEndian.PutUint64(key[len(keyPrefixCampaign):], uint64(id))
	return key
}

// claimKey namespaces claim flags as claim:<campaign id>:<identity>.
func claimKey(campaignID types.CampaignID, identity types.Identity) []byte {
	prefix := claimPrefix(campaignID)
	return append(prefix, identity.Bytes()...)
}

func claimPrefix(campaignID types.CampaignID) []byte {
	prefix := make([]byte, len(keyPrefixClaim)+9)
	copy(prefix, keyPrefixClaim)
	binary.BigEndian.PutUint64(prefix[len(keyPrefixClaim):], uint64(campaignID))
	prefix[len(prefix)-1] = ':'
	return prefix
}

func credentialKey(id types.CredentialID) []byte {
	key := make([]byte, len(keyPrefixCredential)+8)
	copy(key, keyPrefixCredential)
	binary.BigEndian.PutUint64(key[len(keyPrefixCredential):], uint64(id))
	return key
}

// SaveCampaign persists a campaign record.
func (b *BadgerStore) SaveCampaign(campaign *types.Campaign) error {
	if campaign == nil {
		return fmt.Errorf("cannot save nil Campaign")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := persistence.MarshalCampaign(campaign)
	if err != nil {
		return fmt.Errorf("failed to marshal Campaign: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(campaignKey(campaign.ID), data)
	})
}

// LoadCampaign retrieves a campaign by id, nil if absent.
func (b *BadgerStore) LoadCampaign(id types.CampaignID) (*types.Campaign, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	data, err := b.get(campaignKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load Campaign: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return persistence.UnmarshalCampaign(data)
}

// ListCampaigns returns all campaigns sorted by id.
func (b *BadgerStore) ListCampaigns() ([]*types.Campaign, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var campaigns []*types.Campaign

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixCampaign)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			campaign, err := persistence.UnmarshalCampaign(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal Campaign, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			campaigns = append(campaigns, campaign)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Campaigns: %w", err)
	}

	// Keys iterate in id order already; sort defensively anyway.
	sort.Slice(campaigns, func(i, j int) bool {
		return campaigns[i].ID < campaigns[j].ID
	})

	return campaigns, nil
}

// DeleteCampaign removes a campaign record and all of its claim flags.
func (b *BadgerStore) DeleteCampaign(id types.CampaignID) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(campaignKey(id)); err != nil {
			return err
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = claimPrefix(id)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveClaim sets the (campaign, identity) claim flag.
func (b *BadgerStore) SaveClaim(campaignID types.CampaignID, identity types.Identity) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(claimKey(campaignID, identity), []byte{1})
	})
}

// DeleteClaim unsets the claim flag.
func (b *BadgerStore) DeleteClaim(campaignID types.CampaignID, identity types.Identity) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(claimKey(campaignID, identity))
	})
}

// HasClaim reports whether the claim flag is set.
func (b *BadgerStore) HasClaim(campaignID types.CampaignID, identity types.Identity) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, fmt.Errorf("store is closed")
	}

	data, err := b.get(claimKey(campaignID, identity))
	if err != nil {
		return false, fmt.Errorf("failed to read claim flag: %w", err)
	}
	return data != nil, nil
}

// ListClaims returns the identities that claimed in the campaign.
func (b *BadgerStore) ListClaims(campaignID types.CampaignID) ([]types.Identity, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	prefix := claimPrefix(campaignID)
	var identities []types.Identity

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			raw := key[len(prefix):]
			if len(raw) != 20 {
				b.logger.Sugar().Warnw("Malformed claim key, skipping", "key", string(key))
				continue
			}
			var identity types.Identity
			copy(identity[:], raw)
			identities = append(identities, identity)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	return identities, nil
}

// SaveCredential persists a credential record.
func (b *BadgerStore) SaveCredential(credential *types.Credential) error {
	if credential == nil {
		return fmt.Errorf("cannot save nil Credential")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := persistence.MarshalCredential(credential)
	if err != nil {
		return fmt.Errorf("failed to marshal Credential: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(credentialKey(credential.ID), data)
	})
}

// LoadCredential retrieves a credential by id, nil if absent.
func (b *BadgerStore) LoadCredential(id types.CredentialID) (*types.Credential, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	data, err := b.get(credentialKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load Credential: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return persistence.UnmarshalCredential(data)
}

// ListCredentials returns all credentials sorted by id.
func (b *BadgerStore) ListCredentials() ([]*types.Credential, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	var credentials []*types.Credential

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixCredential)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			credential, err := persistence.UnmarshalCredential(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal Credential, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			credentials = append(credentials, credential)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list Credentials: %w", err)
	}

	sort.Slice(credentials, func(i, j int) bool {
		return credentials[i].ID < credentials[j].ID
	})

	return credentials, nil
}

// DeleteCredential removes a credential record. Idempotent.
func (b *BadgerStore) DeleteCredential(id types.CredentialID) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(credentialKey(id))
	})
}

// SaveServiceState persists counters and switches.
func (b *BadgerStore) SaveServiceState(state *persistence.ServiceState) error {
	if state == nil {
		return fmt.Errorf("cannot save nil ServiceState")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	data, err := persistence.MarshalServiceState(state)
	if err != nil {
		return fmt.Errorf("failed to marshal ServiceState: %w", err)
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyServiceState), data)
	})
}

// LoadServiceState retrieves service state, nil on first run.
func (b *BadgerStore) LoadServiceState() (*persistence.ServiceState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("store is closed")
	}

	data, err := b.get([]byte(keyServiceState))
	if err != nil {
		return nil, fmt.Errorf("failed to load ServiceState: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	return persistence.UnmarshalServiceState(data)
}

// get reads a single key, returning nil bytes when the key is absent.
func (b *BadgerStore) get(key []byte) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close stops the GC goroutine and closes the database. Idempotent.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	return nil
}

// HealthCheck verifies the database accepts reads.
func (b *BadgerStore) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("store is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version missing")
		}
		return err
	})
}
