package lending

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	native "lendledger/native/lending"
	"lendledger/storage"
)

// Key namespace for every record the lending module owns. Bumping the
// version segment retires the whole keyspace at once.
const keyPrefix = "lending/v1/"

func assetConfigKey(asset common.Address) []byte {
	return []byte(keyPrefix + "asset/" + asset.Hex())
}

func rateParamsKey(asset common.Address) []byte {
	return []byte(keyPrefix + "rates/" + asset.Hex())
}

func poolKey(asset common.Address) []byte {
	return []byte(keyPrefix + "pool/" + asset.Hex())
}

func positionKey(user, asset common.Address) []byte {
	return []byte(keyPrefix + "position/" + user.Hex() + "/" + asset.Hex())
}

func userAssetsKey(user common.Address) []byte {
	return []byte(keyPrefix + "user-assets/" + user.Hex())
}

var assetListKey = []byte(keyPrefix + "assets")

var moduleRolesKey = []byte(keyPrefix + "roles")

// ModuleRoles records the privileged identities the engine was configured
// with, so a restarted daemon can detect configuration drift.
type ModuleRoles struct {
	Admin     common.Address
	Custodian common.Address
}

// Store persists lending records on a key-value database. Writes are
// buffered per session: nothing reaches the database until Commit, and
// Discard drops the whole buffer. Reads observe buffered writes, so an
// in-flight operation always sees its own effects.
type Store struct {
	mu      sync.Mutex
	db      storage.Database
	pending map[string][]byte
	deleted map[string]bool
}

// NewStore wraps a database in a lending store with an empty write buffer.
func NewStore(db storage.Database) *Store {
	return &Store{
		db:      db,
		pending: make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

func (s *Store) read(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted[string(key)] {
		return nil, nil
	}
	if value, ok := s.pending[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	return s.db.Get(key)
}

func (s *Store) write(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleted, string(key))
	s.pending[string(key)] = append([]byte(nil), value...)
}

func (s *Store) remove(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, string(key))
	s.deleted[string(key)] = true
}

// GetRaw reads an arbitrary key through the session buffer. Other modules
// (the bank ledger) write under their own key prefix but share the store's
// commit and discard semantics with the lending records.
func (s *Store) GetRaw(key []byte) ([]byte, error) {
	return s.read(key)
}

// PutRaw buffers an arbitrary key write that lands on the next Commit.
func (s *Store) PutRaw(key, value []byte) error {
	s.write(key, value)
	return nil
}

func (s *Store) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := s.read(key)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("lending store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) putJSON(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("lending store: encode %s: %w", key, err)
	}
	s.write(key, raw)
	return nil
}

// Commit flushes every buffered write and delete to the database in one
// atomic batch.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 && len(s.deleted) == 0 {
		return nil
	}
	batch := new(storage.Batch)
	for key, value := range s.pending {
		batch.Put([]byte(key), value)
	}
	for key := range s.deleted {
		batch.Delete([]byte(key))
	}
	if err := s.db.Write(batch); err != nil {
		return err
	}
	s.pending = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	return nil
}

// Discard drops every buffered write since the last commit.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string][]byte)
	s.deleted = make(map[string]bool)
}

func (s *Store) GetAssetConfig(asset common.Address) (*native.AssetConfig, error) {
	cfg := new(native.AssetConfig)
	ok, err := s.getJSON(assetConfigKey(asset), cfg)
	if err != nil || !ok {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) PutAssetConfig(cfg *native.AssetConfig) error {
	if cfg == nil {
		return fmt.Errorf("lending store: nil asset config")
	}
	return s.putJSON(assetConfigKey(cfg.Asset), cfg)
}

func (s *Store) GetRateParams(asset common.Address) (*native.InterestRateParams, error) {
	params := new(native.InterestRateParams)
	ok, err := s.getJSON(rateParamsKey(asset), params)
	if err != nil || !ok {
		return nil, err
	}
	return params, nil
}

func (s *Store) PutRateParams(asset common.Address, params *native.InterestRateParams) error {
	if params == nil {
		return fmt.Errorf("lending store: nil rate params")
	}
	return s.putJSON(rateParamsKey(asset), params)
}

func (s *Store) GetPool(asset common.Address) (*native.PoolState, error) {
	pool := new(native.PoolState)
	ok, err := s.getJSON(poolKey(asset), pool)
	if err != nil || !ok {
		return nil, err
	}
	return pool, nil
}

func (s *Store) PutPool(pool *native.PoolState) error {
	if pool == nil {
		return fmt.Errorf("lending store: nil pool")
	}
	return s.putJSON(poolKey(pool.Asset), pool)
}

func (s *Store) GetPosition(user, asset common.Address) (*native.UserPosition, error) {
	pos := new(native.UserPosition)
	ok, err := s.getJSON(positionKey(user, asset), pos)
	if err != nil || !ok {
		return nil, err
	}
	return pos, nil
}

func (s *Store) PutPosition(pos *native.UserPosition) error {
	if pos == nil {
		return fmt.Errorf("lending store: nil position")
	}
	return s.putJSON(positionKey(pos.User, pos.Asset), pos)
}

func (s *Store) DeletePosition(user, asset common.Address) error {
	s.remove(positionKey(user, asset))
	return nil
}

func (s *Store) AssetList() ([]common.Address, error) {
	var assets []common.Address
	if _, err := s.getJSON(assetListKey, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *Store) PutAssetList(assets []common.Address) error {
	return s.putJSON(assetListKey, assets)
}

func (s *Store) UserAssets(user common.Address) ([]common.Address, error) {
	var assets []common.Address
	if _, err := s.getJSON(userAssetsKey(user), &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (s *Store) PutUserAssets(user common.Address, assets []common.Address) error {
	if len(assets) == 0 {
		s.remove(userAssetsKey(user))
		return nil
	}
	return s.putJSON(userAssetsKey(user), assets)
}

// Roles returns the stored privileged identities, or nil when the store has
// never been initialised.
func (s *Store) Roles() (*ModuleRoles, error) {
	roles := new(ModuleRoles)
	ok, err := s.getJSON(moduleRolesKey, roles)
	if err != nil || !ok {
		return nil, err
	}
	return roles, nil
}

// PutRoles records the privileged identities. The write is buffered like any
// other and lands on the next Commit.
func (s *Store) PutRoles(roles ModuleRoles) error {
	return s.putJSON(moduleRolesKey, &roles)
}
