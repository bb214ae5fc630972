package lending

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	native "lendledger/native/lending"
	"lendledger/state/bank"
	"lendledger/storage"
)

var (
	storeAsset = common.HexToAddress("0x0000000000000000000000000000000000002001")
	storeUser  = common.HexToAddress("0x0000000000000000000000000000000000002002")
)

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	cfg := &native.AssetConfig{
		Asset:                storeAsset,
		CollateralFactor:     7_500,
		LiquidationThreshold: 8_000,
		LiquidationBonus:     500,
		ReserveFactor:        1_000,
		Decimals:             6,
		Enabled:              true,
	}
	if err := store.PutAssetConfig(cfg); err != nil {
		t.Fatalf("put config: %v", err)
	}
	params := &native.InterestRateParams{BaseRate: 100, OptimalUtilization: 9_000, RateSlope1: 400, RateSlope2: 6_000}
	if err := store.PutRateParams(storeAsset, params); err != nil {
		t.Fatalf("put params: %v", err)
	}
	pool := &native.PoolState{
		Asset:                    storeAsset,
		TotalLiquidity:           big.NewInt(1_000_000),
		TotalBorrowed:            big.NewInt(250_000),
		TotalAccumulatedInterest: big.NewInt(42),
		LastInterestUpdate:       1_700_000_000,
	}
	if err := store.PutPool(pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	pos := &native.UserPosition{
		User:            storeUser,
		Asset:           storeAsset,
		Borrowed:        big.NewInt(99_999),
		LastYieldUpdate: 1_700_000_123,
	}
	if err := store.PutPosition(pos); err != nil {
		t.Fatalf("put position: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	gotCfg, err := store.GetAssetConfig(storeAsset)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if *gotCfg != *cfg {
		t.Fatalf("config mismatch: %+v vs %+v", gotCfg, cfg)
	}
	gotParams, err := store.GetRateParams(storeAsset)
	if err != nil {
		t.Fatalf("get params: %v", err)
	}
	if *gotParams != *params {
		t.Fatalf("params mismatch: %+v vs %+v", gotParams, params)
	}
	gotPool, err := store.GetPool(storeAsset)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if gotPool.TotalLiquidity.Cmp(pool.TotalLiquidity) != 0 ||
		gotPool.TotalBorrowed.Cmp(pool.TotalBorrowed) != 0 ||
		gotPool.TotalAccumulatedInterest.Cmp(pool.TotalAccumulatedInterest) != 0 ||
		gotPool.LastInterestUpdate != pool.LastInterestUpdate {
		t.Fatalf("pool mismatch: %+v vs %+v", gotPool, pool)
	}
	gotPos, err := store.GetPosition(storeUser, storeAsset)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if gotPos.Borrowed.Cmp(pos.Borrowed) != 0 || gotPos.LastYieldUpdate != pos.LastYieldUpdate {
		t.Fatalf("position mismatch: %+v vs %+v", gotPos, pos)
	}
}

func TestStoreMissingRecordsAreNil(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	if cfg, err := store.GetAssetConfig(storeAsset); err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %+v err %v", cfg, err)
	}
	if pool, err := store.GetPool(storeAsset); err != nil || pool != nil {
		t.Fatalf("expected nil pool, got %+v err %v", pool, err)
	}
	if pos, err := store.GetPosition(storeUser, storeAsset); err != nil || pos != nil {
		t.Fatalf("expected nil position, got %+v err %v", pos, err)
	}
	if assets, err := store.AssetList(); err != nil || len(assets) != 0 {
		t.Fatalf("expected empty asset list, got %v err %v", assets, err)
	}
}

func TestStoreBufferedReadsSeeOwnWrites(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)

	if err := store.PutAssetList([]common.Address{storeAsset}); err != nil {
		t.Fatalf("put list: %v", err)
	}
	assets, err := store.AssetList()
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if len(assets) != 1 || assets[0] != storeAsset {
		t.Fatalf("buffered read missed pending write: %v", assets)
	}

	// Nothing reaches the database until commit.
	raw, err := db.Get(assetListKey)
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if raw != nil {
		t.Fatalf("write leaked before commit: %s", raw)
	}
}

func TestStoreDiscardDropsBuffer(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	if err := store.PutAssetList([]common.Address{storeAsset}); err != nil {
		t.Fatalf("put list: %v", err)
	}
	store.Discard()

	assets, err := store.AssetList()
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if len(assets) != 0 {
		t.Fatalf("discard kept writes: %v", assets)
	}
}

func TestStoreDeleteSurvivesCommit(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	pos := &native.UserPosition{User: storeUser, Asset: storeAsset, Borrowed: big.NewInt(1)}
	if err := store.PutPosition(pos); err != nil {
		t.Fatalf("put position: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := store.DeletePosition(storeUser, storeAsset); err != nil {
		t.Fatalf("delete position: %v", err)
	}
	// Buffered delete already masks the stored record.
	if got, err := store.GetPosition(storeUser, storeAsset); err != nil || got != nil {
		t.Fatalf("expected masked position, got %+v err %v", got, err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	if got, err := store.GetPosition(storeUser, storeAsset); err != nil || got != nil {
		t.Fatalf("expected deleted position, got %+v err %v", got, err)
	}
}

func TestStoreEmptyUserIndexRemovesRecord(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)

	if err := store.PutUserAssets(storeUser, []common.Address{storeAsset}); err != nil {
		t.Fatalf("put index: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := store.PutUserAssets(storeUser, nil); err != nil {
		t.Fatalf("clear index: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit clear: %v", err)
	}

	raw, err := db.Get(userAssetsKey(storeUser))
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if raw != nil {
		t.Fatalf("empty index left a record: %s", raw)
	}
}

func TestStoreRolesRoundTrip(t *testing.T) {
	store := NewStore(storage.NewMemDB())

	admin := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	custodian := common.HexToAddress("0x00000000000000000000000000000000000000CC")
	if err := store.PutRoles(ModuleRoles{Admin: admin, Custodian: custodian}); err != nil {
		t.Fatalf("put roles: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	roles, err := store.Roles()
	if err != nil {
		t.Fatalf("get roles: %v", err)
	}
	if roles.Admin != admin || roles.Custodian != custodian {
		t.Fatalf("roles mismatch: %+v", roles)
	}
}

// Supplied funds must stay withdrawable after the daemon restarts: both the
// pool aggregates and the custodian's balance records read back from the
// same database.
func TestStoreRestartKeepsSupplyWithdrawable(t *testing.T) {
	db := storage.NewMemDB()
	admin := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	custodian := common.HexToAddress("0x00000000000000000000000000000000000000CC")
	vault := common.HexToAddress("0x00000000000000000000000000000000000000F1")

	boot := func() (*Store, *bank.Ledger, *native.Engine) {
		store := NewStore(db)
		ledger := bank.NewStoredLedger(vault, store)
		engine := native.NewEngine(store)
		engine.SetAdmin(admin)
		engine.SetCustodian(custodian, ledger)
		engine.SetTokenTransfer(ledger)
		return store, ledger, engine
	}

	store, ledger, engine := boot()
	if err := engine.ConfigureAsset(admin, native.AssetConfig{
		Asset:                storeAsset,
		CollateralFactor:     7_500,
		LiquidationThreshold: 8_500,
		LiquidationBonus:     500,
		ReserveFactor:        1_000,
		Enabled:              true,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := ledger.Credit(storeAsset, storeUser, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit funding: %v", err)
	}
	if err := engine.Supply(custodian, storeUser, storeAsset, big.NewInt(100)); err != nil {
		t.Fatalf("supply: %v", err)
	}

	_, reopenedLedger, reopenedEngine := boot()
	supply, err := reopenedEngine.GetUserSupply(storeUser, storeAsset)
	if err != nil {
		t.Fatalf("user supply after restart: %v", err)
	}
	if supply.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply after restart = %s, want 100", supply)
	}
	pool, err := reopenedEngine.GetPool(storeAsset)
	if err != nil {
		t.Fatalf("pool after restart: %v", err)
	}
	if pool.TotalLiquidity.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pool liquidity after restart = %s, want 100", pool.TotalLiquidity)
	}

	released, err := reopenedEngine.Withdraw(custodian, storeUser, storeAsset, big.NewInt(100))
	if err != nil {
		t.Fatalf("withdraw after restart: %v", err)
	}
	if released.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("released = %s, want 100", released)
	}
	if got := reopenedLedger.Balance(storeAsset, storeUser); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("user balance after withdraw = %s, want 100", got)
	}
}

// The engine drives the store through its session protocol: a failed
// operation must leave nothing behind in the underlying database.
func TestStoreEngineAtomicity(t *testing.T) {
	db := storage.NewMemDB()
	store := NewStore(db)
	engine := native.NewEngine(store)

	admin := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	engine.SetAdmin(admin)

	// Zero asset address fails after the session has started.
	err := engine.ConfigureAsset(admin, native.AssetConfig{Enabled: true})
	if !errors.Is(err, native.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}

	if err := engine.ConfigureAsset(admin, native.AssetConfig{
		Asset:                storeAsset,
		LiquidationThreshold: 8_000,
		Enabled:              true,
	}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	cfg, err := store.GetAssetConfig(storeAsset)
	if err != nil || cfg == nil {
		t.Fatalf("expected persisted config, got %+v err %v", cfg, err)
	}
	assets, err := store.AssetList()
	if err != nil {
		t.Fatalf("asset list: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected one listed asset, got %v", assets)
	}
}
