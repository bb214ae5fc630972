package lending

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// engineState is the persistence surface the engine operates against. Writes
// are buffered by the implementation and land atomically on Commit; Discard
// drops everything buffered since the last commit.
type engineState interface {
	GetAssetConfig(asset common.Address) (*AssetConfig, error)
	PutAssetConfig(cfg *AssetConfig) error
	GetRateParams(asset common.Address) (*InterestRateParams, error)
	PutRateParams(asset common.Address, params *InterestRateParams) error
	GetPool(asset common.Address) (*PoolState, error)
	PutPool(pool *PoolState) error
	GetPosition(user, asset common.Address) (*UserPosition, error)
	PutPosition(pos *UserPosition) error
	DeletePosition(user, asset common.Address) error
	AssetList() ([]common.Address, error)
	PutAssetList(assets []common.Address) error
	UserAssets(user common.Address) ([]common.Address, error)
	PutUserAssets(user common.Address, assets []common.Address) error
	Commit() error
	Discard()
}

// Engine is the collateralized lending ledger. Every externally triggered
// operation runs to completion under a single mutex, so no operation ever
// observes intermediate state and the submission order totally orders all
// mutations.
type Engine struct {
	mu    sync.Mutex
	state engineState

	admin         common.Address
	custodianAddr common.Address
	custodian     BalanceCustodian
	tokens        TokenTransfer
	oracle        PriceSource
	legacyOracle  LegacyPriceSource

	now func() uint64
}

// NewEngine constructs a lending engine wired to the given persistence layer.
func NewEngine(state engineState) *Engine {
	return &Engine{
		state: state,
		now:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetAdmin configures the administrative identity allowed to manage asset
// configuration and reserves.
func (e *Engine) SetAdmin(addr common.Address) {
	if e == nil {
		return
	}
	e.admin = addr
}

// SetCustodian wires the balance custodian and records its identity as the
// only caller authorised to mutate user positions.
func (e *Engine) SetCustodian(addr common.Address, custodian BalanceCustodian) {
	if e == nil {
		return
	}
	e.custodianAddr = addr
	e.custodian = custodian
}

// SetTokenTransfer wires the underlying token mover.
func (e *Engine) SetTokenTransfer(tokens TokenTransfer) {
	if e == nil {
		return
	}
	e.tokens = tokens
}

// SetPriceOracle wires the advanced price source.
func (e *Engine) SetPriceOracle(oracle PriceSource) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetLegacyPriceOracle wires the single-price fallback feed.
func (e *Engine) SetLegacyPriceOracle(oracle LegacyPriceSource) {
	if e == nil {
		return
	}
	e.legacyOracle = oracle
}

// SetClock overrides the engine's time source. Intended for tests and
// deterministic replay.
func (e *Engine) SetClock(now func() uint64) {
	if e == nil || now == nil {
		return
	}
	e.now = now
}

// run executes one atomic operation: op either fully commits or every
// buffered write is discarded.
func (e *Engine) run(op func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := op(); err != nil {
		e.state.Discard()
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.Discard()
		return err
	}
	return nil
}

func (e *Engine) requireCustodian(caller common.Address) error {
	if caller != e.custodianAddr || caller == (common.Address{}) {
		return ErrOnlyAuthorizedCaller
	}
	return nil
}

func (e *Engine) requireAdmin(caller common.Address) error {
	if caller != e.admin || caller == (common.Address{}) {
		return ErrOnlyAuthorizedCaller
	}
	return nil
}

// loadEnabledAsset fetches the configuration of an asset that must be
// configured and enabled.
func (e *Engine) loadEnabledAsset(asset common.Address) (*AssetConfig, error) {
	cfg, err := e.state.GetAssetConfig(asset)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Enabled {
		return nil, ErrUnsupportedAsset
	}
	return cfg, nil
}

// loadConfiguredAsset fetches the configuration of an asset that must exist
// but may be disabled (withdraw and repay stay open on disabled assets).
func (e *Engine) loadConfiguredAsset(asset common.Address) (*AssetConfig, error) {
	cfg, err := e.state.GetAssetConfig(asset)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrUnsupportedAsset
	}
	return cfg, nil
}

func (e *Engine) loadPool(asset common.Address) (*PoolState, error) {
	pool, err := e.state.GetPool(asset)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &PoolState{Asset: asset}
	}
	if pool.TotalLiquidity == nil {
		pool.TotalLiquidity = big.NewInt(0)
	}
	if pool.TotalBorrowed == nil {
		pool.TotalBorrowed = big.NewInt(0)
	}
	if pool.TotalAccumulatedInterest == nil {
		pool.TotalAccumulatedInterest = big.NewInt(0)
	}
	return pool, nil
}

func (e *Engine) loadRateParams(asset common.Address) (InterestRateParams, error) {
	params, err := e.state.GetRateParams(asset)
	if err != nil {
		return InterestRateParams{}, err
	}
	if params == nil {
		return InterestRateParams{}, nil
	}
	return *params, nil
}

func (e *Engine) loadPosition(user, asset common.Address) (*UserPosition, error) {
	pos, err := e.state.GetPosition(user, asset)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &UserPosition{User: user, Asset: asset}
	}
	if pos.Borrowed == nil {
		pos.Borrowed = big.NewInt(0)
	}
	return pos, nil
}

// accruePool loads the pool and rate parameters for an asset and advances the
// accrual tick. Every mutating entry point calls this first.
func (e *Engine) accruePool(asset common.Address) (*PoolState, InterestRateParams, error) {
	pool, err := e.loadPool(asset)
	if err != nil {
		return nil, InterestRateParams{}, err
	}
	params, err := e.loadRateParams(asset)
	if err != nil {
		return nil, InterestRateParams{}, err
	}
	accrue(pool, params, e.now())
	return pool, params, nil
}

// trackUserAsset adds the asset to the user's membership index on the first
// position-creating action.
func (e *Engine) trackUserAsset(user, asset common.Address) error {
	assets, err := e.state.UserAssets(user)
	if err != nil {
		return err
	}
	for _, tracked := range assets {
		if tracked == asset {
			return nil
		}
	}
	return e.state.PutUserAssets(user, append(assets, asset))
}

// pruneUserAsset drops the asset from the membership index and deletes the
// stored position when both the supplied and borrowed balances reach zero.
// remainingSupply is the custodian-derived supply after the current action.
func (e *Engine) pruneUserAsset(user, asset common.Address, remainingSupply *big.Int, pos *UserPosition) error {
	if remainingSupply != nil && remainingSupply.Sign() > 0 {
		return nil
	}
	if pos != nil && pos.Borrowed != nil && pos.Borrowed.Sign() > 0 {
		return nil
	}
	assets, err := e.state.UserAssets(user)
	if err != nil {
		return err
	}
	filtered := assets[:0]
	for _, tracked := range assets {
		if tracked != asset {
			filtered = append(filtered, tracked)
		}
	}
	if len(filtered) != len(assets) {
		if err := e.state.PutUserAssets(user, filtered); err != nil {
			return err
		}
	}
	return e.state.DeletePosition(user, asset)
}

// riskAssets returns the asset set to iterate for a user's risk computation:
// the membership index when populated, otherwise the full supported-asset
// list as the legacy fallback for never-migrated users. Both paths must
// produce identical results.
func (e *Engine) riskAssets(user common.Address) ([]common.Address, error) {
	assets, err := e.state.UserAssets(user)
	if err != nil {
		return nil, err
	}
	if len(assets) > 0 {
		return assets, nil
	}
	return e.state.AssetList()
}

// Supply records a deposit of amount into the asset pool on behalf of user.
// Only the custodian may call. Share tokens are minted through the custodian
// inside the operation lock, so ownership and pool liquidity never diverge.
func (e *Engine) Supply(caller, user, asset common.Address, amount *big.Int) error {
	return e.run(func() error {
		if err := e.requireCustodian(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if _, err := e.loadEnabledAsset(asset); err != nil {
			return err
		}

		pool, _, err := e.accruePool(asset)
		if err != nil {
			return err
		}

		if e.tokens != nil {
			if err := e.tokens.TransferFrom(asset, user, amount); err != nil {
				return err
			}
		}
		if e.custodian != nil {
			if err := e.custodian.MintShares(user, asset, amount); err != nil {
				return err
			}
		}

		pos, err := e.loadPosition(user, asset)
		if err != nil {
			return err
		}
		pos.LastYieldUpdate = e.now()

		pool.TotalLiquidity = new(big.Int).Add(pool.TotalLiquidity, amount)

		if err := e.trackUserAsset(user, asset); err != nil {
			return err
		}
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		return e.state.PutPool(pool)
	})
}

// Withdraw releases supplied principal back to the user. The requested
// amount is capped at the pool's available liquidity; the actual amount
// released is returned. When the user carries debt the projected post
// withdrawal health factor must stay at or above 1.0.
func (e *Engine) Withdraw(caller, user, asset common.Address, amount *big.Int) (*big.Int, error) {
	var withdrawn *big.Int
	err := e.run(func() error {
		if err := e.requireCustodian(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if _, err := e.loadConfiguredAsset(asset); err != nil {
			return err
		}

		pool, _, err := e.accruePool(asset)
		if err != nil {
			return err
		}

		release := new(big.Int).Set(amount)
		if available := pool.AvailableLiquidity(); release.Cmp(available) > 0 {
			release.Set(available)
		}
		if release.Sign() == 0 {
			return ErrInsufficientLiquidity
		}

		supply, err := e.userSupply(user, asset)
		if err != nil {
			return err
		}
		if supply.Cmp(release) < 0 {
			return ErrInsufficientLiquidity
		}

		hasDebt, err := e.userHasDebt(user)
		if err != nil {
			return err
		}
		if hasDebt {
			projected, err := e.healthFactorWith(user, positionDelta{
				Asset:           asset,
				SupplyReduction: release,
			})
			if err != nil {
				return err
			}
			if projected.Cmp(precision) < 0 {
				return ErrInsufficientCollateral
			}
		}

		pos, err := e.loadPosition(user, asset)
		if err != nil {
			return err
		}
		pos.LastYieldUpdate = e.now()

		// Burn before the outbound transfer: a failed burn aborts the
		// operation with no funds moved, and holding the operation lock
		// until the burn lands closes the window where a second withdraw
		// could read the stale share balance.
		if e.custodian != nil {
			if err := e.custodian.BurnShares(user, asset, release); err != nil {
				return err
			}
		}

		pool.TotalLiquidity = new(big.Int).Sub(pool.TotalLiquidity, release)

		if e.tokens != nil {
			if err := e.tokens.Transfer(asset, user, release); err != nil {
				return err
			}
		}

		remaining := new(big.Int).Sub(supply, release)
		if remaining.Sign() <= 0 && pos.Borrowed.Sign() == 0 {
			if err := e.pruneUserAsset(user, asset, remaining, pos); err != nil {
				return err
			}
		} else if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		withdrawn = release
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// Borrow draws amount of the asset against the user's aggregate collateral.
// The hypothetical new debt must keep the health factor at or above 1.0.
func (e *Engine) Borrow(caller, user, asset common.Address, amount *big.Int) error {
	return e.run(func() error {
		if err := e.requireCustodian(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if _, err := e.loadEnabledAsset(asset); err != nil {
			return err
		}

		pool, _, err := e.accruePool(asset)
		if err != nil {
			return err
		}
		if pool.AvailableLiquidity().Cmp(amount) < 0 {
			return ErrInsufficientLiquidity
		}

		projected, err := e.healthFactorWith(user, positionDelta{
			Asset:     asset,
			AddedDebt: amount,
		})
		if err != nil {
			return err
		}
		if projected.Cmp(precision) < 0 {
			return ErrInsufficientCollateral
		}

		pos, err := e.loadPosition(user, asset)
		if err != nil {
			return err
		}
		pos.Borrowed = new(big.Int).Add(pos.Borrowed, amount)
		pos.LastYieldUpdate = e.now()

		pool.TotalBorrowed = new(big.Int).Add(pool.TotalBorrowed, amount)

		if e.tokens != nil {
			if err := e.tokens.Transfer(asset, user, amount); err != nil {
				return err
			}
		}

		if err := e.trackUserAsset(user, asset); err != nil {
			return err
		}
		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		return e.state.PutPool(pool)
	})
}

// Repay pays down the user's debt. Payment applies to pending interest
// first; only the principal portion reduces the stored principal and the
// pool's borrowed total. Interest paid flows to the pool through the accrual
// counter, never through per-user bookkeeping. The amount actually charged
// is returned.
func (e *Engine) Repay(caller, user, asset common.Address, amount *big.Int) (*big.Int, error) {
	var paid *big.Int
	err := e.run(func() error {
		if err := e.requireCustodian(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if _, err := e.loadConfiguredAsset(asset); err != nil {
			return err
		}

		pool, params, err := e.accruePool(asset)
		if err != nil {
			return err
		}

		pos, err := e.loadPosition(user, asset)
		if err != nil {
			return err
		}
		now := e.now()
		debt := accruedDebt(pos, pool, params, now)
		if debt.Sign() == 0 {
			return ErrNoOutstandingDebt
		}
		interest := new(big.Int).Sub(debt, pos.Borrowed)

		payment := new(big.Int).Set(amount)
		if payment.Cmp(debt) > 0 {
			payment.Set(debt)
		}

		principalPortion := new(big.Int).Sub(payment, interest)
		if principalPortion.Sign() < 0 {
			principalPortion.SetInt64(0)
		}

		if e.tokens != nil {
			if err := e.tokens.TransferFrom(asset, user, payment); err != nil {
				return err
			}
		}

		pos.Borrowed = new(big.Int).Sub(pos.Borrowed, principalPortion)
		pos.LastYieldUpdate = now

		pool.TotalBorrowed = new(big.Int).Sub(pool.TotalBorrowed, principalPortion)
		if pool.TotalBorrowed.Sign() < 0 {
			pool.TotalBorrowed.SetInt64(0)
		}

		supply, err := e.userSupply(user, asset)
		if err != nil {
			return err
		}
		if pos.Borrowed.Sign() == 0 && supply.Sign() == 0 {
			if err := e.pruneUserAsset(user, asset, supply, pos); err != nil {
				return err
			}
		} else if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		if err := e.state.PutPool(pool); err != nil {
			return err
		}
		paid = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// userHasDebt reports whether the user owes anything across their tracked
// assets (or the full registry on the legacy path).
func (e *Engine) userHasDebt(user common.Address) (bool, error) {
	assets, err := e.riskAssets(user)
	if err != nil {
		return false, err
	}
	for _, asset := range assets {
		pos, err := e.state.GetPosition(user, asset)
		if err != nil {
			return false, err
		}
		if pos != nil && pos.Borrowed != nil && pos.Borrowed.Sign() > 0 {
			return true, nil
		}
	}
	return false, nil
}
