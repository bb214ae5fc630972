package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AssetConfig captures the governance controlled risk parameters for a single
// supported asset. All ratios are expressed in basis points (10000 = 100%).
type AssetConfig struct {
	// Asset is the underlying token address this configuration applies to.
	Asset common.Address
	// CollateralFactor is the maximum loan-to-value permitted when borrowing
	// against this asset.
	CollateralFactor uint64
	// LiquidationThreshold is the ratio at which the asset's collateral value
	// is discounted during health factor computation.
	LiquidationThreshold uint64
	// LiquidationBonus is the extra collateral share paid to liquidators.
	LiquidationBonus uint64
	// ReserveFactor is the share of borrow interest retained by the pool.
	ReserveFactor uint64
	// Decimals is the token precision used when normalising values.
	Decimals uint8
	// Enabled gates new supply and borrow activity. Assets are never removed,
	// only disabled.
	Enabled bool
}

// Clone returns a deep copy of the asset configuration.
func (c *AssetConfig) Clone() *AssetConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// InterestRateParams shape the kinked borrow rate curve for one asset. A zero
// OptimalUtilization marks the whole set as unset; the rate model then
// substitutes protocol defaults so a freshly listed asset always has a valid
// curve.
type InterestRateParams struct {
	BaseRate           uint64
	OptimalUtilization uint64
	RateSlope1         uint64
	RateSlope2         uint64
}

// PoolState aggregates the per-asset accounting shared by every position.
// Amounts are denominated in the asset's smallest unit and kept as big
// integers.
type PoolState struct {
	Asset common.Address
	// TotalLiquidity is the sum of all principal supplied to the pool.
	TotalLiquidity *big.Int
	// TotalBorrowed is the outstanding borrowed principal, excluding interest
	// that has not been settled yet.
	TotalBorrowed *big.Int
	// TotalAccumulatedInterest is interest earned by the pool but not yet
	// withdrawn to reserves.
	TotalAccumulatedInterest *big.Int
	// LastInterestUpdate is the unix timestamp of the last accrual tick. Zero
	// means the pool has never accrued.
	LastInterestUpdate uint64
}

// Clone returns a deep copy of the pool state.
func (p *PoolState) Clone() *PoolState {
	if p == nil {
		return nil
	}
	clone := &PoolState{Asset: p.Asset, LastInterestUpdate: p.LastInterestUpdate}
	if p.TotalLiquidity != nil {
		clone.TotalLiquidity = new(big.Int).Set(p.TotalLiquidity)
	}
	if p.TotalBorrowed != nil {
		clone.TotalBorrowed = new(big.Int).Set(p.TotalBorrowed)
	}
	if p.TotalAccumulatedInterest != nil {
		clone.TotalAccumulatedInterest = new(big.Int).Set(p.TotalAccumulatedInterest)
	}
	return clone
}

// AvailableLiquidity returns the principal that can still leave the pool.
func (p *PoolState) AvailableLiquidity() *big.Int {
	if p == nil || p.TotalLiquidity == nil {
		return big.NewInt(0)
	}
	borrowed := p.TotalBorrowed
	if borrowed == nil {
		borrowed = big.NewInt(0)
	}
	available := new(big.Int).Sub(p.TotalLiquidity, borrowed)
	if available.Sign() < 0 {
		return big.NewInt(0)
	}
	return available
}

// UserPosition is the stored per-user, per-asset ledger entry. Supplied
// balances are not recorded here: ownership of pool shares is custodian
// derived, so only the borrowed principal and the interest marker persist.
type UserPosition struct {
	User  common.Address
	Asset common.Address
	// Borrowed is the outstanding principal. Interest is always a computed
	// view on top of this field, never folded into it.
	Borrowed *big.Int
	// LastYieldUpdate is the unix timestamp of the user's last mutating
	// action against this asset.
	LastYieldUpdate uint64
}

// Clone returns a deep copy of the position.
func (p *UserPosition) Clone() *UserPosition {
	if p == nil {
		return nil
	}
	clone := &UserPosition{User: p.User, Asset: p.Asset, LastYieldUpdate: p.LastYieldUpdate}
	if p.Borrowed != nil {
		clone.Borrowed = new(big.Int).Set(p.Borrowed)
	}
	return clone
}
