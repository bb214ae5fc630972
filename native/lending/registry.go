package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ConfigureAsset upserts the risk parameters for an asset. The call is
// idempotent: reconfiguring an existing asset overwrites its parameters
// in place. First-time configuration appends the asset to the global
// supported list and stamps the pool's accrual timestamp so the first tick
// computes a zero time delta.
func (e *Engine) ConfigureAsset(caller common.Address, cfg AssetConfig) error {
	return e.run(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if cfg.Asset == (common.Address{}) {
			return ErrInvalidAddress
		}

		existing, err := e.state.GetAssetConfig(cfg.Asset)
		if err != nil {
			return err
		}
		if err := e.state.PutAssetConfig(cfg.Clone()); err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		assets, err := e.state.AssetList()
		if err != nil {
			return err
		}
		if err := e.state.PutAssetList(append(assets, cfg.Asset)); err != nil {
			return err
		}
		pool, err := e.loadPool(cfg.Asset)
		if err != nil {
			return err
		}
		pool.LastInterestUpdate = e.now()
		return e.state.PutPool(pool)
	})
}

// SetInterestRateParams overwrites the asset's rate curve unconditionally.
// Parameter ranges are not validated here: configuration sits behind an
// administrative trust boundary, and a zero OptimalUtilization deliberately
// re-arms the protocol defaults.
func (e *Engine) SetInterestRateParams(caller, asset common.Address, params InterestRateParams) error {
	return e.run(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if asset == (common.Address{}) {
			return ErrInvalidAddress
		}
		return e.state.PutRateParams(asset, &params)
	})
}

// WithdrawReserves pays accrued pool interest out to a recipient. The
// withdrawal is bounded by both the accumulated interest counter and the
// pool's available liquidity.
func (e *Engine) WithdrawReserves(caller, asset, recipient common.Address, amount *big.Int) error {
	return e.run(func() error {
		if err := e.requireAdmin(caller); err != nil {
			return err
		}
		if recipient == (common.Address{}) {
			return ErrInvalidAddress
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
		if pool.TotalAccumulatedInterest.Cmp(amount) < 0 {
			return ErrInsufficientLiquidity
		}
		// The counter can outgrow the cash on hand while principal is
		// still lent out, so the payout is also capped by what the pool
		// can actually part with.
		if pool.AvailableLiquidity().Cmp(amount) < 0 {
			return ErrInsufficientLiquidity
		}

		pool.TotalAccumulatedInterest = new(big.Int).Sub(pool.TotalAccumulatedInterest, amount)

		if e.tokens != nil {
			if err := e.tokens.Transfer(asset, recipient, amount); err != nil {
				return err
			}
		}
		return e.state.PutPool(pool)
	})
}
