package lending

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
)

// InfiniteHealthFactor is the sentinel reported for positions with no debt.
var InfiniteHealthFactor = new(big.Int).Set(ethmath.MaxBig256)

// positionDelta expresses a hypothetical adjustment applied while projecting
// a health factor: a supply reduction (withdraw) or additional debt (borrow),
// both in native units of the delta's asset.
type positionDelta struct {
	Asset           common.Address
	SupplyReduction *big.Int
	AddedDebt       *big.Int
}

// healthFactorWith aggregates the user's collateral and debt values across
// the assets they hold, applies the optional hypothetical delta, and returns
// the risk-weighted ratio scaled by 1e18. The whole collateral stack is
// weighted by the worst (minimum) liquidation threshold among assets actually
// supplied.
func (e *Engine) healthFactorWith(user common.Address, delta positionDelta) (*big.Int, error) {
	assets, err := e.riskAssets(user)
	if err != nil {
		return nil, err
	}
	deltaSeen := false
	for _, asset := range assets {
		if asset == delta.Asset {
			deltaSeen = true
			break
		}
	}
	if !deltaSeen && delta.Asset != (common.Address{}) {
		assets = append(assets, delta.Asset)
	}

	now := e.now()
	collateralValue := big.NewInt(0)
	debtValue := big.NewInt(0)
	minThreshold := uint64(bpsDenominator)
	thresholdSet := false

	for _, asset := range assets {
		cfg, err := e.state.GetAssetConfig(asset)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			continue
		}

		supply, err := e.userSupply(user, asset)
		if err != nil {
			return nil, err
		}
		if asset == delta.Asset && delta.SupplyReduction != nil {
			supply = new(big.Int).Sub(supply, delta.SupplyReduction)
			if supply.Sign() < 0 {
				supply.SetInt64(0)
			}
		}
		if supply.Sign() > 0 {
			price, err := e.collateralPrice(asset)
			if err != nil {
				return nil, err
			}
			collateralValue.Add(collateralValue, valueOf(supply, price, cfg.Decimals))
			if !thresholdSet || cfg.LiquidationThreshold < minThreshold {
				minThreshold = cfg.LiquidationThreshold
				thresholdSet = true
			}
		}

		pos, err := e.state.GetPosition(user, asset)
		if err != nil {
			return nil, err
		}
		debt := big.NewInt(0)
		if pos != nil && pos.Borrowed != nil && pos.Borrowed.Sign() > 0 {
			pool, err := e.loadPool(asset)
			if err != nil {
				return nil, err
			}
			params, err := e.loadRateParams(asset)
			if err != nil {
				return nil, err
			}
			debt = accruedDebt(pos, pool, params, now)
		}
		if asset == delta.Asset && delta.AddedDebt != nil {
			debt = new(big.Int).Add(debt, delta.AddedDebt)
		}
		if debt.Sign() > 0 {
			price, err := e.borrowPrice(asset)
			if err != nil {
				return nil, err
			}
			debtValue.Add(debtValue, valueOf(debt, price, cfg.Decimals))
		}
	}

	if debtValue.Sign() == 0 {
		return new(big.Int).Set(InfiniteHealthFactor), nil
	}

	weighted := mulDiv(collateralValue, new(big.Int).SetUint64(minThreshold), basisPoints)
	return mulDiv(weighted, precision, debtValue), nil
}

// healthFactor computes the user's current health factor with no
// hypothetical adjustment.
func (e *Engine) healthFactor(user common.Address) (*big.Int, error) {
	return e.healthFactorWith(user, positionDelta{})
}
