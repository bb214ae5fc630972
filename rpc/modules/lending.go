package modules

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"lendledger/native/lending"
	"lendledger/observability"
)

// LendingModule bridges the JSON-RPC surface and the lending engine. It owns
// the custodian identity used when forwarding position mutations; share
// token bookkeeping happens inside the engine's operation lock.
type LendingModule struct {
	engine    *lending.Engine
	custodian common.Address
	admin     common.Address
}

// NewLendingModule constructs the RPC helper module. The custodian address is
// the identity every position mutation is submitted under; admin is forwarded
// for configuration calls.
func NewLendingModule(engine *lending.Engine, custodian, admin common.Address) *LendingModule {
	return &LendingModule{engine: engine, custodian: custodian, admin: admin}
}

var errLendingOffline = &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "lending module not initialised"}

// moduleError maps engine sentinels onto RPC module errors. Validation
// failures surface as invalid params; business rejections keep their own code
// so clients can distinguish them from malformed requests.
func moduleError(err error) *ModuleError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidAddress),
		errors.Is(err, lending.ErrUnsupportedAsset):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
	case errors.Is(err, lending.ErrInsufficientLiquidity),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrNoOutstandingDebt),
		errors.Is(err, lending.ErrLiquidationFailed),
		errors.Is(err, lending.ErrOnlyAuthorizedCaller):
		return &ModuleError{HTTPStatus: http.StatusConflict, Code: codeLendingReject, Message: err.Error()}
	default:
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
}

// Supply deposits amount of asset for user and mints matching share tokens.
func (m *LendingModule) Supply(user, asset common.Address, amount *big.Int) *ModuleError {
	if m == nil || m.engine == nil {
		return errLendingOffline
	}
	err := m.engine.Supply(m.custodian, user, asset, amount)
	observability.Engine().RecordOperation("supply", err)
	return moduleError(err)
}

// Withdraw releases supplied principal and burns the matching share tokens.
// The amount actually released is returned.
func (m *LendingModule) Withdraw(user, asset common.Address, amount *big.Int) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	released, err := m.engine.Withdraw(m.custodian, user, asset, amount)
	observability.Engine().RecordOperation("withdraw", err)
	if err != nil {
		return nil, moduleError(err)
	}
	return released, nil
}

// Borrow draws amount of asset against the user's collateral.
func (m *LendingModule) Borrow(user, asset common.Address, amount *big.Int) *ModuleError {
	if m == nil || m.engine == nil {
		return errLendingOffline
	}
	err := m.engine.Borrow(m.custodian, user, asset, amount)
	observability.Engine().RecordOperation("borrow", err)
	return moduleError(err)
}

// Repay pays down the user's debt and returns the amount actually charged.
func (m *LendingModule) Repay(user, asset common.Address, amount *big.Int) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	paid, err := m.engine.Repay(m.custodian, user, asset, amount)
	observability.Engine().RecordOperation("repay", err)
	if err != nil {
		return nil, moduleError(err)
	}
	return paid, nil
}

// Liquidate covers part of borrower's debt in exchange for collateral.
func (m *LendingModule) Liquidate(liquidator, borrower, debtAsset, collateralAsset common.Address, debtToCover *big.Int) (*big.Int, *big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, nil, errLendingOffline
	}
	repaid, seized, err := m.engine.Liquidate(liquidator, borrower, debtAsset, collateralAsset, debtToCover)
	observability.Engine().RecordOperation("liquidate", err)
	if err != nil {
		return nil, nil, moduleError(err)
	}
	observability.Engine().RecordLiquidation()
	return repaid, seized, nil
}

// ConfigureAsset upserts risk parameters for an asset.
func (m *LendingModule) ConfigureAsset(cfg lending.AssetConfig) *ModuleError {
	if m == nil || m.engine == nil {
		return errLendingOffline
	}
	return moduleError(m.engine.ConfigureAsset(m.admin, cfg))
}

// SetInterestRateParams replaces the asset's rate curve.
func (m *LendingModule) SetInterestRateParams(asset common.Address, params lending.InterestRateParams) *ModuleError {
	if m == nil || m.engine == nil {
		return errLendingOffline
	}
	return moduleError(m.engine.SetInterestRateParams(m.admin, asset, params))
}

// WithdrawReserves pays accumulated pool interest out to a recipient.
func (m *LendingModule) WithdrawReserves(asset, recipient common.Address, amount *big.Int) *ModuleError {
	if m == nil || m.engine == nil {
		return errLendingOffline
	}
	return moduleError(m.engine.WithdrawReserves(m.admin, asset, recipient, amount))
}

// HealthFactor reports the user's current health factor scaled by 1e18.
func (m *LendingModule) HealthFactor(user common.Address) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	hf, err := m.engine.GetHealthFactor(user)
	if err != nil {
		return nil, moduleError(err)
	}
	return hf, nil
}

// ProjectedHealthFactor reports the health factor after a hypothetical
// additional borrow.
func (m *LendingModule) ProjectedHealthFactor(user, asset common.Address, additionalBorrow *big.Int) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	hf, err := m.engine.GetProjectedHealthFactor(user, asset, additionalBorrow)
	if err != nil {
		return nil, moduleError(err)
	}
	return hf, nil
}

// UserSupply reports the user's custodian-derived supplied balance.
func (m *LendingModule) UserSupply(user, asset common.Address) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	supply, err := m.engine.GetUserSupply(user, asset)
	if err != nil {
		return nil, moduleError(err)
	}
	return supply, nil
}

// UserDebt reports the user's debt including pending interest.
func (m *LendingModule) UserDebt(user, asset common.Address) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	debt, err := m.engine.GetUserDebt(user, asset)
	if err != nil {
		return nil, moduleError(err)
	}
	return debt, nil
}

// InterestRates reports the asset's current borrow and supply rates in basis
// points.
func (m *LendingModule) InterestRates(asset common.Address) (uint64, uint64, *ModuleError) {
	if m == nil || m.engine == nil {
		return 0, 0, errLendingOffline
	}
	borrowRate, supplyRate, err := m.engine.CalculateInterestRate(asset)
	if err != nil {
		return 0, 0, moduleError(err)
	}
	return borrowRate, supplyRate, nil
}

// AvailableLiquidity reports the principal still available in the pool.
func (m *LendingModule) AvailableLiquidity(asset common.Address) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	available, err := m.engine.GetAvailableLiquidity(asset)
	if err != nil {
		return nil, moduleError(err)
	}
	return available, nil
}

// GeneratedInterest reports pool interest earned and not yet withdrawn.
func (m *LendingModule) GeneratedInterest(asset common.Address) (*big.Int, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	interest, err := m.engine.GetGeneratedInterest(asset)
	if err != nil {
		return nil, moduleError(err)
	}
	return interest, nil
}

// Pool returns a copy of the asset's pool aggregates.
func (m *LendingModule) Pool(asset common.Address) (*lending.PoolState, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	pool, err := m.engine.GetPool(asset)
	if err != nil {
		return nil, moduleError(err)
	}
	return pool, nil
}

// Assets returns every configured asset with its parameters, in listing
// order.
func (m *LendingModule) Assets() ([]*lending.AssetConfig, *ModuleError) {
	if m == nil || m.engine == nil {
		return nil, errLendingOffline
	}
	listed, err := m.engine.SupportedAssets()
	if err != nil {
		return nil, moduleError(err)
	}
	configs := make([]*lending.AssetConfig, 0, len(listed))
	for _, asset := range listed {
		cfg, err := m.engine.GetAssetConfig(asset)
		if err != nil {
			return nil, moduleError(err)
		}
		if cfg != nil {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}
