package lending

import "errors"

var (
	// ErrInvalidAmount rejects zero or negative quantities.
	ErrInvalidAmount = errors.New("lending engine: amount must be positive")
	// ErrUnsupportedAsset rejects assets that are not configured or enabled.
	ErrUnsupportedAsset = errors.New("lending engine: asset not supported")
	// ErrInsufficientLiquidity signals the pool cannot cover the requested
	// withdrawal or borrow.
	ErrInsufficientLiquidity = errors.New("lending engine: insufficient liquidity")
	// ErrInsufficientCollateral signals a health factor below 1, or a
	// liquidation attempt against a healthy position.
	ErrInsufficientCollateral = errors.New("lending engine: insufficient collateral")
	// ErrInvalidAddress rejects the zero address where an identity is required.
	ErrInvalidAddress = errors.New("lending engine: invalid address")
	// ErrOnlyAuthorizedCaller rejects gated mutations from anyone other than
	// the configured custodian or administrator.
	ErrOnlyAuthorizedCaller = errors.New("lending engine: caller not authorized")
	// ErrNoOutstandingDebt signals a repay or liquidation against a position
	// with nothing owed.
	ErrNoOutstandingDebt = errors.New("lending engine: no outstanding debt")
	// ErrLiquidationFailed wraps settlement failures raised while seizing
	// collateral.
	ErrLiquidationFailed = errors.New("lending engine: liquidation failed")

	errNilState = errors.New("lending engine: state not configured")
)
