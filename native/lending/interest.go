package lending

import "math/big"

// Protocol defaults substituted whenever an asset's rate parameters are unset.
const (
	defaultBaseRateBps           = 200
	defaultOptimalUtilizationBps = 8_000
	defaultRateSlope1Bps         = 1_000
	defaultRateSlope2Bps         = 2_000
)

// DefaultInterestRateParams returns the protocol default kinked curve: 2%
// base, 80% optimal utilization, 10% slope below the kink and 20% above it.
func DefaultInterestRateParams() InterestRateParams {
	return InterestRateParams{
		BaseRate:           defaultBaseRateBps,
		OptimalUtilization: defaultOptimalUtilizationBps,
		RateSlope1:         defaultRateSlope1Bps,
		RateSlope2:         defaultRateSlope2Bps,
	}
}

// withDefaults substitutes the protocol defaults when the parameter set is
// unset. A zero OptimalUtilization is the unset sentinel and doubles as the
// implicit-default mechanism for newly listed assets, so the curve never
// divides by zero.
func (p InterestRateParams) withDefaults() InterestRateParams {
	if p.OptimalUtilization == 0 {
		return DefaultInterestRateParams()
	}
	return p
}

// UtilizationRate returns the borrowed fraction of pool liquidity in basis
// points. An empty pool has zero utilization.
func UtilizationRate(pool *PoolState) uint64 {
	if pool == nil || pool.TotalLiquidity == nil || pool.TotalLiquidity.Sign() == 0 {
		return 0
	}
	if pool.TotalBorrowed == nil || pool.TotalBorrowed.Sign() == 0 {
		return 0
	}
	utilization := new(big.Int).Mul(pool.TotalBorrowed, basisPoints)
	utilization.Quo(utilization, pool.TotalLiquidity)
	if !utilization.IsUint64() {
		return bpsDenominator
	}
	return utilization.Uint64()
}

// BorrowRateBps evaluates the kinked borrow rate curve at the given
// utilization. Both branches meet at base + slope1 when utilization equals
// the kink, so the curve is continuous.
func BorrowRateBps(params InterestRateParams, utilization uint64) uint64 {
	p := params.withDefaults()
	if utilization <= p.OptimalUtilization {
		return p.BaseRate + utilization*p.RateSlope1/p.OptimalUtilization
	}
	excessDenominator := uint64(bpsDenominator) - p.OptimalUtilization
	if excessDenominator == 0 {
		// Kink pinned at 100% utilization; the excess branch is unreachable
		// in practice but must not divide by zero.
		excessDenominator = 1
	}
	excess := utilization - p.OptimalUtilization
	return p.BaseRate + p.RateSlope1 + excess*p.RateSlope2/excessDenominator
}

// SupplyRateBps derives the rate depositors earn from the borrow rate,
// utilization and the protocol reserve cut. It is always derived, never
// stored, so supply and borrow rates cannot drift out of relation.
func SupplyRateBps(borrowRate, utilization, reserveFactor uint64) uint64 {
	if reserveFactor > bpsDenominator {
		reserveFactor = bpsDenominator
	}
	return borrowRate * utilization * (bpsDenominator - reserveFactor) / (bpsDenominator * bpsDenominator)
}
