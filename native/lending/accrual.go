package lending

import "math/big"

// accrue advances the pool's accumulated interest counter up to now. The
// first tick after configuration only stamps the timestamp; subsequent ticks
// apply simple interest over the elapsed seconds. Compounding error is
// bounded by the time between transactions touching the asset, since every
// mutating entry point accrues first.
func accrue(pool *PoolState, params InterestRateParams, now uint64) {
	if pool == nil {
		return
	}
	if pool.LastInterestUpdate == 0 {
		pool.LastInterestUpdate = now
		return
	}
	if now <= pool.LastInterestUpdate {
		return
	}
	delta := now - pool.LastInterestUpdate
	if pool.TotalBorrowed == nil || pool.TotalBorrowed.Sign() == 0 {
		pool.LastInterestUpdate = now
		return
	}

	utilization := UtilizationRate(pool)
	borrowRate := BorrowRateBps(params, utilization)

	interest := new(big.Int).Mul(pool.TotalBorrowed, new(big.Int).SetUint64(borrowRate))
	interest.Mul(interest, new(big.Int).SetUint64(delta))
	interest.Quo(interest, big.NewInt(secondsPerYear*bpsDenominator))

	if interest.Sign() > 0 {
		if pool.TotalAccumulatedInterest == nil {
			pool.TotalAccumulatedInterest = big.NewInt(0)
		}
		pool.TotalAccumulatedInterest = new(big.Int).Add(pool.TotalAccumulatedInterest, interest)
	}
	pool.LastInterestUpdate = now
}

// accruedDebt returns the position's debt including interest pending since
// its last update marker. The stored principal is never mutated here; user
// level interest exists only as this computed view.
func accruedDebt(pos *UserPosition, pool *PoolState, params InterestRateParams, now uint64) *big.Int {
	if pos == nil || pos.Borrowed == nil || pos.Borrowed.Sign() == 0 {
		return big.NewInt(0)
	}
	debt := new(big.Int).Set(pos.Borrowed)
	if pos.LastYieldUpdate == 0 || now <= pos.LastYieldUpdate {
		return debt
	}
	delta := now - pos.LastYieldUpdate
	utilization := UtilizationRate(pool)
	borrowRate := BorrowRateBps(params, utilization)

	interest := new(big.Int).Mul(pos.Borrowed, new(big.Int).SetUint64(borrowRate))
	interest.Mul(interest, new(big.Int).SetUint64(delta))
	interest.Quo(interest, big.NewInt(secondsPerYear*bpsDenominator))
	return debt.Add(debt, interest)
}
