package lending

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Liquidate lets a third party cover part of an unhealthy borrower's debt in
// exchange for a bonus-bearing share of their collateral. Covering less than
// the full debt is always valid; the repaid debt and the seized collateral
// are capped at what the borrower and the pool actually hold. The repaid and
// seized amounts are returned.
func (e *Engine) Liquidate(liquidator, borrower, debtAsset, collateralAsset common.Address, debtToCover *big.Int) (*big.Int, *big.Int, error) {
	var repaid, seized *big.Int
	err := e.run(func() error {
		if liquidator == (common.Address{}) || borrower == (common.Address{}) {
			return ErrInvalidAddress
		}
		if debtToCover == nil || debtToCover.Sign() <= 0 {
			return ErrInvalidAmount
		}
		debtCfg, err := e.loadConfiguredAsset(debtAsset)
		if err != nil {
			return err
		}
		collateralCfg, err := e.loadConfiguredAsset(collateralAsset)
		if err != nil {
			return err
		}

		debtPool, debtParams, err := e.accruePool(debtAsset)
		if err != nil {
			return err
		}
		collateralPool := debtPool
		if collateralAsset != debtAsset {
			collateralPool, _, err = e.accruePool(collateralAsset)
			if err != nil {
				return err
			}
		}

		health, err := e.healthFactor(borrower)
		if err != nil {
			return err
		}
		// Strictly below 1.0: a position sitting exactly at the boundary is
		// not liquidatable.
		if health.Cmp(precision) >= 0 {
			return ErrInsufficientCollateral
		}

		pos, err := e.loadPosition(borrower, debtAsset)
		if err != nil {
			return err
		}
		now := e.now()
		debt := accruedDebt(pos, debtPool, debtParams, now)
		if debt.Sign() == 0 {
			return ErrNoOutstandingDebt
		}
		interest := new(big.Int).Sub(debt, pos.Borrowed)

		debtToRepay := new(big.Int).Set(debtToCover)
		if debtToRepay.Cmp(debt) > 0 {
			debtToRepay.Set(debt)
		}

		debtPrice, err := e.borrowPrice(debtAsset)
		if err != nil {
			return err
		}
		collateralPrice, err := e.collateralPrice(collateralAsset)
		if err != nil {
			return err
		}
		if collateralPrice.Sign() == 0 {
			return fmt.Errorf("%w: collateral price unavailable", ErrLiquidationFailed)
		}

		// collateralToSeize =
		//   debtToRepay * debtPrice * (10000 + bonus) * 10^colDec
		//   / (collateralPrice * 10000 * 10^debtDec)
		seizeAmount := new(big.Int).Mul(debtToRepay, debtPrice)
		seizeAmount.Mul(seizeAmount, big.NewInt(int64(bpsDenominator+collateralCfg.LiquidationBonus)))
		seizeAmount.Mul(seizeAmount, pow10(collateralCfg.Decimals))
		divisor := new(big.Int).Mul(collateralPrice, basisPoints)
		divisor.Mul(divisor, pow10(debtCfg.Decimals))
		seizeAmount.Quo(seizeAmount, divisor)

		borrowerSupply, err := e.userSupply(borrower, collateralAsset)
		if err != nil {
			return err
		}
		if seizeAmount.Cmp(borrowerSupply) > 0 {
			seizeAmount.Set(borrowerSupply)
		}
		if available := collateralPool.AvailableLiquidity(); seizeAmount.Cmp(available) > 0 {
			seizeAmount.Set(available)
		}

		if e.tokens != nil {
			if err := e.tokens.TransferFrom(debtAsset, liquidator, debtToRepay); err != nil {
				return err
			}
		}

		principalPortion := new(big.Int).Sub(debtToRepay, interest)
		if principalPortion.Sign() < 0 {
			principalPortion.SetInt64(0)
		}
		pos.Borrowed = new(big.Int).Sub(pos.Borrowed, principalPortion)
		pos.LastYieldUpdate = now

		debtPool.TotalBorrowed = new(big.Int).Sub(debtPool.TotalBorrowed, principalPortion)
		if debtPool.TotalBorrowed.Sign() < 0 {
			debtPool.TotalBorrowed.SetInt64(0)
		}

		if seizeAmount.Sign() > 0 {
			if e.custodian != nil {
				if err := e.custodian.SeizeCollateral(borrower, collateralAsset, seizeAmount); err != nil {
					return fmt.Errorf("%w: %v", ErrLiquidationFailed, err)
				}
			}
			collateralPool.TotalLiquidity = new(big.Int).Sub(collateralPool.TotalLiquidity, seizeAmount)
			if e.tokens != nil {
				if err := e.tokens.Transfer(collateralAsset, liquidator, seizeAmount); err != nil {
					return fmt.Errorf("%w: %v", ErrLiquidationFailed, err)
				}
			}
		}

		if err := e.state.PutPosition(pos); err != nil {
			return err
		}
		if err := e.state.PutPool(debtPool); err != nil {
			return err
		}
		if collateralAsset != debtAsset {
			if err := e.state.PutPool(collateralPool); err != nil {
				return err
			}
		}

		// Drop fully closed positions from the membership index.
		remainingSupply := new(big.Int).Sub(borrowerSupply, seizeAmount)
		if pos.Borrowed.Sign() == 0 {
			debtSupply := remainingSupply
			if debtAsset != collateralAsset {
				if debtSupply, err = e.userSupply(borrower, debtAsset); err != nil {
					return err
				}
			}
			if err := e.pruneUserAsset(borrower, debtAsset, debtSupply, pos); err != nil {
				return err
			}
		}
		if collateralAsset != debtAsset && remainingSupply.Sign() == 0 {
			collateralPos, err := e.state.GetPosition(borrower, collateralAsset)
			if err != nil {
				return err
			}
			if err := e.pruneUserAsset(borrower, collateralAsset, remainingSupply, collateralPos); err != nil {
				return err
			}
		}

		repaid = debtToRepay
		seized = seizeAmount
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return repaid, seized, nil
}
