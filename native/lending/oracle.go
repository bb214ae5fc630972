package lending

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// PriceSource is the advanced oracle contract consumed by the engine. Prices
// are scaled to 1e18 per whole token.
type PriceSource interface {
	PriceForCollateral(asset common.Address) (*big.Int, error)
	PriceForBorrowing(asset common.Address) (*big.Int, error)
	PriceConfidence(asset common.Address) (uint64, error)
	IsPriceStale(asset common.Address) (bool, error)
}

// LegacyPriceSource is the older single-price feed retained for assets that
// predate the collateral/borrow split.
type LegacyPriceSource interface {
	Price(asset common.Address) (*big.Int, error)
}

// collateralPrice resolves the valuation price for supplied balances. The
// fallback order is advanced oracle, then legacy feed, then the fixed unit
// price for assets with no oracle wiring at all. Oracle failures abort the
// whole operation rather than falling through.
func (e *Engine) collateralPrice(asset common.Address) (*big.Int, error) {
	if e.oracle != nil {
		return e.oracle.PriceForCollateral(asset)
	}
	if e.legacyOracle != nil {
		return e.legacyOracle.Price(asset)
	}
	return new(big.Int).Set(unitPrice), nil
}

// borrowPrice resolves the valuation price for debt balances with the same
// fallback chain as collateralPrice.
func (e *Engine) borrowPrice(asset common.Address) (*big.Int, error) {
	if e.oracle != nil {
		return e.oracle.PriceForBorrowing(asset)
	}
	if e.legacyOracle != nil {
		return e.legacyOracle.Price(asset)
	}
	return new(big.Int).Set(unitPrice), nil
}

// StaticOracle is a fixed price table satisfying LegacyPriceSource. It serves
// deployments without an external feed; assets with no entry value at the
// fixed unit price.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[common.Address]*big.Int
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[common.Address]*big.Int)}
}

// SetPrice pins the valuation for an asset. Nil or negative values clear the
// entry.
func (o *StaticOracle) SetPrice(asset common.Address, value *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if value == nil || value.Sign() < 0 {
		delete(o.prices, asset)
		return
	}
	o.prices[asset] = new(big.Int).Set(value)
}

func (o *StaticOracle) Price(asset common.Address) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if price, ok := o.prices[asset]; ok {
		return new(big.Int).Set(price), nil
	}
	return new(big.Int).Set(unitPrice), nil
}
