package lending

import "math/big"

const (
	// bpsDenominator is the basis point scale: 10000 = 100%.
	bpsDenominator = 10_000
	// secondsPerYear converts annualised rates into per-second accrual.
	secondsPerYear = 31_536_000
)

var (
	basisPoints = big.NewInt(bpsDenominator)
	// precision represents 1.0 for health factor arithmetic.
	precision = mustBigInt("1000000000000000000")
	// unitPrice is the fixed 1.0 fallback used for assets with no oracle
	// wiring, scaled to the same 1e18-per-whole-token convention oracles use.
	unitPrice = mustBigInt("1000000000000000000")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// pow10 returns 10^exp for decimal normalisation.
func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// mulDiv computes a*b/den with intermediate big precision, flooring the
// result. A zero denominator yields zero.
func mulDiv(a, b, den *big.Int) *big.Int {
	if a == nil || b == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, den)
}

// valueOf normalises a token amount into a 1e18-scaled value using the given
// oracle price and token decimals.
func valueOf(amount, price *big.Int, decimals uint8) *big.Int {
	if amount == nil || amount.Sign() == 0 || price == nil || price.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(amount, price, pow10(decimals))
}
