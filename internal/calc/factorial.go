package calc

import (
	"fmt"
	"math/big"
)

// MaxFactorial bounds /fact input; 50000! is ~213k digits, which is
// already at the edge of what chat output can stomach.
const MaxFactorial = 50000

// Factorial computes n! exactly.
func Factorial(n int) (*big.Int, error) {
	if n < 0 {
		return nil, fmt.Errorf("factorial of negative number %d", n)
	}
	if n > MaxFactorial {
		return nil, fmt.Errorf("n too large (max %d)", MaxFactorial)
	}
	return product(1, int64(n)), nil
}

// product multiplies lo..hi by splitting the range, which keeps the big
// multiplications between operands of similar size (much faster than a
// running product for large n).
func product(lo, hi int64) *big.Int {
	switch {
	case lo > hi:
		return big.NewInt(1)
	case lo == hi:
		return big.NewInt(lo)
	case hi-lo == 1:
		return new(big.Int).Mul(big.NewInt(lo), big.NewInt(hi))
	default:
		mid := lo + (hi-lo)/2
		return new(big.Int).Mul(product(lo, mid), product(mid+1, hi))
	}
}
