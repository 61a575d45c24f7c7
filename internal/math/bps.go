package math

import "math/bits"

// BpsScale is the denominator for basis-point ratios: 10_000 bps = 100%.
const BpsScale = 10_000

// MulBps computes amount * bps / 10_000 with a 128-bit intermediate so
// the product cannot silently wrap. Returns ok=false when the result
// itself does not fit in uint64.
func MulBps(amount, bps uint64) (uint64, bool) {
	hi, lo := bits.Mul64(amount, bps)
	if hi >= BpsScale {
		return 0, false
	}
	quo, _ := bits.Div64(hi, lo, BpsScale)
	return quo, true
}
