package mathx

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Fixed formats v with exactly prec fractional digits. Rounding is half away
// from zero on the shortest decimal representation of v, so 1.005 becomes
// "1.01" rather than the "1.00" its binary value would round to.
func Fixed(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', prec, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(int32(prec))
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

// Finite reports whether v is neither NaN nor an infinity.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func DistSq2(ax, az, bx, bz float64) float64 {
	dx := ax - bx
	dz := az - bz
	return dx*dx + dz*dz
}
