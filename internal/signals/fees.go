package signals

import "math"

// FeeEstimate returns the per-contract trading fee at a given price:
// max(minFee, 0.07·p·(1−p)), with the quadratic term rounded up to the
// nearest cent the way the exchange bills it.
func FeeEstimate(price, minFee float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	fee := 0.07 * price * (1 - price)
	fee = math.Ceil(fee*100) / 100
	if fee < minFee {
		return minFee
	}
	return fee
}

// FeePct returns the fee as a fraction of the contract cost.
func FeePct(price, minFee float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return FeeEstimate(price, minFee) / price
}

// TotalFees sums per-contract fees over a set of prices. Used by the
// rebalancing detector, which pays a fee on every partition member.
func TotalFees(prices []float64, minFee float64) float64 {
	total := 0.0
	for _, p := range prices {
		total += FeeEstimate(p, minFee)
	}
	return total
}
