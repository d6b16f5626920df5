package marketdata

// dividendYieldThreshold separates fractional yields from ones already
// expressed as a percent. Real yields above 15% are rare, so anything below
// the threshold is taken as a fraction of 1.
const dividendYieldThreshold = 0.15

// NormalizeDividendYield converts a provider-reported dividend yield to a
// percent. Upstream sources disagree about the unit: some report 0.0041 for
// 0.41%, others report 5.2 for 5.2%.
func NormalizeDividendYield(v float64) float64 {
	if v < dividendYieldThreshold {
		return v * 100
	}
	return v
}
