package indicators

import "fmt"

// SMA computes the simple moving average of the final period closes.
func SMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate SMA for period %d", len(closes), period)
	}

	total := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		total += closes[i]
	}
	return total / float64(period), nil
}

// EMA computes the exponential moving average over the whole series, seeded
// with the SMA of the first period closes.
func EMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(closes), period)
	}

	multiplier := 2.0 / float64(period+1)

	// Seed with the SMA of the first 'period' closes
	ema, err := SMA(closes[:period], period)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate seed SMA for EMA: %w", err)
	}

	// Apply EMA formula for the rest of the series
	for i := period; i < len(closes); i++ {
		ema = (closes[i]-ema)*multiplier + ema
	}

	return ema, nil
}
