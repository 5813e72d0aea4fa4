package quality

import (
	"github.com/shopspring/decimal"

	"github.com/vietddude/marketsync/internal/core/domain"
)

// validationResult aggregates the lightweight value checks run over a window.
type validationResult struct {
	OutOfOrder      int
	Duplicates      int
	ValueViolations int
}

// validate runs ordering, duplicate and value-sanity checks over stored
// candles. Candles are expected in storage order (timestamp ascending); any
// inversion or repeat counts against the series.
func validate(candles []domain.Candle, maxPrice decimal.Decimal) validationResult {
	var res validationResult

	for i, c := range candles {
		if i > 0 {
			prev := candles[i-1].Timestamp
			switch {
			case c.Timestamp.Equal(prev):
				res.Duplicates++
			case c.Timestamp.Before(prev):
				res.OutOfOrder++
			}
		}
		if !saneValues(c, maxPrice) {
			res.ValueViolations++
		}
	}
	return res
}

func saneValues(c domain.Candle, maxPrice decimal.Decimal) bool {
	if c.Volume.IsNegative() {
		return false
	}
	for _, p := range []decimal.Decimal{c.Open, c.High, c.Low, c.Close} {
		if !p.IsPositive() {
			return false
		}
		if maxPrice.IsPositive() && p.GreaterThan(maxPrice) {
			return false
		}
	}
	if c.High.LessThan(c.Low) {
		return false
	}
	return true
}
