package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV sample. Prices and volume use decimal to avoid float
// drift when values round-trip through storage.
type Candle struct {
	Timestamp time.Time       `db:"ts"`
	Open      decimal.Decimal `db:"open"`
	High      decimal.Decimal `db:"high"`
	Low       decimal.Decimal `db:"low"`
	Close     decimal.Decimal `db:"close"`
	Volume    decimal.Decimal `db:"volume"`
}
