package pricing

import (
	"errors"
	"fmt"
)

// Exchange converts local VND amounts into the gateway's settlement currency
// at a fixed rate expressed as local units per settlement unit.
type Exchange struct {
	LocalCurrency      string
	SettlementCurrency string
	Rate               int64
}

// NewExchange validates the configured rate.
func NewExchange(local, settlement string, rate int64) (Exchange, error) {
	if rate <= 0 {
		return Exchange{}, errors.New("pricing: exchange rate must be positive")
	}
	return Exchange{LocalCurrency: local, SettlementCurrency: settlement, Rate: rate}, nil
}

// ToMinor converts a local amount into settlement minor units (cents),
// rounding half up.
func (e Exchange) ToMinor(local int64) int64 {
	if e.Rate <= 0 || local <= 0 {
		return 0
	}
	return (local*100 + e.Rate/2) / e.Rate
}

// FormatMinor renders minor units as a decimal string with two places, the
// shape gateway amounts are sent in.
func FormatMinor(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
