package watcher

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// thresholdBaseUnits converts a human-readable token amount from config
// into base units at the token's precision, truncating any fractional
// base unit.
func thresholdBaseUnits(amount float64, decimals uint8) *big.Int {
	return decimal.NewFromFloat(amount).Shift(int32(decimals)).Truncate(0).BigInt()
}

// formatBaseUnits renders a base-unit amount back into whole-token
// notation for alert text.
func formatBaseUnits(v *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}
