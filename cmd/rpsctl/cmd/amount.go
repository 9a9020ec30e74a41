package cmd

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// One token is 10^amountDecimals base units.
const amountDecimals = 18

// parseAmount reads a decimal token amount ("0.001") into base units.
func parseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	units := d.Shift(amountDecimals)
	if units.Sign() < 0 || !units.IsInteger() {
		return 0, fmt.Errorf("amount %q: must be a non-negative multiple of 1e-%d", s, amountDecimals)
	}
	bi := units.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %q: too large", s)
	}
	return bi.Uint64(), nil
}

func formatAmount(units uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -amountDecimals).String()
}
