package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCurrency reads a pt-BR formatted amount such as "1.500,00".
// Unparseable input yields zero.
func ParseCurrency(value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	clean := strings.ReplaceAll(value, ".", "")
	clean = strings.Replace(clean, ",", ".", 1)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero
	}
	return d
}
