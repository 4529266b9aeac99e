package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MaxAmountCents bounds every parsed amount: ten billion in major units.
const MaxAmountCents int64 = 1_000_000_000_000

var (
	centsPerUnit = decimal.NewFromInt(100)
	maxAmount    = decimal.NewFromInt(MaxAmountCents)
)

// ParseAmount converts a decimal major-unit string such as "12.50" into cents. Values with more
// than two fractional digits are rounded half away from zero. Amounts whose magnitude exceeds
// MaxAmountCents are rejected.
func ParseAmount(raw string) (int64, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if trimmed == "" {
		return 0, fmt.Errorf("amount is empty")
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", raw, err)
	}
	cents := value.Mul(centsPerUnit).Round(0)
	if cents.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount %q is out of range", raw)
	}
	return cents.IntPart(), nil
}

// CentsToDecimal returns the major-unit value of an amount in cents.
func CentsToDecimal(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatAmount renders cents as a plain two-decimal string ("61.00").
func FormatAmount(cents int64) string {
	return CentsToDecimal(cents).StringFixed(2)
}

// FormatDisplay renders cents with grouping and the currency symbol for the given locale
// ("$1,234.56"). Unknown currencies fall back to the ISO code prefix.
func FormatDisplay(cents int64, currency string, tag language.Tag) string {
	printer := message.NewPrinter(tag)
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	major := printer.Sprintf("%d", cents/100)
	minor := cents % 100
	symbol := currencySymbol(currency)
	return fmt.Sprintf("%s%s%s.%02d", sign, symbol, major, minor)
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "", "USD":
		return "$"
	default:
		return strings.ToUpper(strings.TrimSpace(currency)) + " "
	}
}
