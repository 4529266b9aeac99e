package payments

import "github.com/shopspring/decimal"

// FeeSchedule is a card processing fee: a percentage of the charge plus a fixed amount in cents.
type FeeSchedule struct {
	Percent decimal.Decimal
	Fixed   int64
}

// Default processing fee schedules.
var (
	DomesticCardFees      = FeeSchedule{Percent: decimal.RequireFromString("2.9"), Fixed: 30}
	InternationalCardFees = FeeSchedule{Percent: decimal.RequireFromString("3.9"), Fixed: 30}
)

// Estimate returns the fee the processor is expected to keep on a charge of amount cents,
// rounded half up to the cent. Zero and negative charges carry no fee.
func (s FeeSchedule) Estimate(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	percent := decimal.NewFromInt(amount).Mul(s.Percent).Div(decimal.NewFromInt(100))
	return percent.Round(0).IntPart() + s.Fixed
}

// EstimateProcessingFee picks the domestic or international schedule for amount.
func EstimateProcessingFee(amount int64, international bool) int64 {
	if international {
		return InternationalCardFees.Estimate(amount)
	}
	return DomesticCardFees.Estimate(amount)
}
