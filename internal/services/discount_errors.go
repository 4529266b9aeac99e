package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCode indicates a non-empty coupon or referral code that is not in the catalog.
	ErrUnknownCode = errors.New("discount resolver: unknown code")
	// ErrIneligibleOrder indicates the code exists but the order does not satisfy one of its conditions.
	ErrIneligibleOrder = errors.New("discount resolver: ineligible order")
	// ErrInvalidBaseAmount is returned when the amount to discount is negative.
	ErrInvalidBaseAmount = errors.New("discount resolver: base amount must not be negative")
)

// DiscountErrorKind subdivides discount failures.
type DiscountErrorKind string

const (
	DiscountErrorUnknownCode     DiscountErrorKind = "unknown_code"
	DiscountErrorIneligibleOrder DiscountErrorKind = "ineligible_order"
)

// Conditions reported on ineligible orders.
const (
	ConditionMinOrderAmount         = "min_order_amount"
	ConditionReferralMinOrderAmount = "min_order_amount_referral"
	ConditionExpired                = "expired"
)

// DiscountError carries enough detail about a rejected code for a caller to render a message.
// It matches ErrUnknownCode or ErrIneligibleOrder through errors.Is. Required and Actual are
// minor units of Currency, which checkout fills in from the priced order.
type DiscountError struct {
	Kind      DiscountErrorKind
	Field     string
	Code      string
	Condition string
	Required  int64
	Actual    int64
	Currency  string
}

// Error implements the error interface.
func (e *DiscountError) Error() string {
	if e == nil {
		return "discount resolver: <nil>"
	}
	switch e.Kind {
	case DiscountErrorUnknownCode:
		return fmt.Sprintf("discount resolver: unknown %s code %q", e.Field, e.Code)
	case DiscountErrorIneligibleOrder:
		if e.Condition == ConditionExpired {
			return fmt.Sprintf("discount resolver: %s code %q has expired", e.Field, e.Code)
		}
		return fmt.Sprintf("discount resolver: %s code %q requires an order of at least %d cents, got %d (%s)", e.Field, e.Code, e.Required, e.Actual, e.Condition)
	}
	return fmt.Sprintf("discount resolver: %s code %q rejected", e.Field, e.Code)
}

// Is maps the kind onto the package sentinels.
func (e *DiscountError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case DiscountErrorUnknownCode:
		return target == ErrUnknownCode
	case DiscountErrorIneligibleOrder:
		return target == ErrIneligibleOrder
	}
	return false
}
