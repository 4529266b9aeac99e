package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	domain "github.com/lmdhub/api/internal/domain"
	"github.com/lmdhub/api/internal/platform/httpx"
	"github.com/lmdhub/api/internal/services"
)

const maxRequestBody = httpx.DefaultMaxBodyBytes

var displayLanguage = language.AmericanEnglish

type moneyPayload struct {
	Amount  int64  `json:"amount"`
	Decimal string `json:"decimal"`
	Display string `json:"display"`
}

func newMoneyPayload(cents int64, currency string) moneyPayload {
	return moneyPayload{
		Amount:  cents,
		Decimal: domain.FormatAmount(cents),
		Display: domain.FormatDisplay(cents, currency, displayLanguage),
	}
}

func optionalMoney(cents int64, currency string) *moneyPayload {
	if cents <= 0 {
		return nil
	}
	payload := newMoneyPayload(cents, currency)
	return &payload
}

type shipmentPayload struct {
	Pickup          string   `json:"pickup"`
	Dropoff         string   `json:"dropoff"`
	ServiceLevel    string   `json:"serviceLevel"`
	AdditionalStops []string `json:"additionalStops"`
	Terrain         string   `json:"terrain"`
	ItemWeightLbs   *float64 `json:"itemWeightLbs"`
}

// toRequest parses the enumerations; address validation is left to the quote service.
func (p shipmentPayload) toRequest() (services.ShipmentRequest, error) {
	level, err := domain.ParseServiceLevel(p.ServiceLevel)
	if err != nil {
		return services.ShipmentRequest{}, fmt.Errorf("serviceLevel: %w", err)
	}
	terrain, err := domain.ParseTerrain(p.Terrain)
	if err != nil {
		return services.ShipmentRequest{}, fmt.Errorf("terrain: %w", err)
	}
	return services.ShipmentRequest{
		Pickup:          p.Pickup,
		Dropoff:         p.Dropoff,
		ServiceLevel:    level,
		AdditionalStops: p.AdditionalStops,
		Terrain:         terrain,
		ItemWeightLbs:   p.ItemWeightLbs,
	}, nil
}

type distancePayload struct {
	Miles           float64 `json:"miles"`
	DurationMinutes float64 `json:"durationMinutes"`
}

type quoteLinePayload struct {
	Name string `json:"name"`
	moneyPayload
}

func quoteLines(quote services.Quote, currency string) []quoteLinePayload {
	components := quote.Components()
	lines := make([]quoteLinePayload, 0, len(components))
	for _, component := range components {
		lines = append(lines, quoteLinePayload{
			Name:         component.Name,
			moneyPayload: newMoneyPayload(component.Amount, currency),
		})
	}
	return lines
}

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, httpx.ErrBodyTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, httpx.ErrUnsupportedMediaType):
		status = http.StatusUnsupportedMediaType
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), status))
}

// writeServiceError maps quote, discount and checkout failures onto the error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var discountErr *services.DiscountError
	if errors.As(err, &discountErr) {
		details := map[string]any{
			"field": discountErr.Field,
			"code":  discountErr.Code,
		}
		if discountErr.Kind == services.DiscountErrorUnknownCode {
			httpx.WriteError(ctx, w, httpx.NewError("unknown_code", discountMessage(discountErr), http.StatusNotFound).WithDetails(details))
			return
		}
		details["condition"] = discountErr.Condition
		if discountErr.Condition != services.ConditionExpired {
			details["required"] = discountErr.Required
			details["actual"] = discountErr.Actual
		}
		httpx.WriteError(ctx, w, httpx.NewError("ineligible_order", discountMessage(discountErr), http.StatusUnprocessableEntity).WithDetails(details))
		return
	}

	switch {
	case errors.Is(err, services.ErrUnknownCode):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_code", "discount code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrIneligibleOrder):
		httpx.WriteError(ctx, w, httpx.NewError("ineligible_order", "order is not eligible for the discount", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, services.ErrCheckoutInvalidInput),
		errors.Is(err, services.ErrInvalidBaseAmount):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("discounts_disabled", "discount codes are not accepted", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOutsideServiceArea):
		httpx.WriteError(ctx, w, httpx.NewError("outside_service_area", "delivery is outside the service area", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDistanceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("distance_unavailable", "unable to resolve delivery distance", http.StatusBadGateway))
	case errors.Is(err, services.ErrPaymentIntentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_intent_not_found", "payment intent not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentIntentNotCancelable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_intent_not_cancelable", "payment intent can no longer be canceled", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment processor rejected the request", http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

func discountMessage(err *services.DiscountError) string {
	field := strings.TrimSpace(err.Field)
	if field == "" {
		field = "discount"
	}
	switch {
	case err.Kind == services.DiscountErrorUnknownCode:
		return fmt.Sprintf("%s code %s is not recognised", field, err.Code)
	case err.Condition == services.ConditionExpired:
		return fmt.Sprintf("%s code %s has expired", field, err.Code)
	default:
		return fmt.Sprintf("%s code %s requires a minimum order of %s", field, err.Code, domain.FormatDisplay(err.Required, err.Currency, displayLanguage))
	}
}
