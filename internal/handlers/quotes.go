package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lmdhub/api/internal/platform/httpx"
	"github.com/lmdhub/api/internal/services"
)

// QuoteHandlers prices shipments.
type QuoteHandlers struct {
	quotes  services.QuoteService
	limiter rateLimiter
}

// QuoteOption customises quote handlers.
type QuoteOption func(*QuoteHandlers)

// WithQuoteRateLimit caps quote requests per client address. A non-positive limit disables it.
func WithQuoteRateLimit(limit int, window time.Duration, clock func() time.Time) QuoteOption {
	return func(h *QuoteHandlers) {
		h.limiter = newWindowLimiter(limit, window, clock)
	}
}

// NewQuoteHandlers constructs quote handlers.
func NewQuoteHandlers(quotes services.QuoteService, opts ...QuoteOption) *QuoteHandlers {
	h := &QuoteHandlers{quotes: quotes}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers quote endpoints under the provided router.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/quotes", h.createQuote)
}

type quoteResponse struct {
	QuoteID         string             `json:"quoteId"`
	Currency        string             `json:"currency"`
	Pickup          string             `json:"pickup"`
	Dropoff         string             `json:"dropoff"`
	ServiceLevel    string             `json:"serviceLevel"`
	ServiceWindow   string             `json:"serviceWindow,omitempty"`
	Terrain         string             `json:"terrain"`
	AdditionalStops []string           `json:"additionalStops"`
	Distance        distancePayload    `json:"distance"`
	Quote           []quoteLinePayload `json:"quote"`
	Total           moneyPayload       `json:"total"`
	Display         string             `json:"display"`
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.quotes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quotes_unavailable", "quote service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(clientKey(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests", http.StatusTooManyRequests))
			return
		}
	}

	var req shipmentPayload
	if err := httpx.DecodeJSON(r, &req, maxRequestBody); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	shipment, err := req.toRequest()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.quotes.Quote(ctx, services.QuoteCommand{Shipment: shipment})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	stops := result.Shipment.AdditionalStops
	if stops == nil {
		stops = []string{}
	}
	total := newMoneyPayload(result.Quote.TotalPrice, result.Currency)
	httpx.WriteJSON(w, http.StatusOK, quoteResponse{
		QuoteID:         result.ID,
		Currency:        result.Currency,
		Pickup:          result.Shipment.Pickup,
		Dropoff:         result.Shipment.Dropoff,
		ServiceLevel:    string(result.Shipment.ServiceLevel),
		ServiceWindow:   h.quotes.PricingTable().ServiceWindows[result.Shipment.ServiceLevel],
		Terrain:         string(result.Shipment.Terrain),
		AdditionalStops: stops,
		Distance: distancePayload{
			Miles:           result.Distance.Miles,
			DurationMinutes: result.Distance.DurationMinutes,
		},
		Quote:   quoteLines(result.Quote, result.Currency),
		Total:   total,
		Display: total.Display,
	})
}
