package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/lmdhub/api/internal/domain"
	"github.com/lmdhub/api/internal/platform/httpx"
	"github.com/lmdhub/api/internal/services"
)

// PricingHandlers serves the rate card the quote engine prices with.
type PricingHandlers struct {
	quotes services.QuoteService
}

// NewPricingHandlers constructs pricing handlers backed by the quote service's table.
func NewPricingHandlers(quotes services.QuoteService) *PricingHandlers {
	return &PricingHandlers{quotes: quotes}
}

// Routes registers pricing endpoints under the provided router.
func (h *PricingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/pricing", h.getPricing)
}

type serviceLevelPricePayload struct {
	ID        string       `json:"id"`
	BasePrice moneyPayload `json:"basePrice"`
	Window    string       `json:"window,omitempty"`
	Rush      bool         `json:"rush"`
}

type terrainFeePayload struct {
	ID  string       `json:"id"`
	Fee moneyPayload `json:"fee"`
}

type pricingResponse struct {
	Currency              string                     `json:"currency"`
	ServiceLevels         []serviceLevelPricePayload `json:"serviceLevels"`
	Terrains              []terrainFeePayload        `json:"terrains"`
	FreeMiles             string                     `json:"freeMiles"`
	PerMileRate           moneyPayload               `json:"perMileRate"`
	PerStopFee            moneyPayload               `json:"perStopFee"`
	HeavyItemThresholdLbs string                     `json:"heavyItemThresholdLbs"`
	HeavyItemFee          moneyPayload               `json:"heavyItemFee"`
	RushFee               moneyPayload               `json:"rushFee"`
}

func (h *PricingHandlers) getPricing(w http.ResponseWriter, r *http.Request) {
	if h.quotes == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("pricing_unavailable", "pricing service unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPricingResponse(h.quotes.PricingTable()))
}

func newPricingResponse(table services.PricingTable) pricingResponse {
	currency := table.Currency
	levels := make([]serviceLevelPricePayload, 0, len(domain.ServiceLevels))
	for _, level := range domain.ServiceLevels {
		levels = append(levels, serviceLevelPricePayload{
			ID:        string(level),
			BasePrice: newMoneyPayload(table.BasePrices[level], currency),
			Window:    table.ServiceWindows[level],
			Rush:      table.IsRush(level),
		})
	}
	terrains := make([]terrainFeePayload, 0, len(domain.Terrains))
	for _, terrain := range domain.Terrains {
		terrains = append(terrains, terrainFeePayload{
			ID:  string(terrain),
			Fee: newMoneyPayload(table.TerrainFees[terrain], currency),
		})
	}
	return pricingResponse{
		Currency:              currency,
		ServiceLevels:         levels,
		Terrains:              terrains,
		FreeMiles:             table.FreeMiles.String(),
		PerMileRate:           newMoneyPayload(table.PerMileRate, currency),
		PerStopFee:            newMoneyPayload(table.PerStopFee, currency),
		HeavyItemThresholdLbs: table.HeavyItemThresholdLbs.String(),
		HeavyItemFee:          newMoneyPayload(table.HeavyItemFee, currency),
		RushFee:               newMoneyPayload(table.RushFee, currency),
	}
}
