package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lmdhub/api/internal/platform/httpx"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// RouteRegistrar mounts one route group on the versioned API router.
type RouteRegistrar func(r chi.Router)

type routeGroup int

const (
	pricingGroup routeGroup = iota
	quotesGroup
	checkoutGroup
	discountsGroup
)

// placeholders answer 501 for a group whose registrar was not supplied, so clients can tell a
// disabled feature from a typo.
var placeholders = [...]struct {
	name  string
	paths []string
}{
	pricingGroup:   {"pricing", []string{"/pricing"}},
	quotesGroup:    {"quotes", []string{"/quotes"}},
	checkoutGroup:  {"checkout", []string{"/checkout/price", "/checkout/payment-intents", "/checkout/payment-intents/{intentID}", "/checkout/payment-intents/{intentID}/cancel"}},
	discountsGroup: {"discounts", []string{"/discounts/{code}", "/referrals"}},
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      [len(placeholders)]RouteRegistrar
}

// Option customises NewRouter.
type Option func(*routerConfig)

// NewRouter builds the HTTP surface: /healthz and /readyz at the root and every route group
// under /api/v1, all behind request ids, real-ip handling, a request timeout and any
// middleware passed with WithMiddlewares.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			"method "+req.Method+" not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)
	r.Route(apiPrefix, func(api chi.Router) {
		for group, registrar := range cfg.groups {
			if registrar != nil {
				registrar(api)
				continue
			}
			handler := notImplemented(placeholders[group].name)
			for _, path := range placeholders[group].paths {
				api.HandleFunc(path, handler)
			}
		}
	})
	return r
}

func notImplemented(group string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", group+" routes not implemented", http.StatusNotImplemented))
	}
}

// WithMiddlewares appends global middleware after the request id, real-ip and timeout layers.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

func withGroup(group routeGroup, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups[group] = reg
	}
}

// WithPricingRoutes mounts GET /pricing.
func WithPricingRoutes(reg RouteRegistrar) Option { return withGroup(pricingGroup, reg) }

// WithQuoteRoutes mounts POST /quotes.
func WithQuoteRoutes(reg RouteRegistrar) Option { return withGroup(quotesGroup, reg) }

// WithCheckoutRoutes mounts the /checkout pricing and payment intent routes.
func WithCheckoutRoutes(reg RouteRegistrar) Option { return withGroup(checkoutGroup, reg) }

// WithDiscountRoutes mounts discount code lookup and referral issuance.
func WithDiscountRoutes(reg RouteRegistrar) Option { return withGroup(discountsGroup, reg) }
