package payments

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProviderSimulated is the registration key of the in-process provider used when no processor
// credentials are configured.
const ProviderSimulated = "simulated"

// SimulatedProvider keeps intents in memory. They stay pending until canceled, which lets local
// environments run checkout end to end without processor credentials.
type SimulatedProvider struct {
	mu      sync.Mutex
	intents map[string]Intent
	clock   func() time.Time
}

// NewSimulatedProvider builds an empty simulated provider.
func NewSimulatedProvider(clock func() time.Time) *SimulatedProvider {
	if clock == nil {
		clock = time.Now
	}
	return &SimulatedProvider{
		intents: make(map[string]Intent),
		clock:   func() time.Time { return clock().UTC() },
	}
}

func (p *SimulatedProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	id := "pi_sim_" + strings.ToLower(ulid.Make().String())
	intent := Intent{
		ID:        id,
		Provider:  ProviderSimulated,
		Status:    StatusPending,
		Amount:    req.Amount,
		Currency:  upperOr(req.Currency, "USD"),
		CreatedAt: p.clock(),
	}

	p.mu.Lock()
	p.intents[id] = intent
	p.mu.Unlock()

	intent.ClientSecret = id + "_secret"
	return intent, nil
}

func (p *SimulatedProvider) FetchIntent(_ context.Context, id string) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[id]
	if !ok {
		return Intent{}, ErrIntentNotFound
	}
	return intent, nil
}

func (p *SimulatedProvider) CancelIntent(_ context.Context, id string, _ CancelReason) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[id]
	if !ok {
		return Intent{}, ErrIntentNotFound
	}
	if !intent.Status.Cancelable() {
		return Intent{}, ErrIntentNotCancelable
	}
	intent.Status = StatusCanceled
	p.intents[id] = intent
	return intent, nil
}
