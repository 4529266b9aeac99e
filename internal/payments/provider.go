// Package payments hands payable order amounts to a card processor and tracks the resulting
// payment intents.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the processor-neutral state of a payment intent.
type Status string

const (
	// StatusPending covers every state that still needs the payer: method, confirmation, 3DS.
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusCanceled   Status = "canceled"
	StatusRefunded   Status = "refunded"
)

// Cancelable reports whether an intent in this state can still be abandoned.
func (s Status) Cancelable() bool {
	return s == StatusPending || s == StatusProcessing
}

var (
	// ErrUnsupportedProvider is returned when no registered provider matches the request.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrInvalidAmount is returned for intents that would charge nothing or a negative amount.
	ErrInvalidAmount = errors.New("payments: amount must be positive")
	// ErrIntentNotFound is returned when the processor does not know the intent id.
	ErrIntentNotFound = errors.New("payments: intent not found")
	// ErrIntentNotCancelable is returned when the intent already succeeded or was canceled.
	ErrIntentNotCancelable = errors.New("payments: intent can no longer be canceled")
	// ErrInvalidCancelReason is returned for reasons the processors do not accept.
	ErrInvalidCancelReason = errors.New("payments: invalid cancellation reason")
)

// CancelReason explains why the payer abandoned an intent.
type CancelReason string

const (
	CancelRequestedByCustomer CancelReason = "requested_by_customer"
	CancelAbandoned           CancelReason = "abandoned"
	CancelDuplicate           CancelReason = "duplicate"
)

// ParseCancelReason accepts the processor reason names. A blank reason defaults to
// CancelRequestedByCustomer.
func ParseCancelReason(raw string) (CancelReason, error) {
	switch reason := CancelReason(strings.ToLower(strings.TrimSpace(raw))); reason {
	case "":
		return CancelRequestedByCustomer, nil
	case CancelRequestedByCustomer, CancelAbandoned, CancelDuplicate:
		return reason, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCancelReason, raw)
}

// IntentRequest describes the amount a payer owes for one delivery order.
type IntentRequest struct {
	Amount         int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the processor-side handle the client uses to complete payment. ClientSecret is only
// populated on creation.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
	CreatedAt    time.Time
	CapturedAt   *time.Time
}

// Provider is a card processor adapter.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	FetchIntent(ctx context.Context, id string) (Intent, error)
	CancelIntent(ctx context.Context, id string, reason CancelReason) (Intent, error)
}

// Manager routes intent operations to a named provider, falling back to the default one.
type Manager struct {
	providers map[string]Provider
	fallback  string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider names the provider used when a request does not pick one.
func WithDefaultProvider(name string) ManagerOption {
	return func(m *Manager) {
		m.fallback = providerKey(name)
	}
}

// NewManager registers providers under their lower-cased names.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	m := &Manager{providers: make(map[string]Provider, len(providers))}
	for name, provider := range providers {
		key := providerKey(name)
		if key == "" || provider == nil {
			return nil, fmt.Errorf("payments: invalid provider registration %q", name)
		}
		m.providers[key] = provider
	}
	if _, ok := m.providers[ProviderStripe]; ok {
		m.fallback = ProviderStripe
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// CreateIntent asks the named provider, or the default, for an intent covering req.Amount.
func (m *Manager) CreateIntent(ctx context.Context, provider string, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	key, p, err := m.pick(provider)
	if err != nil {
		return Intent{}, err
	}
	intent, err := p.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// FetchIntent reads the current state of an intent.
func (m *Manager) FetchIntent(ctx context.Context, provider, id string) (Intent, error) {
	key, p, err := m.pick(provider)
	if err != nil {
		return Intent{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Intent{}, ErrIntentNotFound
	}
	intent, err := p.FetchIntent(ctx, strings.TrimSpace(id))
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// CancelIntent abandons an intent that has not been captured.
func (m *Manager) CancelIntent(ctx context.Context, provider, id string, reason CancelReason) (Intent, error) {
	key, p, err := m.pick(provider)
	if err != nil {
		return Intent{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Intent{}, ErrIntentNotFound
	}
	intent, err := p.CancelIntent(ctx, strings.TrimSpace(id), reason)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

func (m *Manager) pick(name string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, ErrUnsupportedProvider
	}
	if key := providerKey(name); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if p, ok := m.providers[m.fallback]; ok {
		return m.fallback, p, nil
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func upperOr(value, fallback string) string {
	if value = strings.TrimSpace(value); value == "" {
		value = fallback
	}
	return strings.ToUpper(value)
}
