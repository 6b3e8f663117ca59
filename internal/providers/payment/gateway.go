// Package payment abstracts the card processor behind a small gateway
// interface so services and the renewal scheduler never import stripe
// directly.
package payment

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured   = errors.New("payment_gateway_not_configured")
	ErrNoPaymentMethod = errors.New("no_payment_method_on_file")
	ErrChargeDeclined  = errors.New("charge_declined")
)

// CheckoutRequest opens a hosted payment page for a pending purchase.
// ReferenceID ties the processor session back to the ledger entry.
type CheckoutRequest struct {
	ReferenceID string
	Email       string
	Description string
	Quantity    int64
	AmountCents int64
}

type Checkout struct {
	SessionID   string
	RedirectURL string
}

// ChargeRequest bills a stored customer off-session. IdempotencyKey is
// forwarded to the processor so a retried renewal never double-charges.
type ChargeRequest struct {
	IdempotencyKey string
	CustomerRef    string
	Description    string
	AmountCents    int64
}

type ChargeResult struct {
	ProviderRef string
}

// WebhookEvent is the processor callback reduced to what the ledger needs.
type WebhookEvent struct {
	Type        string
	ReferenceID string
}

const (
	EventCheckoutCompleted = "checkout.completed"
	EventCheckoutExpired   = "checkout.expired"
)

type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error)
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
