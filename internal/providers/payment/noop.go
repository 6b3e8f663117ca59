package payment

import "context"

// NoOpGateway approves everything without touching a processor. It keeps
// local development and tests working when no stripe key is configured.
type NoOpGateway struct{}

func (g *NoOpGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	return Checkout{
		SessionID:   "noop-" + req.ReferenceID,
		RedirectURL: "",
	}, nil
}

func (g *NoOpGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return ChargeResult{ProviderRef: "noop-" + req.IdempotencyKey}, nil
}

func (g *NoOpGateway) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	return WebhookEvent{}, ErrNotConfigured
}
