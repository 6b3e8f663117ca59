package payment

import (
	"github.com/lakeshoreswim/clubhouse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.payment",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Gateway {
	if cfg.StripeSecretKey == "" {
		log.Named("providers.payment").Warn("stripe secret key missing, using no-op gateway")
		return &NoOpGateway{}
	}
	return NewStripe(StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		SuccessURL:    cfg.StripeSuccessURL,
		CancelURL:     cfg.StripeCancelURL,
	}, log)
}
