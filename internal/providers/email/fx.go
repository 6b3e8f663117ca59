package email

import (
	"github.com/lakeshoreswim/clubhouse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig falls back to a no-op sender when SMTP credentials are
// absent so local development works without a mail server.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMTPUsername == "" {
		log.Named("providers.email").Warn("smtp credentials missing, email delivery disabled")
		return &NoOpProvider{}
	}
	provider, err := NewSMTP(Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		log.Named("providers.email").Error("smtp provider init failed, email delivery disabled", zap.Error(err))
		return &NoOpProvider{}
	}
	return provider
}
