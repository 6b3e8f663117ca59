package providers

import (
	"github.com/lakeshoreswim/clubhouse/internal/providers/email"
	"github.com/lakeshoreswim/clubhouse/internal/providers/payment"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	payment.Module,
)
