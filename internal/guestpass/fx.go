package guestpass

import (
	"github.com/lakeshoreswim/clubhouse/internal/guestpass/service"
	"go.uber.org/fx"
)

var Module = fx.Module("guestpass.service",
	fx.Provide(service.New),
)
