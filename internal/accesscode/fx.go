package accesscode

import "go.uber.org/fx"

var Module = fx.Module("accesscode.service",
	fx.Provide(New),
)
