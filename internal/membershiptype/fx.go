package membershiptype

import (
	"github.com/lakeshoreswim/clubhouse/internal/membershiptype/repository"
	"github.com/lakeshoreswim/clubhouse/internal/membershiptype/service"
	"go.uber.org/fx"
)

var Module = fx.Module("membershiptype.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
