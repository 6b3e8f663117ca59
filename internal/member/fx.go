package member

import (
	"github.com/lakeshoreswim/clubhouse/internal/member/repository"
	"github.com/lakeshoreswim/clubhouse/internal/member/service"
	"go.uber.org/fx"
)

var Module = fx.Module("member.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
