package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/go-co-op/gocron/v2"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	"github.com/lakeshoreswim/clubhouse/internal/config"
	"github.com/lakeshoreswim/clubhouse/internal/joblock"
	"github.com/lakeshoreswim/clubhouse/internal/member"
	"github.com/lakeshoreswim/clubhouse/internal/membershiptype"
	"github.com/lakeshoreswim/clubhouse/internal/providers"
	"github.com/lakeshoreswim/clubhouse/internal/scheduler"
	"github.com/lakeshoreswim/clubhouse/pkg/db"
	"github.com/lakeshoreswim/clubhouse/pkg/log"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the renewal passes
		membershiptype.Module,
		member.Module,
		providers.Module,
		joblock.Module,
		scheduler.Module,

		// No server module!
		fx.Invoke(StartScheduler),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}

// StartScheduler runs the notify and process passes on their cron
// schedules. Each pass is also safe to trigger manually via RunOnce.
func StartScheduler(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger, sched *scheduler.Scheduler) error {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	if _, err := cron.NewJob(
		gocron.CronJob(cfg.NotifyCron, false),
		gocron.NewTask(func() {
			if err := sched.RunNotify(context.Background()); err != nil {
				logger.Warn("renewal notify pass failed", zap.Error(err))
			}
		}),
	); err != nil {
		return err
	}

	if _, err := cron.NewJob(
		gocron.CronJob(cfg.ProcessCron, false),
		gocron.NewTask(func() {
			if err := sched.RunProcess(context.Background()); err != nil {
				logger.Warn("renewal process pass failed", zap.Error(err))
			}
		}),
	); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			cron.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return cron.Shutdown()
		},
	})
	return nil
}
