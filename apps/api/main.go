package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lakeshoreswim/clubhouse/internal/clock"
	"github.com/lakeshoreswim/clubhouse/internal/config"
	"github.com/lakeshoreswim/clubhouse/internal/migration"
	"github.com/lakeshoreswim/clubhouse/internal/server"
	"github.com/lakeshoreswim/clubhouse/pkg/db"
	"github.com/lakeshoreswim/clubhouse/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
