package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/metermate/metermate/internal/config"
	"github.com/metermate/metermate/internal/history"
	"github.com/metermate/metermate/internal/logger"
	"github.com/metermate/metermate/internal/meter"
	"github.com/metermate/metermate/internal/migration"
	obsmetrics "github.com/metermate/metermate/internal/observability/metrics"
	"github.com/metermate/metermate/internal/reading"
	"github.com/metermate/metermate/internal/recorder"
	"github.com/metermate/metermate/internal/server"
	"github.com/metermate/metermate/internal/statistics"
	"github.com/metermate/metermate/pkg/db"
	"github.com/metermate/metermate/pkg/keylock"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(keylock.New),
		fx.Provide(obsmetrics.New),
		db.Module,
		migration.Module,

		recorder.Module,
		meter.Module,
		statistics.Module,
		history.Module,
		reading.Module,
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
