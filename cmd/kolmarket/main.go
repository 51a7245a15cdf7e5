package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"kolmarket/internal/httpapi"
	"kolmarket/pkg/config"
	"kolmarket/pkg/db"
	"kolmarket/pkg/logger"
	"kolmarket/pkg/redis"
	"kolmarket/pkg/sequence"
	"kolmarket/pkg/server"
	"kolmarket/pkg/task"
	"kolmarket/pkg/xapi"
	"kolmarket/services/acceptance"
	"kolmarket/services/campaign"
	"kolmarket/services/notify"
	"kolmarket/services/participant"
	"kolmarket/services/tier"
	"kolmarket/services/verification"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		xapi.Module,
		task.Client,
		task.Server,
		fx.Provide(provideSnowflakeNode),
		fx.Invoke(db.Otel, db.Metric),

		notify.Module,
		tier.Module,
		participant.Module,
		campaign.Module,
		acceptance.Module,
		verification.Module,

		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
