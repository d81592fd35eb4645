package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"questboard/internal/config"
	"questboard/internal/httpapi"
	"questboard/pkg/asynq"
	"questboard/pkg/db"
	"questboard/pkg/logger"
	"questboard/pkg/redis"
	"questboard/pkg/server"
	"questboard/services/completion"
	"questboard/services/points"
	"questboard/services/reward"
	"questboard/services/task"
	"questboard/services/top3"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		asynq.Client,
		asynq.Server,
		asynq.Scheduler,
		fx.Provide(provideSnowflakeNode),
		points.Module,
		reward.Module,
		task.Module,
		top3.Module,
		completion.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fx.Invoke(autoMigrate),
		reward.SeedModule,
		points.TaskModule,
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

func autoMigrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&points.PointTransaction{},
		&reward.RewardItem{},
		&reward.RewardRecipe{},
		&reward.RecipeMaterial{},
		&reward.RewardTransaction{},
		&task.Task{},
		&top3.DailyTop3{},
		&top3.DailyTop3Task{},
	)
}
