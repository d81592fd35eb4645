package points

import (
	"context"

	"questboard/internal/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const TypeExpireStale = "points:expire_stale"

var TaskModule = fx.Module("points.tasks",
	fx.Invoke(registerExpireTask),
)

type taskParams struct {
	fx.In

	Mux       *asynq.ServeMux
	Scheduler *asynq.Scheduler
	Config    *config.Config
	Service   *Service
}

func registerExpireTask(p taskParams) error {
	p.Mux.HandleFunc(TypeExpireStale, func(ctx context.Context, t *asynq.Task) error {
		count, err := p.Service.ExpireStale(ctx, p.Config.Economy.PointsTTL)
		if err != nil {
			zap.L().Error("points expiration sweep failed", zap.Error(err))
			return err
		}

		zap.L().Info("points expiration sweep done", zap.Int("expired", count))
		return nil
	})

	if _, err := p.Scheduler.Register("@every 24h", asynq.NewTask(TypeExpireStale, nil), asynq.Queue("low")); err != nil {
		return err
	}

	return nil
}
