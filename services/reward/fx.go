package reward

import (
	"context"

	"questboard/internal/config"

	"go.uber.org/fx"
)

var Module = fx.Module("reward.service",
	fx.Provide(NewService),
)

// SeedModule runs the idempotent catalog seed once at process start.
var SeedModule = fx.Module("reward.seed",
	fx.Invoke(runSeed),
)

func runSeed(svc *Service, cfg *config.Config) error {
	return svc.Seed(context.Background(), cfg.Catalog)
}
