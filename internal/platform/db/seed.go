package db

import (
	"context"
	"log/slog"

	"pms/internal/domain/performance"
	"pms/internal/platform/config"
)

// Seed loads annual-target templates from the configured YAML file.
func Seed(ctx context.Context, svc *performance.Service, cfg config.Config) error {
	targets, err := performance.LoadAnnualTargetsFile(cfg.SeedFile)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		slog.Info("no annual targets to seed", "file", cfg.SeedFile)
		return nil
	}
	if err := svc.ImportAnnualTargets(ctx, targets); err != nil {
		return err
	}
	slog.Info("annual targets seeded", "count", len(targets))
	return nil
}
