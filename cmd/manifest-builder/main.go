package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/service"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
	"github.com/noah-isme/basmagi-quiz/pkg/logger"
)

// manifest-builder walks the quiz tree, enriches quiz files in place and writes the manifest.
// It takes no arguments and is run from the repository root.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.NewCLI(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logr)
	stop()
	_ = logr.Sync()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) int {
	builder, err := service.NewManifestBuilder(cfg.Manifest, service.NewQuizMigrator(), logr)
	if err != nil {
		logr.Error("failed to initialise manifest builder", zap.Error(err))
		return 1
	}

	if _, err := builder.Build(ctx); err != nil {
		logr.Error("manifest build failed", zap.Error(err))
		return 1
	}
	return 0
}
