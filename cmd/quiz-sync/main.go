package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/repository"
	"github.com/noah-isme/basmagi-quiz/internal/service"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
	"github.com/noah-isme/basmagi-quiz/pkg/database"
	"github.com/noah-isme/basmagi-quiz/pkg/logger"
	"github.com/noah-isme/basmagi-quiz/pkg/storage"
)

type options struct {
	service.SyncOptions
	Status bool
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("quiz-sync", pflag.ContinueOnError)
	fs.BoolVar(&opts.DryRun, "dry-run", false, "list what would be written without touching files or the database")
	fs.BoolVar(&opts.All, "all", false, "rewrite every uploaded quiz, including synced ones and existing files")
	fs.BoolVar(&opts.DeleteSynced, "delete-synced", cfg.Sync.DeleteSynced, "delete synced rows after a successful run")
	fs.BoolVar(&opts.Status, "status", false, "print staging table counts and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	return opts, nil
}

// quiz-sync pulls uploaded quizzes from PostgreSQL into the quiz tree and rebuilds the manifest.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		os.Exit(2)
	}

	logr, err := logger.NewCLI(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, opts, logr, os.Stdout)
	stop()
	_ = logr.Sync()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, opts options, logr *zap.Logger, out io.Writer) int {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Error("failed to connect to database", zap.Error(err))
		return 1
	}
	defer db.Close()

	repo := repository.NewPendingQuizRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		logr.Error("failed to ensure schema", zap.Error(err))
		return 1
	}

	quizzes, err := storage.NewLocalStorage(cfg.Manifest.QuizzesDir)
	if err != nil {
		logr.Error("failed to open quizzes directory", zap.Error(err))
		return 1
	}
	builder, err := service.NewManifestBuilder(cfg.Manifest, service.NewQuizMigrator(), logr)
	if err != nil {
		logr.Error("failed to initialise manifest builder", zap.Error(err))
		return 1
	}
	svc := service.NewSyncService(repo, quizzes, builder, logr)

	if opts.Status {
		counts, err := svc.Status(ctx)
		if err != nil {
			logr.Error("failed to read status", zap.Error(err))
			return 1
		}
		fmt.Fprintf(out, "total: %d\npending: %d\nsynced: %d\n", counts.Total, counts.Pending, counts.Synced)
		return 0
	}

	report, err := svc.Sync(ctx, opts.SyncOptions)
	if err != nil {
		logr.Error("sync failed", zap.Error(err))
		return 1
	}
	logr.Info("sync finished",
		zap.Int("rows", report.Rows),
		zap.Int("written", report.Written),
		zap.Int("skipped", report.Skipped),
		zap.Int("marked", report.Marked),
		zap.Int64("deleted", report.Deleted),
		zap.Bool("manifest_rebuilt", report.Manifest != nil),
	)
	return 0
}
