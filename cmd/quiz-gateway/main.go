package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/basmagi-quiz/internal/handler"
	"github.com/noah-isme/basmagi-quiz/internal/repository"
	"github.com/noah-isme/basmagi-quiz/internal/service"
	"github.com/noah-isme/basmagi-quiz/pkg/cache"
	"github.com/noah-isme/basmagi-quiz/pkg/config"
	"github.com/noah-isme/basmagi-quiz/pkg/database"
	"github.com/noah-isme/basmagi-quiz/pkg/logger"
	"github.com/noah-isme/basmagi-quiz/pkg/storage"
)

const (
	shutdownTimeout = 15 * time.Second
	exportSweep     = time.Hour
)

// @title Basmagi Quiz Gateway
// @version 2.4.0
// @description Offline caching gateway and admin API for the Basmagi quiz platform
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("gateway failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheStorage, closeStorage, err := newCacheStorage(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer closeStorage()

	notifier := service.NewNotifier(0, metricsSvc, logr)
	offlineSvc, err := service.NewOfflineCacheService(cfg.Offline, cacheStorage, nil, notifier, metricsSvc, logr)
	if err != nil {
		return err
	}

	authSvc := service.NewAuthService(validate, logr, service.AuthConfig{
		SecretHash:   cfg.Admin.SecretHash,
		TokenSecret:  cfg.JWT.Secret,
		TokenTTL:     cfg.JWT.Expiration,
		FailureDelay: cfg.Admin.FailureDelay,
	})

	dataDir, err := storage.NewLocalStorage(cfg.Manifest.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	exportDir, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("open exports dir: %w", err)
	}
	exportSvc := service.NewExportService(
		dataDir,
		exportDir,
		storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		service.NewQuizMigrator(),
		validate,
		service.ExportConfig{APIPrefix: cfg.APIPrefix},
		logr,
	)

	h := routes{
		offline: handler.NewOfflineHandler(offlineSvc, validate, logr, cfg.CORS.AllowedOrigins),
		auth:    handler.NewAuthHandler(authSvc),
		exports: handler.NewExportHandler(exportSvc, logr),
		metrics: handler.NewMetricsHandler(metricsSvc, offlineSvc.Version()),
		tokens:  authSvc,
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Warn("database unavailable, quiz upload routes disabled", zap.Error(err))
	} else {
		defer db.Close()
		quizzes, err := newQuizHandler(ctx, db, cfg.APIPrefix, validate, logr)
		if err != nil {
			return err
		}
		h.quizzes = quizzes
	}

	offlineSvc.Start(ctx)
	defer offlineSvc.Stop()

	offlineSvc.Install(ctx)
	if cfg.Offline.SkipWaiting {
		if err := offlineSvc.Activate(ctx); err != nil {
			logr.Warn("activation failed", zap.Error(err))
		}
	}
	go offlineSvc.RunUpdateLoop(ctx)
	go runExportCleanup(ctx, exportSvc, logr)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, logr, metricsSvc, h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("cache_version", offlineSvc.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newCacheStorage(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.CacheStorage, func(), error) {
	switch cfg.Offline.Backend {
	case config.CacheBackendRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		store := repository.NewRedisCacheStorage(client, "basmagi:offline", logr)
		return store, func() { _ = store.Close() }, nil
	case config.CacheBackendMemory, "":
		return repository.NewMemoryCacheStorage(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Offline.Backend)
	}
}

func newQuizHandler(ctx context.Context, db *sqlx.DB, apiPrefix string, validate *validator.Validate, logr *zap.Logger) (*handler.QuizHandler, error) {
	repo := repository.NewPendingQuizRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	uploads := service.NewUploadService(repo, service.NewQuizValidator(validate), validate, logr)
	return handler.NewQuizHandler(uploads, apiPrefix), nil
}

func runExportCleanup(ctx context.Context, exports *service.ExportService, logr *zap.Logger) {
	ticker := time.NewTicker(exportSweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(0)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
