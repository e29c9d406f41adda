package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Cache backends accepted by OFFLINE_CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Admin    AdminConfig
	Manifest ManifestConfig
	Offline  OfflineConfig
	Sync     SyncConfig
	Exports  ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig configures the single shared-secret admin login.
type AdminConfig struct {
	SecretHash   string
	FailureDelay time.Duration
}

// ManifestConfig locates the quiz tree and the manifest it produces.
type ManifestConfig struct {
	DataDir    string
	QuizzesDir string
	OutputPath string
	DataRoot   string
	URLPrefix  string
}

// OfflineConfig drives the caching gateway.
type OfflineConfig struct {
	OriginURL       string
	CachePrefix     string
	CacheVersion    string
	Backend         string
	ShellAssets     []string
	OfflinePage     string
	ManifestPath    string
	SweepBatchSize  int
	SweepBatchDelay time.Duration
	SweepWorkers    int
	SweepRetries    int
	UpdateInterval  time.Duration
	FetchTimeout    time.Duration
	ImageCacheLimit int
	SkipWaiting     bool
}

// SyncConfig controls the pending-upload sync CLI.
type SyncConfig struct {
	DeleteSynced bool
}

// ExportsConfig configures rendered quiz exports.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("ADMIN_TOKEN_TTL"), 4*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Admin = AdminConfig{
		SecretHash:   v.GetString("ADMIN_SECRET_HASH"),
		FailureDelay: parseDuration(v.GetString("ADMIN_FAILURE_DELAY"), 300*time.Millisecond),
	}

	cfg.Manifest = ManifestConfig{
		DataDir:    v.GetString("MANIFEST_DATA_DIR"),
		QuizzesDir: v.GetString("MANIFEST_QUIZZES_DIR"),
		OutputPath: v.GetString("MANIFEST_OUTPUT"),
		DataRoot:   v.GetString("MANIFEST_DATA_ROOT"),
		URLPrefix:  v.GetString("MANIFEST_URL_PREFIX"),
	}

	cfg.Offline = OfflineConfig{
		OriginURL:       strings.TrimRight(v.GetString("OFFLINE_ORIGIN_URL"), "/"),
		CachePrefix:     v.GetString("OFFLINE_CACHE_PREFIX"),
		CacheVersion:    v.GetString("OFFLINE_CACHE_VERSION"),
		Backend:         strings.ToLower(v.GetString("OFFLINE_CACHE_BACKEND")),
		ShellAssets:     splitAndTrim(v.GetString("OFFLINE_SHELL_ASSETS")),
		OfflinePage:     v.GetString("OFFLINE_PAGE"),
		ManifestPath:    v.GetString("OFFLINE_MANIFEST_PATH"),
		SweepBatchSize:  positiveOr(v.GetInt("OFFLINE_SWEEP_BATCH_SIZE"), 5),
		SweepBatchDelay: parseDuration(v.GetString("OFFLINE_SWEEP_BATCH_DELAY"), 200*time.Millisecond),
		SweepWorkers:    positiveOr(v.GetInt("OFFLINE_SWEEP_WORKERS"), 2),
		SweepRetries:    v.GetInt("OFFLINE_SWEEP_RETRIES"),
		UpdateInterval:  parseDuration(v.GetString("OFFLINE_UPDATE_INTERVAL"), 30*time.Minute),
		FetchTimeout:    parseDuration(v.GetString("OFFLINE_FETCH_TIMEOUT"), 10*time.Second),
		ImageCacheLimit: positiveOr(v.GetInt("OFFLINE_IMAGE_CACHE_LIMIT"), 100),
		SkipWaiting:     v.GetBool("OFFLINE_SKIP_WAITING"),
	}

	cfg.Sync = SyncConfig{
		DeleteSynced: v.GetBool("SYNC_DELETE_SYNCED"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "basmagi")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("ADMIN_TOKEN_TTL", "4h")
	v.SetDefault("ADMIN_SECRET_HASH", "")
	v.SetDefault("ADMIN_FAILURE_DELAY", "300ms")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MANIFEST_DATA_DIR", "public/data")
	v.SetDefault("MANIFEST_QUIZZES_DIR", "public/data/quizzes")
	v.SetDefault("MANIFEST_OUTPUT", "public/data/quiz-manifest.json")
	v.SetDefault("MANIFEST_DATA_ROOT", "data/quizzes")
	v.SetDefault("MANIFEST_URL_PREFIX", "/data")

	v.SetDefault("OFFLINE_ORIGIN_URL", "http://localhost:3000")
	v.SetDefault("OFFLINE_CACHE_PREFIX", "basmagi-")
	v.SetDefault("OFFLINE_CACHE_VERSION", "v2.4.0")
	v.SetDefault("OFFLINE_CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("OFFLINE_SHELL_ASSETS", "/,/index.html,/quiz.html,/summary.html,/css/style.css,/js/app.js,/favicon.png,/manifest.json,/offline.html")
	v.SetDefault("OFFLINE_PAGE", "/offline.html")
	v.SetDefault("OFFLINE_MANIFEST_PATH", "/data/quiz-manifest.json")
	v.SetDefault("OFFLINE_SWEEP_BATCH_SIZE", 5)
	v.SetDefault("OFFLINE_SWEEP_BATCH_DELAY", "200ms")
	v.SetDefault("OFFLINE_SWEEP_WORKERS", 2)
	v.SetDefault("OFFLINE_SWEEP_RETRIES", 2)
	v.SetDefault("OFFLINE_UPDATE_INTERVAL", "30m")
	v.SetDefault("OFFLINE_FETCH_TIMEOUT", "10s")
	v.SetDefault("OFFLINE_IMAGE_CACHE_LIMIT", 100)
	v.SetDefault("OFFLINE_SKIP_WAITING", true)

	v.SetDefault("SYNC_DELETE_SYNCED", false)

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
