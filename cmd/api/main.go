package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.uber.org/fx"

	"github.com/jdholdren/webtrack/internal/api"
	"github.com/jdholdren/webtrack/internal/archive"
	"github.com/jdholdren/webtrack/internal/ingest"
	"github.com/jdholdren/webtrack/internal/logger"
	"github.com/jdholdren/webtrack/internal/migrations"
	"github.com/jdholdren/webtrack/internal/progress"
	"github.com/jdholdren/webtrack/internal/resources"
	"github.com/jdholdren/webtrack/internal/sqlite"
	"github.com/jdholdren/webtrack/internal/worker"
)

type config struct {
	Database          string `env:"DATABASE, required"`
	TemporalHostPort  string `env:"TEMPORAL_HOST_PORT, required"`
	TemporalNamespace string `env:"TEMPORAL_NAMESPACE, default=default"`

	RedisAddress  string `env:"REDIS_ADDRESS, default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB, default=0"`

	Port            int           `env:"PORT, default=4444"`
	CorsOrigin      string        `env:"CORS_ORIGIN"`
	UploadDir       string        `env:"UPLOAD_DIR, default=uploads"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES, default=104857600"`
	UploadTimeout   time.Duration `env:"UPLOAD_TIMEOUT, default=5m"`
	ProgressTTL     time.Duration `env:"PROGRESS_TTL, default=24h"`
	StatusCacheSize int           `env:"STATUS_CACHE_SIZE, default=1024"`

	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
	Debug        bool   `env:"DEBUG, default=false"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger.Setup(os.Stdout, cfg.LoggerFormat, level)

	// Connect to the sqlite db
	dbx, err := sqlite.Open(cfg.Database)
	if err != nil {
		log.Fatalf("error opening database: %s", err)
	}
	defer dbx.Close()

	// Run all migrations, the worker relies on the api having done so
	if err := migrations.Run(dbx); err != nil {
		log.Fatalf("error running migrations: %s", err)
	}

	repo := sqlite.New(dbx)

	archives, err := archive.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		log.Fatalf("error preparing upload directory: %s", err)
	}

	// Retry until redis is ready
	var rdb *redis.Client
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		c, err := progress.NewClient(ctx, progress.ClientConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			slog.Warn("waiting on redis", "err", err)
			return retry.RetryableError(err)
		}
		rdb = c

		return nil
	}); err != nil {
		log.Fatalln("Unable to connect to redis:", err)
	}
	defer rdb.Close()

	// Retry until temporal is ready
	var temporalCli client.Client
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		c, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalHostPort,
			Namespace: cfg.TemporalNamespace,
			Logger:    tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			slog.Warn("waiting on temporal", "err", err)
			return retry.RetryableError(err)
		}
		temporalCli = c

		return nil
	}); err != nil {
		log.Fatalln("Unable to create Temporal client:", err)
	}
	defer temporalCli.Close()

	reporter, err := ingest.NewReporter(repo, progress.NewStore(rdb, cfg.ProgressTTL), cfg.StatusCacheSize)
	if err != nil {
		log.Fatalf("error creating status reporter: %s", err)
	}
	orchestrator := ingest.NewOrchestrator(archives, repo, worker.NewQueue(temporalCli))

	// Start the application
	fx.New(
		fx.Supply(
			api.ServerConfig{
				Port:           cfg.Port,
				CorsOrigin:     cfg.CorsOrigin,
				MaxUploadBytes: cfg.MaxUploadBytes,
				ReadTimeout:    cfg.UploadTimeout,
			},
			fx.Annotate(resources.NewService(repo), fx.As(new(api.ResourceService))),
			fx.Annotate(orchestrator, fx.As(new(api.Submitter))),
			fx.Annotate(reporter, fx.As(new(api.StatusReporter))),
		),
		api.Module,
		fx.Invoke(func(api.Server) {}), // Start the api server
	).Run()
}
