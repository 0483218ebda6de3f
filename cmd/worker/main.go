package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/jdholdren/webtrack/internal/archive"
	"github.com/jdholdren/webtrack/internal/ingest"
	"github.com/jdholdren/webtrack/internal/logger"
	"github.com/jdholdren/webtrack/internal/progress"
	"github.com/jdholdren/webtrack/internal/resources"
	"github.com/jdholdren/webtrack/internal/sqlite"
	"github.com/jdholdren/webtrack/internal/worker"
)

type config struct {
	Database           string        `env:"DATABASE, required"`
	TemporalHostPort   string        `env:"TEMPORAL_HOST_PORT, required"`
	TemporalNamespace  string        `env:"TEMPORAL_NAMESPACE, default=default"`
	NamespaceRetention time.Duration `env:"NAMESPACE_RETENTION, default=72h"`

	RedisAddress  string `env:"REDIS_ADDRESS, default=localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB, default=0"`

	UploadDir        string        `env:"UPLOAD_DIR, default=uploads"`
	ProgressTTL      time.Duration `env:"PROGRESS_TTL, default=24h"`
	ProgressEvery    int           `env:"PROGRESS_EVERY, default=1"`
	ProgressInterval time.Duration `env:"PROGRESS_INTERVAL, default=500ms"`
	MaxConcurrency   int           `env:"MAX_CONCURRENT_JOBS, default=4"`
	CheckEvery       time.Duration `env:"AVAILABILITY_CHECK_EVERY, default=0"`
	CheckTimeout     time.Duration `env:"AVAILABILITY_CHECK_TIMEOUT, default=10s"`

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
	repo := sqlite.New(dbx)

	archives, err := archive.NewStore(cfg.UploadDir, 0)
	if err != nil {
		log.Fatalf("error preparing upload directory: %s", err)
	}

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
	var c client.Client
	if err := retry.Fibonacci(ctx, 1*time.Second, func(ctx context.Context) error {
		cli, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalHostPort,
			Namespace: cfg.TemporalNamespace,
			Logger:    tlog.NewStructuredLogger(slog.Default()),
		})
		if err != nil {
			slog.Warn("waiting on temporal", "err", err)
			return retry.RetryableError(err)
		}
		c = cli

		return nil
	}); err != nil {
		log.Fatalln("Unable to create Temporal client:", err)
	}
	defer c.Close()

	if err := worker.EnsureNamespace(ctx, c.WorkflowService(), cfg.TemporalNamespace, cfg.NamespaceRetention); err != nil {
		log.Fatalf("error ensuring namespace: %s", err)
	}

	res := resources.NewService(repo)
	job := ingest.NewJob(ingest.JobParams{
		Requests:         repo,
		Archives:         archives,
		Resources:        res,
		Progress:         progress.NewStore(rdb, cfg.ProgressTTL),
		ProgressEvery:    cfg.ProgressEvery,
		ProgressInterval: cfg.ProgressInterval,
	})

	w, err := worker.NewWorker(ctx, c, job, res, worker.Config{
		MaxConcurrentActivities: cfg.MaxConcurrency,
		CheckEvery:              cfg.CheckEvery,
		CheckTimeout:            cfg.CheckTimeout,
	})
	if err != nil {
		log.Fatalf("error creating worker: %s", err)
	}

	var (
		g    run.Group
		stop = make(chan any)
	)
	g.Add(func() error {
		return w.Run(stop)
	}, func(error) {
		close(stop)
	})
	g.Add(func() error {
		<-ctx.Done()
		return ctx.Err()
	}, func(error) {
		cancel()
	})

	if err := g.Run(); err != nil {
		slog.Info("worker stopped", "reason", err)
	}
}
