package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/highscore/internal/adapters/http/api"
	"github.com/okian/highscore/internal/adapters/http/swagger"
	"github.com/okian/highscore/internal/adapters/mq/kafka"
	"github.com/okian/highscore/internal/adapters/mq/worker"
	"github.com/okian/highscore/internal/adapters/recordstore"
	"github.com/okian/highscore/internal/adapters/repository"
	app "github.com/okian/highscore/internal/app"
	"github.com/okian/highscore/internal/config"
	"github.com/okian/highscore/internal/domain/leaderboard"
	"github.com/okian/highscore/pkg/logger"
	"github.com/okian/highscore/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.Init(metrics.WithConstLabels(map[string]string{
		"ranked_store": cfg.RankedStore,
		"record_store": cfg.RecordStore,
	}))

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "highscore exited", logger.Error(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains and shuts down.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("service shutdown: %w", err))
	}
	log.Info(ctx, "server stopped")
	return errors.Join(errs...)
}

// buildService opens the configured stores and publisher and wires them
// into a service.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, error) {
	weekStart, err := cfg.WeekStartDay()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	ranked, err := openRankedStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	records, err := openRecordStore(ctx, cfg, log)
	if err != nil {
		if c, ok := ranked.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, err
	}
	publisher, err := newPublisher(cfg, log)
	if err != nil {
		_ = records.Close()
		if c, ok := ranked.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, err
	}

	return app.New(ranked, records,
		app.WithLogger(log),
		app.WithWorkerCount(cfg.NotifyWorkers),
		app.WithQueueSize(cfg.NotifyQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithPublisher(publisher),
		app.WithEngineOptions(
			leaderboard.WithPersonalLimit(cfg.PersonalLimit),
			leaderboard.WithGameLimit(cfg.GameLimit),
			leaderboard.WithWeekStart(weekStart),
			leaderboard.WithLocation(loc),
		),
	), nil
}

func openRankedStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	switch cfg.RankedStore {
	case config.RankedStoreRedis:
		s, err := repository.DialRedis(cfg.RedisAddr, cfg.RedisDB,
			repository.WithOpTimeout(cfg.StoreTimeout()),
			repository.WithRedisLogger(log.Named("redis")),
		)
		if err != nil {
			return nil, err
		}
		log.Info(ctx, "using redis ranked store", logger.String("addr", cfg.RedisAddr), logger.Int("db", cfg.RedisDB))
		return s, nil
	default:
		log.Info(ctx, "using in-process treap ranked store")
		return repository.NewTreapStore(ctx), nil
	}
}

func openRecordStore(ctx context.Context, cfg *config.Config, log logger.Logger) (recordstore.Store, error) {
	switch cfg.RecordStore {
	case config.RecordStoreMongo:
		return recordstore.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase,
			recordstore.WithLogger(log.Named("mongo")))
	default:
		return recordstore.OpenBadger(cfg.BadgerDir, recordstore.WithLogger(log.Named("badger")))
	}
}

func newPublisher(cfg *config.Config, log logger.Logger) (worker.Publisher, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return worker.NewLogPublisher(log.Named("notifications")), nil
	}
	return kafka.NewPublisher(brokers,
		kafka.WithTopic(cfg.KafkaTopic),
		kafka.WithBatchTimeout(cfg.KafkaBatchTimeout()),
		kafka.WithLogger(log),
	)
}

// newHandler registers docs and API routes on a fresh mux.
func newHandler(ctx context.Context, svc *app.Service, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, api.WithLogger(log.Named("http"))).Register(ctx, mux)
	return mux
}
