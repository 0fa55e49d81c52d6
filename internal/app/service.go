// Package service wires the record store, the leaderboard engine and the
// notification pipeline into the operations the HTTP API serves.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/highscore/internal/adapters/mq/queue"
	"github.com/okian/highscore/internal/adapters/mq/worker"
	"github.com/okian/highscore/internal/adapters/recordstore"
	"github.com/okian/highscore/internal/adapters/repository"
	"github.com/okian/highscore/internal/domain/dedupe"
	"github.com/okian/highscore/internal/domain/leaderboard"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/internal/domain/types"
	"github.com/okian/highscore/pkg/logger"
	"github.com/okian/highscore/pkg/metrics"
)

// Service implements the API dependencies for the leaderboard system.
type Service struct {
	mu sync.RWMutex

	// Core components
	ranked    repository.Store
	records   recordstore.Store
	engine    *leaderboard.Engine
	deduper   *dedupe.InMemoryDeduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	publisher worker.Publisher

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	engineOpts      []leaderboard.Option
	workerOpts      []worker.Option
	systemMetricsIv time.Duration

	// State
	started   bool
	startedAt time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the notification queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPublisher sets where score-recorded notifications go. The default
// writes them to the service log.
func WithPublisher(p worker.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithEngineOptions passes options through to the leaderboard engine.
func WithEngineOptions(opts ...leaderboard.Option) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithWorkerOptions passes options through to every notification worker.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(s *Service) {
		s.workerOpts = append(s.workerOpts, opts...)
	}
}

// WithSystemMetricsInterval sets how often memory and goroutine gauges are
// refreshed. Zero disables the refresh.
func WithSystemMetricsInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.systemMetricsIv = d
		}
	}
}

// New constructs a Service over a ranked store and a record store.
func New(ranked repository.Store, records recordstore.Store, opts ...Option) *Service {
	s := &Service{
		ranked:          ranked,
		records:         records,
		workerCount:     runtime.NumCPU(),
		queueSize:       10000,
		dedupeSize:      50000,
		systemMetricsIv: metrics.RefreshInterval(),
		stopCh:          make(chan struct{}),
		logger:          logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = worker.NewLogPublisher(s.logger.Named("notifications"))
	}

	s.engine = leaderboard.New(ranked,
		append([]leaderboard.Option{leaderboard.WithLogger(s.logger.Named("engine"))}, s.engineOpts...)...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.publisher,
		append([]worker.Option{worker.WithLogger(s.logger.Named("worker"))}, s.workerOpts...)...)
	return s
}

// Engine returns the leaderboard engine.
func (s *Service) Engine() *leaderboard.Engine { return s.engine }

// Start launches the notification workers and the system metrics loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting leaderboard service...")

	s.pool.Start(ctx)
	if s.systemMetricsIv > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reportSystemMetrics()
		}()
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "leaderboard service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("publisher", s.publisher.Name()),
	)
	return nil
}

// Stop drains pending notifications and closes both stores.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping leaderboard service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain notifications: %w", err))
	}
	close(s.stopCh)
	s.wg.Wait()

	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.records.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close record store: %w", err))
	}
	if c, ok := s.ranked.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ranked store: %w", err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
	return errors.Join(errs...)
}

// Submit persists a new submission, ranks it and queues a notification.
// A non-empty requestID that was already accepted yields
// dedupe.ErrDuplicate.
//
// Persisting and ranking are two steps: if ranking fails the submission
// stays recorded and the request id stays claimed.
func (s *Service) Submit(ctx context.Context, requestID string, in model.NewSubmission) (model.ScoreRecorded, error) {
	if requestID != "" && s.deduper.SeenAndRecord(ctx, requestID) {
		metrics.RecordScoreDuplicate()
		return model.ScoreRecorded{}, dedupe.ErrDuplicate
	}

	sub, err := s.records.Create(ctx, in)
	if err != nil {
		if requestID != "" {
			s.deduper.Unrecord(ctx, requestID)
		}
		var verrs model.ValidationErrors
		if errors.As(err, &verrs) {
			for field := range verrs {
				metrics.RecordScoreRejected(field)
			}
		} else {
			metrics.RecordErrorByComponent("service", "record_store")
		}
		return model.ScoreRecorded{}, err
	}

	ranks, err := s.engine.RecordAndRank(ctx, sub)
	if err != nil {
		s.logger.Error(ctx, "submission recorded but not ranked",
			logger.String("submission_id", sub.ID),
			logger.Error(err),
		)
		return model.ScoreRecorded{Submission: sub}, err
	}
	metrics.RecordScoreRecorded()

	out := model.ScoreRecorded{Submission: sub, Ranks: ranks}
	if err := s.queue.Enqueue(ctx, out); err != nil {
		s.logger.Warn(ctx, "notification dropped",
			logger.String("submission_id", sub.ID),
			logger.Error(err),
		)
	}
	return out, nil
}

// Get returns a stored submission.
func (s *Service) Get(ctx context.Context, id string) (model.Submission, error) {
	return s.records.Get(ctx, id)
}

// Leaderboard reads one bucket as a ranked table.
func (s *Service) Leaderboard(ctx context.Context, q leaderboard.TableQuery) ([]types.Entry, error) {
	return s.engine.ReadTable(ctx, q)
}

// Ping checks the stores that support it.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.ranked.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	if p, ok := s.records.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.pool.Size(),
		"busyWorkers":    s.pool.Busy(),
		"queueCapacity":  s.queue.Capacity(),
		"queueLength":    s.queue.Len(),
		"dedupeSize":     s.dedupeSize,
		"dedupeEntries":  s.deduper.Size(),
		"personalLimit":  s.engine.PersonalLimit(),
		"gameLimit":      s.engine.GameLimit(),
		"publisher":      s.publisher.Name(),
		"goroutineCount": runtime.NumGoroutine(),
	}
	if s.started {
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	}
	if k, ok := s.ranked.(interface{ Keys() int }); ok {
		stats["rankedKeys"] = k.Keys()
	}
	if c, ok := s.records.(interface {
		Count(context.Context) (int, error)
	}); ok {
		if n, err := c.Count(context.Background()); err == nil {
			stats["submissions"] = n
		}
	}

	metrics.UpdateQueueSize(s.queue.Len())
	return stats
}

func (s *Service) reportSystemMetrics() {
	ticker := time.NewTicker(s.systemMetricsIv)
	defer ticker.Stop()

	var ms runtime.MemStats
	for {
		runtime.ReadMemStats(&ms)
		metrics.UpdateSystemMemoryUsage(ms.Alloc)
		metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}
