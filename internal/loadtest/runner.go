package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/highscore/pkg/logger"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used by the runner.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHTTPClient replaces the HTTP client used to reach the service.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Runner) {
		if hc != nil {
			r.httpClient = hc
		}
	}
}

// WithSeed makes the generated workload deterministic.
func WithSeed(seed uint64) Option {
	return func(r *Runner) {
		r.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// Runner submits a generated workload and verifies the result.
type Runner struct {
	cfg        Config
	client     *Client
	httpClient *http.Client
	rng        *rand.Rand
	logger     logger.Logger
}

// NewRunner creates a runner for cfg.
func NewRunner(cfg Config, opts ...Option) *Runner {
	cfg = cfg.withDefaults()
	r := &Runner{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	r.client = NewClient(cfg.BaseURL, r.httpClient)
	return r
}

// Client returns the API client used by the runner.
func (r *Runner) Client() *Client { return r.client }

// Report is the outcome of a run.
type Report struct {
	Stats  Stats
	Boards []Table
}

// Run checks health, submits the workload, then reads back the daily game
// leaderboard of every touched game and verifies it.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	rep := Report{Stats: Stats{StartTime: time.Now()}}

	r.logger.Info(ctx, "starting load run",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("submissions", r.cfg.Submissions),
		logger.Int("players", r.cfg.Players),
		logger.Int("games", r.cfg.Games),
		logger.Int("workers", r.cfg.Workers))

	if err := r.client.Health(ctx); err != nil {
		return rep, fmt.Errorf("service health check failed: %w", err)
	}

	subs := generate(r.cfg, r.rng)
	rep.Stats.Generated = len(subs)

	recorded := r.submit(ctx, subs, &rep.Stats)
	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("submission interrupted: %w", err)
	}

	boards, err := r.fetchBoards(ctx, recorded)
	if err != nil {
		return rep, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	rep.Boards = boards
	rep.Stats.Boards = len(boards)

	rep.Stats.EndTime = time.Now()
	rep.Stats.Duration = rep.Stats.EndTime.Sub(rep.Stats.StartTime)

	if err := verify(recorded, boards, r.cfg.PersonalLimit); err != nil {
		return rep, err
	}

	r.logger.Info(ctx, "load run completed",
		logger.Int("successful", rep.Stats.Successful),
		logger.Int("duplicate", rep.Stats.Duplicate),
		logger.Int("failed", rep.Stats.Failed),
		logger.Duration("duration", rep.Stats.Duration),
		logger.Float64("perSecond", rep.Stats.Throughput()))
	return rep, nil
}

// submit posts subs with a fixed pool of workers and returns every created
// submission.
func (r *Runner) submit(ctx context.Context, subs []Submission, stats *Stats) []Recorded {
	var (
		submitted  atomic.Int64
		successful atomic.Int64
		duplicate  atomic.Int64
		failed     atomic.Int64

		mu       sync.Mutex
		recorded = make([]Recorded, 0, len(subs))
	)

	jobs := make(chan Submission, r.cfg.Workers*workerMultiplier)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				outcome, rec, err := r.client.Submit(ctx, s)
				submitted.Add(1)
				switch outcome {
				case OutcomeCreated:
					successful.Add(1)
					mu.Lock()
					recorded = append(recorded, rec)
					mu.Unlock()
				case OutcomeDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
					if r.cfg.Verbose {
						r.logger.Warn(ctx, "submission failed",
							logger.String("request_id", s.RequestID), logger.Error(err))
					}
				}
			}
		}()
	}

feed:
	for _, s := range subs {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- s:
		}
	}
	close(jobs)
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Successful = int(successful.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	return recorded
}
