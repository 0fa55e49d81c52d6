package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/highscore/internal/adapters/mq/queue"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
	"github.com/okian/highscore/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultPublishTimeout = 5 * time.Second
	defaultAttempts       = 3
	defaultBackoff        = 100 * time.Millisecond
	poolShutdownTimeout   = 30 * time.Second
)

// Publisher delivers a notification to its destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, e model.ScoreRecorded) error
}

// Source is the receive side of a queue.
type Source interface {
	Dequeue() <-chan queue.Message
}

// receiver is implemented by queues that track dequeue metrics.
type receiver interface {
	Received(m queue.Message)
}

// Worker processes queued notifications.
type Worker interface {
	// Run processes messages until the source is closed and drained or
	// ctx is cancelled.
	Run(ctx context.Context)
}

// InMemoryWorker implements Worker for one publisher.
type InMemoryWorker struct {
	source    Source
	publisher Publisher
	name      string

	publishTimeout time.Duration
	attempts       int
	backoff        time.Duration

	busy   *atomic.Int64
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(source Source, publisher Publisher, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:         source,
		publisher:      publisher,
		name:           "worker",
		publishTimeout: defaultPublishTimeout,
		attempts:       defaultAttempts,
		backoff:        defaultBackoff,
		busy:           &atomic.Int64{},
		logger:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run implements Worker.Run.
func (w *InMemoryWorker) Run(ctx context.Context) {
	ch := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if r, ok := w.source.(receiver); ok {
				r.Received(msg)
			}
			if err := w.process(ctx, msg); err != nil {
				w.logger.Error(ctx, "dropping notification", logger.Error(err))
			}
		}
	}
}

// process publishes one message, retrying transient failures.
func (w *InMemoryWorker) process(ctx context.Context, msg queue.Message) error {
	start := time.Now()
	w.busy.Add(1)
	defer func() {
		w.busy.Add(-1)
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		pctx, cancel := context.WithTimeout(ctx, w.publishTimeout)
		err = w.publisher.Publish(pctx, msg.Event)
		cancel()
		if err == nil {
			metrics.RecordNotificationPublished(w.publisher.Name())
			return nil
		}

		metrics.RecordPublishError(w.publisher.Name())
		metrics.RecordWorkerError()
		w.logger.Warn(ctx, "publish failed",
			logger.String("submission_id", msg.Event.Submission.ID),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		if attempt == w.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", msg.Event.Submission.ID, ctx.Err())
		case <-time.After(w.backoff):
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", msg.Event.Submission.ID, w.attempts, err)
}

// Pool manages multiple workers over one source.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	busy    atomic.Int64

	wg       sync.WaitGroup
	reporter sync.WaitGroup
	cancel   context.CancelFunc
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one means
// one worker per CPU.
func NewPool(workerCount int, source Source, publisher Publisher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  logger.NewNop(),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(source, publisher, wopts...)
		w.busy = &p.busy
		p.workers[i] = w
	}
	if len(p.workers) > 0 {
		p.logger = p.workers[0].logger
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns how many workers are publishing right now.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Start launches every worker. Workers stop when ctx is cancelled or when
// the source is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}

	p.reporter.Add(1)
	go func() {
		defer p.reporter.Done()
		p.reportBusy(ctx)
	}()
}

func (p *Pool) reportBusy(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			busy := p.Busy()
			metrics.UpdateWorkerActiveCount(busy)
			metrics.UpdateWorkerIdleCount(len(p.workers) - busy)
		}
	}
}

// Shutdown closes the source if it can be closed, lets the workers drain
// what is already queued, and waits until they finish or ctx expires.
// Workers still running at the deadline are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	workersDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(workersDone)
	}()

	var err error
	select {
	case <-workersDone:
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker shutdown timed out")
		err = fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}

	if p.cancel != nil {
		p.cancel()
	}
	p.reporter.Wait()
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(len(p.workers))
	return err
}

// LogPublisher writes notifications to the log. It is used when no broker
// is configured.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher returns a LogPublisher writing to l.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	if l == nil {
		l = logger.NewNop()
	}
	return &LogPublisher{logger: l}
}

// Name implements Publisher.
func (*LogPublisher) Name() string { return "log" }

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, e model.ScoreRecorded) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	p.logger.Info(ctx, "score recorded",
		logger.String("submission_id", e.Submission.ID),
		logger.String("payload", string(body)),
	)
	return nil
}
