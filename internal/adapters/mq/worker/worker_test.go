package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/highscore/internal/adapters/mq/queue"
	"github.com/okian/highscore/internal/adapters/mq/worker"
	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
	failures  map[string]int
	delay     time.Duration
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{failures: make(map[string]int)}
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(ctx context.Context, e model.ScoreRecorded) error {
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay):
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := p.failures[e.Submission.ID]; n > 0 {
		p.failures[e.Submission.ID] = n - 1
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, e.Submission.ID)
	return nil
}

func (p *recordingPublisher) failTimes(id string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[id] = n
}

func (p *recordingPublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

func recorded(id string) model.ScoreRecorded {
	return model.ScoreRecorded{Submission: model.Submission{ID: id, PlayerID: "p1", GameID: "g1", Score: 1}}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		pub := newRecordingPublisher()
		w := worker.NewInMemoryWorker(q, pub,
			worker.WithName("test-worker"),
			worker.WithRetry(3, time.Millisecond),
		)
		ctx := context.Background()

		convey.Convey("It publishes every queued notification and stops once the queue is drained", func() {
			convey.So(q.Enqueue(ctx, recorded("a")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, recorded("b")), convey.ShouldBeNil)
			convey.So(q.Close(), convey.ShouldBeNil)

			done := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				convey.So("worker did not stop", convey.ShouldBeEmpty)
			}
			convey.So(pub.ids(), convey.ShouldResemble, []string{"a", "b"})
		})

		convey.Convey("It retries a failing publish", func() {
			pub.failTimes("flaky", 2)
			convey.So(q.Enqueue(ctx, recorded("flaky")), convey.ShouldBeNil)
			convey.So(q.Close(), convey.ShouldBeNil)

			w.Run(ctx)
			convey.So(pub.ids(), convey.ShouldResemble, []string{"flaky"})
		})

		convey.Convey("It drops a notification after the last attempt and moves on", func() {
			pub.failTimes("lost", 5)
			convey.So(q.Enqueue(ctx, recorded("lost")), convey.ShouldBeNil)
			convey.So(q.Enqueue(ctx, recorded("kept")), convey.ShouldBeNil)
			convey.So(q.Close(), convey.ShouldBeNil)

			w.Run(ctx)
			convey.So(pub.ids(), convey.ShouldResemble, []string{"kept"})
		})

		convey.Convey("It stops when the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			done := make(chan struct{})
			go func() {
				w.Run(cctx)
				close(done)
			}()
			cancel()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				convey.So("worker ignored cancellation", convey.ShouldBeEmpty)
			}
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		pub := newRecordingPublisher()
		pub.delay = time.Millisecond
		pool := worker.NewPool(4, q, pub, worker.WithLogger(logger.NewNop()))
		ctx := context.Background()

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("Shutdown drains everything already queued", func() {
			pool.Start(ctx)
			for _, id := range []string{"1", "2", "3", "4", "5", "6", "7", "8"} {
				convey.So(q.Enqueue(ctx, recorded(id)), convey.ShouldBeNil)
			}

			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(pub.ids(), convey.ShouldHaveLength, 8)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
			convey.So(pool.Busy(), convey.ShouldEqual, 0)
		})

		convey.Convey("Shutdown reports a deadline that expires before the drain finishes", func() {
			pub.delay = time.Second
			pool.Start(ctx)
			convey.So(q.Enqueue(ctx, recorded("slow")), convey.ShouldBeNil)
			time.Sleep(20 * time.Millisecond)

			sctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			err := pool.Shutdown(sctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
		})
	})

	convey.Convey("A non-positive worker count defaults to one per CPU", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), newRecordingPublisher())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

func TestLogPublisher(t *testing.T) {
	convey.Convey("The log publisher accepts any notification", t, func() {
		p := worker.NewLogPublisher(nil)
		convey.So(p.Name(), convey.ShouldEqual, "log")
		convey.So(p.Publish(context.Background(), recorded("x")), convey.ShouldBeNil)
	})
}
