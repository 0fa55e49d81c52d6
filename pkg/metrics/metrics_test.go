package metrics

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given metrics options", t, func() {
		Convey("When creating a manager with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("board"),
				WithPrefix("unit"),
				WithLatencyBuckets([]float64{1, 5, 10}),
				WithEnabled(true),
				WithRefreshInterval(5*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithRegistry(registry),
			)

			Convey("Then the options should be applied", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Enabled(), ShouldBeTrue)
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)

				manager.scoresRecorded.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_board_unit_scores_recorded_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "test")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When options carry zero values", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithLatencyBuckets(nil),
				WithRefreshInterval(-1*time.Second),
				WithConstLabels(nil),
				WithRegistry(registry),
			)

			Convey("Then defaults should be kept", func() {
				So(manager.namespace, ShouldEqual, "highscore")
				So(manager.subsystem, ShouldEqual, "leaderboard")
				So(manager.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
				So(manager.customLabels, ShouldNotBeNil)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording submission metrics", func() {
			before := testutil.ToFloat64(globalManager.scoresRecorded)
			RecordScoreRecorded()
			RecordScoreRecorded()

			Convey("Then the counter should advance", func() {
				So(testutil.ToFloat64(globalManager.scoresRecorded)-before, ShouldEqual, 2)
			})
		})

		Convey("When recording labelled placement misses", func() {
			c := globalManager.placementMisses.WithLabelValues("personal", "daily")
			before := testutil.ToFloat64(c)
			RecordPlacementMiss("personal", "daily")

			Convey("Then only that label pair should advance", func() {
				So(testutil.ToFloat64(c)-before, ShouldEqual, 1)
			})
		})

		Convey("When recording a failed store op", func() {
			c := globalManager.storeErrors.WithLabelValues("redis", "zadd")
			before := testutil.ToFloat64(c)
			RecordStoreOp("redis", "zadd", 1.5, errors.New("boom"))
			RecordStoreOp("redis", "zadd", 0.5, nil)

			Convey("Then one error should be counted", func() {
				So(testutil.ToFloat64(c)-before, ShouldEqual, 1)
			})
		})

		Convey("When updating gauges", func() {
			UpdateRankedKeys(6)
			UpdateQueueSize(3)
			UpdateWorkerCount(4)

			Convey("Then they should hold the latest value", func() {
				So(testutil.ToFloat64(globalManager.rankedKeys), ShouldEqual, 6)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
			})
		})

		Convey("When the remaining recorders are called", func() {
			Convey("Then none of them should panic", func() {
				So(func() {
					RecordScoreDuplicate()
					RecordScoreRejected("score")
					RecordRankLatency(12)
					RecordRankComputation()
					RecordPartialWrite()
					RecordTableRead("game", "weekly", 2)
					RecordRecordStoreOp("badger", "create", 1, nil)
					UpdateRankedMembers(10)
					RecordTrimmedMembers(2)
					RecordHTTPRequest("/scores", "POST", "201")
					RecordHTTPRequestDuration("/scores", "POST", "201", 3)
					UpdateQueueCapacity(100)
					UpdateQueueUtilization(0.03)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					RecordQueueProcessingLatency(1)
					UpdateWorkerActiveCount(1)
					UpdateWorkerIdleCount(3)
					RecordWorkerProcessingLatency(4)
					RecordWorkerError()
					RecordNotificationPublished("kafka")
					RecordPublishError("kafka")
					RecordErrorByComponent("engine", "store_unavailable")
					RecordErrorByEndpoint("/leaderboard", "GET", "bad_request")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
				}, ShouldNotPanic)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given concurrent recorders", t, func() {
		before := testutil.ToFloat64(globalManager.rankComputations)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				RecordRankComputation()
			}()
		}
		wg.Wait()

		So(testutil.ToFloat64(globalManager.rankComputations)-before, ShouldEqual, 50)
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordScoreRecorded()
		families, err := GetRegistry().Gather()

		So(err, ShouldBeNil)
		var names []string
		for _, f := range families {
			names = append(names, f.GetName())
		}
		So(strings.Join(names, ","), ShouldContainSubstring, "highscore_leaderboard_scores_recorded_total")
	})
}

func TestInit(t *testing.T) {
	Convey("Given Init with constant labels", t, func() {
		Init(WithConstLabels(map[string]string{"ranked_store": "memory"}), WithRefreshInterval(time.Second))
		defer Init()

		RecordScoreRecorded()
		families, err := GetRegistry().Gather()
		So(err, ShouldBeNil)

		var labelled bool
		for _, f := range families {
			if f.GetName() == "highscore_leaderboard_scores_recorded_total" {
				for _, l := range f.GetMetric()[0].GetLabel() {
					if l.GetName() == "ranked_store" && l.GetValue() == "memory" {
						labelled = true
					}
				}
			}
		}
		So(labelled, ShouldBeTrue)
		So(RefreshInterval(), ShouldEqual, time.Second)
	})
}
