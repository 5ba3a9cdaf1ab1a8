package metrics

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a fresh registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_ns"),
				WithSubsystem("test_sub"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithPrometheusRegistry(registry),
			)
			manager.casesCreated.Inc()

			Convey("Then collectors carry the custom names", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_ns_test_sub_created_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty option values are passed", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "whodunit")
				So(manager.subsystem, ShouldEqual, "cases")
				So(len(manager.histogramBuckets), ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics", t, func() {
		Convey("When recording lifecycle metrics", func() {
			before := testutil.ToFloat64(globalManager.transitions.WithLabelValues("Open", "Fabricating"))
			RecordTransition("Open", "Fabricating")
			RecordCaseCreated()
			RecordOperationFailure("assign_culprit", "conflict")
			RecordAssignmentConflict("culprit")
			UpdateCasesByStatus("Open", 3)
			RecordOperationLatency("assign_culprit", 0.4)

			Convey("Then the counters move", func() {
				after := testutil.ToFloat64(globalManager.transitions.WithLabelValues("Open", "Fabricating"))
				So(after-before, ShouldEqual, 1)
				So(testutil.ToFloat64(globalManager.activeCases.WithLabelValues("Open")), ShouldEqual, 3)
			})
		})

		Convey("When recording ledger and journal metrics", func() {
			So(func() {
				RecordScoreDelta("culprit_joined")
				UpdateLedgerUsers(12)
				RecordRankingRead()
				UpdateJournalQueueSize(4)
				UpdateJournalQueueCapacity(1024)
				RecordJournalEnqueued()
				RecordJournalDropped("queue_full")
				RecordJournalDuplicate()
				RecordJournalWrite()
				RecordJournalWriteError()
				UpdateJournalWorkers(2)
				UpdateSystemGoroutineCount(10)
				UpdateSystemMemoryUsage(1 << 20)
			}, ShouldNotPanic)
		})

		Convey("When recording HTTP metrics", func() {
			RecordHTTPRequest("leaderboard", "GET", "200")
			RecordHTTPRequestDuration("leaderboard", "GET", "200", 1.5)

			Convey("Then the registry exposes them", func() {
				count, err := testutil.GatherAndCount(GetRegistry(), "whodunit_http_requests_total")
				So(err, ShouldBeNil)
				So(count, ShouldBeGreaterThan, 0)
			})
		})
	})
}

func TestMetricsConcurrency(t *testing.T) {
	Convey("Given metrics recorded from many goroutines", t, func() {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					RecordJournalEnqueued()
					RecordScoreDelta("detective_correct")
					RecordHTTPRequest("/test", "GET", "200")
				}
			}()
		}
		wg.Wait()

		Convey("Then the exposition still renders", func() {
			err := testutil.GatherAndCompare(GetRegistry(), strings.NewReader(""), "whodunit_nonexistent_total")
			So(err, ShouldBeNil)
		})
	})
}
