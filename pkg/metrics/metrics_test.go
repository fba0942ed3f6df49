package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithPrometheusRegistry(registry),
				WithNamespace("test"),
				WithSubsystem("decoder"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"event": "2023cada"}),
			)

			Convey("Then collectors are registered under the custom names", func() {
				So(m, ShouldNotBeNil)
				m.qrsReceived.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				var found bool
				for _, f := range families {
					if f.GetName() == "test_decoder_qrs_received_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetValue(), ShouldEqual, "2023cada")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When registering two managers on the same registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording decode outcomes", func() {
			before := testutil.ToFloat64(globalManager.recordsDecoded.WithLabelValues("objective"))
			RecordDecoded("objective", 3)
			RecordDecodeFailure("schema_version")
			RecordEntitySkipped()
			RecordPass(12.5, 4)

			Convey("Then counters move", func() {
				So(testutil.ToFloat64(globalManager.recordsDecoded.WithLabelValues("objective")), ShouldEqual, before+3)
				So(testutil.ToFloat64(globalManager.decodeFailures.WithLabelValues("schema_version")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When recording pipeline gauges", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(4)
			UpdateStoreDocuments("raw_qr", 12)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.storeDocuments.WithLabelValues("raw_qr")), ShouldEqual, 12)
			})
		})

		Convey("When recording the rest", func() {
			RecordQRReceived()
			RecordQRDuplicate()
			RecordQRInvalid()
			RecordMerge()
			RecordMergeConflict("drivetrain")
			RecordAuditWarning("missing_observer")
			RecordQueueEnqueueError()
			RecordWorkerProcessingLatency(2)
			RecordWorkerError()
			RecordStoreError("insert")
			RecordHTTPRequest("qrs", "POST", "202")
			RecordHTTPRequestDuration("qrs", "POST", "202", 3)

			Convey("Then the registry gathers without error", func() {
				_, err := GetRegistry().Gather()
				So(err, ShouldBeNil)
				So(testutil.ToFloat64(globalManager.mergeConflicts.WithLabelValues("drivetrain")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})
	})
}
