package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManager(t *testing.T) {
	Convey("Given a metrics manager with an isolated registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(
			WithPrometheusRegistry(registry),
			WithNamespace("test"),
			WithSubsystem("arena"),
			WithConstLabels(map[string]string{"run": "r1"}),
		)

		Convey("It should carry the configured options", func() {
			So(m.namespace, ShouldEqual, "test")
			So(m.subsystem, ShouldEqual, "arena")
			So(m.constLabels["run"], ShouldEqual, "r1")
			So(m.histogramBuckets, ShouldNotBeEmpty)
		})

		Convey("It should register its collectors with the registry", func() {
			m.bids.WithLabelValues("accepted").Inc()
			m.rounds.WithLabelValues("sold").Inc()
			families, err := registry.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})

		Convey("Empty options should keep defaults", func() {
			d := NewManager(
				WithPrometheusRegistry(prometheus.NewRegistry()),
				WithNamespace(""),
				WithHistogramBuckets(nil),
			)
			So(d.namespace, ShouldEqual, "bidarena")
			So(len(d.histogramBuckets), ShouldEqual, 11)
		})
	})
}

func TestPackageHelpers(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("Recording helpers should not panic", func() {
			So(func() {
				RecordSandboxCall("produce_bid", "ok", 1.5)
				AddAbandonedCalls(1)
				AddAbandonedCalls(-1)
				RecordBid("capped")
				RecordRound("sold", 7.25)
				RecordRound("unsold", 0)
				RecordGame("1", 120)
				AddActiveGames(1)
				AddActiveGames(-1)
				UpdateRegisteredTeams(20)
				RecordStageCompleted("1")
				RecordSinkRecord("outcome", "ok")
				UpdateQueueSize(3)
				UpdateQueueCapacity(100)
				RecordQueueRejected()
				RecordWorkerProcessingLatency(2)
				UpdateStandingsRecorded(20)
				RecordHTTPRequest("/leaderboard", "GET", "200")
				RecordHTTPRequestDuration("/leaderboard", "GET", "200", 0.4)
				RecordErrorByComponent("sandbox", "timeout")
			}, ShouldNotPanic)
		})

		Convey("Counters should accumulate on the custom registry", func() {
			before := testutil.ToFloat64(globalManager.bids.WithLabelValues("invalid"))
			RecordBid("invalid")
			RecordBid("invalid")
			So(testutil.ToFloat64(globalManager.bids.WithLabelValues("invalid")), ShouldEqual, before+2)
		})

		Convey("Gauges should reflect the last value set", func() {
			UpdateRegisteredTeams(7)
			So(testutil.ToFloat64(globalManager.registeredTeam), ShouldEqual, 7)
		})

		Convey("GetRegistry should expose the custom registry", func() {
			So(GetRegistry(), ShouldNotBeNil)
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
