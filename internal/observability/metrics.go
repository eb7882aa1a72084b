package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridprofile_source_fetch_total",
		Help: "Per-date resource fetches by resource and outcome",
	}, []string{"resource", "outcome"})

	PayloadRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridprofile_payload_repairs_total",
		Help: "Payloads that only parsed after textual repair",
	})

	MonthlyBuildSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridprofile_monthly_build_seconds",
		Help:    "Duration of the one-time monthly profile build",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	MonthlyDaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridprofile_monthly_days_total",
		Help: "Days attempted by the monthly build, by outcome",
	}, []string{"outcome"})

	ViewRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gridprofile_view_refresh_total",
		Help: "View refreshes by view, mode and final status",
	}, []string{"view", "mode", "status"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gridprofile_sessions_active",
		Help: "Number of live view sessions",
	})
)
