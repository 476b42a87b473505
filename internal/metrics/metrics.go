package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the pipeline's instrumentation. One instance is built
// in main and injected wherever a stage needs to record something.
type Pipeline struct {
	RunsTotal     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	CacheReads    *prometheus.CounterVec
	FetchRetries  prometheus.Counter
}

func New(reg prometheus.Registerer) *Pipeline {
	f := promauto.With(reg)
	return &Pipeline{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "report_runs_total",
			Help: "Pipeline runs by terminal status.",
		}, []string{"status"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "report_stage_duration_seconds",
			Help:    "Time spent per pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "report_stage_failures_total",
			Help: "Stage failures by stage name.",
		}, []string{"stage"}),
		CacheReads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "report_cache_reads_total",
			Help: "Cache reads by result (hit, miss, degraded).",
		}, []string{"result"}),
		FetchRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "report_fetch_retries_total",
			Help: "Transient source fetch retries.",
		}),
	}
}

// Nop returns a Pipeline backed by a throwaway registry, for tests.
func Nop() *Pipeline { return New(prometheus.NewRegistry()) }
