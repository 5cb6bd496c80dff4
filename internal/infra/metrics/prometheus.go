package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roop_jobs_processed_total",
		Help: "Total number of jobs processed, by outcome",
	}, []string{"status"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roop_phase_duration_seconds",
		Help:    "Duration of each orchestrator phase",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"phase"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roop_frames_extracted_total",
		Help: "Total number of frames extracted across all jobs",
	})

	FramesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roop_frames_processed_total",
		Help: "Total number of frames rewritten, by processor",
	}, []string{"processor"})

	WorkspaceDiscardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roop_workspace_discards_total",
		Help: "Workspaces discarded, by exit path",
	}, []string{"reason"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "roop_active_jobs",
		Help: "Number of jobs currently being orchestrated",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roop_retry_total",
		Help: "Total number of queued job retries",
	}, []string{"attempt"})
)
