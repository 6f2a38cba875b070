package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PromptsEnqueued          = prometheus.NewCounter(prometheus.CounterOpts{Name: "sdqueue_prompts_enqueued_total", Help: "Prompt files published to the queue"})
	RateLimitRejects         = prometheus.NewCounter(prometheus.CounterOpts{Name: "sdqueue_rate_limit_rejects_total", Help: "Enqueue requests rejected by rate limiter"})
	GenerationSuccess        = prometheus.NewCounter(prometheus.CounterOpts{Name: "sdqueue_generations_completed_total", Help: "Queue items generated and archived"})
	GenerationFailures       = prometheus.NewCounter(prometheus.CounterOpts{Name: "sdqueue_generations_failed_total", Help: "Queue items left in the queue after a failed generation"})
	ArchiveFailures          = prometheus.NewCounter(prometheus.CounterOpts{Name: "sdqueue_archive_failures_total", Help: "Generated items whose source file could not be archived"})
	ProgressConnectionErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "sdqueue_progress_connection_errors_total", Help: "Connection failures while polling progress"})
	QueueDepthGauge          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sdqueue_queue_depth", Help: "Pending prompt files seen by the last scan"})
	InFlightGauge            = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sdqueue_inflight", Help: "Generations currently awaiting the remote service"})
	ProgressGauge            = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sdqueue_generation_progress_ratio", Help: "Last reported progress of the in-flight generation"})
	ETAGauge                 = prometheus.NewGauge(prometheus.GaugeOpts{Name: "sdqueue_generation_eta_seconds", Help: "Last reported ETA of the in-flight generation"})
	GenerationDuration       = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sdqueue_generation_duration_seconds",
		Help:    "Wall time from submission to result",
		Buckets: []float64{5, 10, 20, 40, 80, 160, 320, 640},
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PromptsEnqueued,
			RateLimitRejects,
			GenerationSuccess,
			GenerationFailures,
			ArchiveFailures,
			ProgressConnectionErrors,
			QueueDepthGauge,
			InFlightGauge,
			ProgressGauge,
			ETAGauge,
			GenerationDuration,
		)
	})
	return promhttp.Handler()
}
