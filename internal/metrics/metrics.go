package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentimetry_pipeline_build_info",
		Help: "Build information of the sentiment pipeline",
	}, []string{"version", "commit", "date"})

	PartitionRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_partition_runs_total", Help: "Total partition runs by status.",
	}, []string{"status"})
	PartitionRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentimetry_pipeline_partition_run_duration_seconds",
		Help:    "Duration of one full partition run in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	PartitionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentimetry_pipeline_partitions_in_flight", Help: "Partition runs currently being processed.",
	})

	TweetsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_tweets_processed_total", Help: "Total tweets scored and written.",
	})
	TweetsMalformedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_tweets_malformed_total", Help: "Total raw records excluded as malformed.",
	})
	TweetsFilteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_tweets_filtered_total", Help: "Total raw records excluded by feed filters.",
	}, []string{"filter"})
	ClassifierCacheOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_classifier_cache_outcomes_total", Help: "Classifier memo cache outcomes.",
	}, []string{"result"})

	AggregateRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_aggregate_refresh_total", Help: "Aggregate partition refreshes by outcome.",
	}, []string{"aggregate", "status"})
	AggregateRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentimetry_pipeline_aggregate_refresh_duration_seconds",
		Help:    "Duration of one aggregate partition refresh in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"aggregate"})

	RunEventProduceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_run_event_produce_outcomes_total", Help: "Run events produced to Kafka by outcome.",
	}, []string{"result"})

	ExportRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_export_runs_total", Help: "Export runs by sink and outcome.",
	}, []string{"sink", "status"})
	ExportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_export_rows_total", Help: "Rows written per export sink.",
	}, []string{"sink"})

	ProcessedDataAgeHours = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentimetry_pipeline_processed_data_age_hours", Help: "Hours since the newest processed partition run.",
	})
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_alerts_sent_total", Help: "Freshness alerts sent by outcome.",
	}, []string{"status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentimetry_pipeline_http_requests_total", Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentimetry_pipeline_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentimetry_pipeline_http_requests_in_flight", Help: "Number of HTTP requests currently being processed",
	})
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}
