package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Polls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nestling_polls_total",
		Help: "Total home timeline polls",
	})
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nestling_poll_errors_total",
		Help: "Total failed home timeline polls",
	})
	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "nestling_poll_duration_seconds",
		Help:    "Home timeline poll duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	EntriesMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nestling_entries_merged_total",
		Help: "Entries newly added to the timeline",
	})
	EntriesEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nestling_entries_evicted_total",
		Help: "Entries dropped by the retention limit",
	})
	TimelineSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nestling_timeline_entries",
		Help: "Entries currently held in the timeline",
	})
	UnreadEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "nestling_timeline_unread_entries",
		Help: "Unread entries currently held in the timeline",
	})
	ImageCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nestling_image_cache_hits_total",
		Help: "Image resolutions served from disk",
	})
	ImageCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nestling_image_cache_misses_total",
		Help: "Image resolutions that required a download",
	})
	ImageCacheErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nestling_image_cache_errors_total",
		Help: "Failed image downloads",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nestling_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nestling_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nestling_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(
		Polls, PollErrors, PollDuration,
		EntriesMerged, EntriesEvicted, TimelineSize, UnreadEntries,
		ImageCacheHits, ImageCacheMisses, ImageCacheErrors,
		APIRetries, CommandRuns, CommandErrors,
	)
}

// Router serves /metrics and /healthz, plus whatever mounts add.
func Router(mounts ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	for _, m := range mounts {
		m(r)
	}
	return r
}

// Serve runs the metrics server on addr until ctx is cancelled.
// An empty addr disables it.
func Serve(ctx context.Context, addr string, mounts ...func(chi.Router)) error {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: Router(mounts...), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ObservePollDuration records a poll duration.
func ObservePollDuration(start time.Time) {
	PollDuration.Observe(time.Since(start).Seconds())
}

// SetTimeline publishes the current timeline size and unread count.
func SetTimeline(size, unread int) {
	TimelineSize.Set(float64(size))
	UnreadEntries.Set(float64(unread))
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
