package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestMetricsExposure(t *testing.T) {
	Polls.Inc()
	PollErrors.Inc()
	ImageCacheHits.Inc()
	IncAPIRetry("/1.1/statuses/home_timeline.json")
	IncCommandRun("show")
	SetTimeline(3, 1)
	ObservePollDuration(time.Now().Add(-1500 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"nestling_polls_total",
		"nestling_poll_errors_total",
		"nestling_poll_duration_seconds",
		"nestling_image_cache_hits_total",
		"nestling_api_retries_total",
		"nestling_command_runs_total",
		"nestling_timeline_entries 3",
		"nestling_timeline_unread_entries 1",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status: %d", rec.Code)
	}
}

func TestRouterMountsExtraRoutes(t *testing.T) {
	h := Router(func(r chi.Router) {
		r.Post("/ping", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("mounted route status: %d", rec.Code)
	}
}
