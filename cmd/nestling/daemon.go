package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nestling/internal/archive"
	"nestling/internal/config"
	"nestling/internal/metrics"
	"nestling/internal/model"
	"nestling/internal/poll"
	"nestling/internal/render"
	"nestling/internal/timeline"
	"nestling/internal/xclient"
)

// daemon owns the state shared by the poll loop, the consumer and the
// control routes for one process lifetime.
type daemon struct {
	cfg      config.Config
	store    *timeline.Store
	marks    *config.Watermarks
	archive  *archive.Archive
	sched    *poll.Scheduler
	consumer *poll.Consumer
}

// newDaemon loads the saved timeline, applies the retention limit and wires
// the scheduler to the consumer. A snapshot that cannot be read aborts
// startup.
func newDaemon(ctx context.Context, cfg config.Config, f xclient.HomeTimelineFetcher, printer *render.Printer) (*daemon, error) {
	seed, err := timeline.Load(cfg.Storage.TimelinePath)
	if err != nil {
		return nil, err
	}
	d := &daemon{
		cfg:   cfg,
		store: timeline.NewStore(seed),
		marks: config.NewWatermarks(cfg.HomeTimeline),
	}

	var arch poll.Archiver
	if cfg.Storage.ArchivePath != "" {
		a, err := archive.Open(cfg.Storage.ArchivePath)
		if err != nil {
			return nil, err
		}
		d.archive = a
		arch = a
	}
	if evicted := d.store.Evict(d.marks.Limit()); len(evicted) > 0 && arch != nil {
		if err := arch.Put(ctx, evicted); err != nil {
			slog.ErrorContext(ctx, "archive evicted entries", "count", len(evicted), "error", err)
		}
	}
	metrics.SetTimeline(d.store.Len(), d.store.UnreadCount())

	batches := make(chan []model.Entry, 16)
	d.sched, err = poll.NewScheduler(f, d.marks, batches, poll.SchedulerConfig{
		Interval:   cfg.General.PollInterval,
		RetryDelay: cfg.General.RetryDelay,
		PageSize:   cfg.HomeTimeline.PageSize,
	})
	if err != nil {
		d.close()
		return nil, err
	}
	d.consumer = poll.NewConsumer(d.store, batches, d.marks, poll.ConsumerConfig{
		DrainInterval: cfg.General.DrainInterval,
		Archive:       arch,
		OnUpdate: func(ctx context.Context, added []model.Entry) {
			if printer == nil {
				return
			}
			if err := printer.Print(ctx, added); err != nil {
				slog.WarnContext(ctx, "print new tweets", "error", err)
			}
		},
	})
	return d, nil
}

func (d *daemon) close() {
	if d.archive != nil {
		_ = d.archive.Close()
	}
}

// refresh fetches once and merges the result right away.
func (d *daemon) refresh(ctx context.Context) error {
	if err := d.sched.PollOnce(ctx); err != nil {
		return err
	}
	d.consumer.Drain(ctx)
	return nil
}

// shutdown merges any batch still queued, keeps read flags another process
// wrote to the snapshot since startup, then saves the timeline and the
// watermarks. Both saves are attempted; their failures are joined.
func (d *daemon) shutdown(ctx context.Context) error {
	d.consumer.Drain(ctx)

	path := d.cfg.Storage.TimelinePath
	if disk, err := timeline.Load(path); err != nil {
		slog.WarnContext(ctx, "re-read snapshot before save", "path", path, "error", err)
	} else if adopted := d.store.AdoptRead(disk); len(adopted) > 0 {
		slog.InfoContext(ctx, "kept read state from disk", "count", len(adopted))
	}

	slog.InfoContext(ctx, "saving timeline", "entries", d.store.Len(), "last_update_id", d.marks.LastUpdateID())
	var errs []error
	if err := timeline.Save(path, d.store.Snapshot()); err != nil {
		errs = append(errs, &model.PersistenceError{Path: path, Err: err})
	}
	if err := config.SaveWatermarks(configPath, d.marks); err != nil {
		errs = append(errs, fmt.Errorf("save config: %w", err))
	}
	return errors.Join(errs...)
}

// routes mounts the control endpoints on the metrics router:
//
//	POST /read/{id}  acknowledge one tweet
//	POST /refresh    fetch and merge now
func (d *daemon) routes(r chi.Router) {
	r.Post("/read/{id}", d.handleRead)
	r.Post("/refresh", d.handleRefresh)
}

type controlResponse struct {
	ID     string `json:"id,omitempty"`
	Unread int    `json:"unread"`
	Error  string `json:"error,omitempty"`
}

func (d *daemon) handleRead(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := model.ParseTweetID(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, controlResponse{ID: raw, Unread: d.store.UnreadCount(), Error: "invalid tweet id"})
		return
	}
	if !d.store.AcknowledgeRead(id) {
		writeJSON(w, http.StatusNotFound, controlResponse{ID: raw, Unread: d.store.UnreadCount(), Error: "tweet not in timeline"})
		return
	}
	d.marks.MarkRead(id)
	unread := d.store.UnreadCount()
	metrics.SetTimeline(d.store.Len(), unread)
	slog.InfoContext(r.Context(), "marked read", "id", id, "unread", unread)
	writeJSON(w, http.StatusOK, controlResponse{ID: id.String(), Unread: unread})
}

func (d *daemon) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := d.refresh(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "manual refresh failed", "error", err)
		writeJSON(w, http.StatusBadGateway, controlResponse{Unread: d.store.UnreadCount(), Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Unread: d.store.UnreadCount()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
