// Package poll moves tweets from the API into the timeline: a Scheduler
// fetches batches on a fixed cadence and a Consumer merges them.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"nestling/internal/config"
	"nestling/internal/logging"
	"nestling/internal/metrics"
	"nestling/internal/model"
	"nestling/internal/xclient"
)

// State is the scheduler's observable phase.
type State int32

const (
	Idle State = iota
	Fetching
)

func (s State) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

type SchedulerConfig struct {
	Interval   time.Duration
	RetryDelay time.Duration
	PageSize   int
}

// Scheduler periodically fetches the home timeline since the last fetched
// id and hands each non-empty batch to the consumer.
type Scheduler struct {
	fetcher xclient.HomeTimelineFetcher
	marks   *config.Watermarks
	out     chan<- []model.Entry
	cfg     SchedulerConfig
	state   atomic.Int32
}

func NewScheduler(f xclient.HomeTimelineFetcher, marks *config.Watermarks, out chan<- []model.Entry, cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Interval <= 0 || cfg.RetryDelay <= 0 {
		return nil, errors.New("poll interval and retry delay must be positive")
	}
	if cfg.RetryDelay >= cfg.Interval {
		return nil, errors.New("retry delay must be shorter than the poll interval")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	return &Scheduler{fetcher: f, marks: marks, out: out, cfg: cfg}, nil
}

func (s *Scheduler) State() State { return State(s.state.Load()) }

// PollOnce performs one fetch. A batch is handed off only when it holds at
// least one entry, and the fetch watermark moves only after the handoff.
func (s *Scheduler) PollOnce(ctx context.Context) error {
	s.state.Store(int32(Fetching))
	defer s.state.Store(int32(Idle))

	ctx = logging.Ctx(ctx, slog.String("poll_id", uuid.NewString()))
	start := time.Now()
	metrics.Polls.Inc()
	defer metrics.ObservePollDuration(start)

	since := s.marks.LastUpdateID()
	batch, err := s.fetcher.HomeTimeline(ctx, since, s.cfg.PageSize)
	if err != nil {
		metrics.PollErrors.Inc()
		return err
	}
	if len(batch) == 0 {
		slog.DebugContext(ctx, "no new tweets", "since_id", since)
		return nil
	}
	newest := batch[0].ID()
	for _, e := range batch[1:] {
		if e.ID() > newest {
			newest = e.ID()
		}
	}

	select {
	case s.out <- batch:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.marks.SetLastUpdateID(newest)
	slog.InfoContext(ctx, "fetched tweets", "count", len(batch), "since_id", since, "newest_id", newest)
	return nil
}

// Run polls until ctx is cancelled. Failed polls are retried every
// RetryDelay without limit; successful ones wait Interval.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "poll loop started", "interval", s.cfg.Interval, "retry_delay", s.cfg.RetryDelay)
	for {
		err := retry.Do(ctx, retry.NewConstant(s.cfg.RetryDelay), func(ctx context.Context) error {
			if err := s.PollOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return err
				}
				slog.WarnContext(ctx, "poll failed", "error", err, "retry_in", s.cfg.RetryDelay)
				return retry.RetryableError(err)
			}
			return nil
		})
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "poll loop stopped")
			return nil
		}
		if err != nil {
			return err
		}

		t := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			slog.InfoContext(ctx, "poll loop stopped")
			return nil
		case <-t.C:
		}
	}
}
