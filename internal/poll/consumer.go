package poll

import (
	"context"
	"log/slog"
	"time"

	"nestling/internal/config"
	"nestling/internal/metrics"
	"nestling/internal/model"
	"nestling/internal/timeline"
)

// Archiver receives entries evicted from the timeline.
type Archiver interface {
	Put(ctx context.Context, entries []model.Entry) error
}

type ConsumerConfig struct {
	DrainInterval time.Duration
	// Optional.
	Archive Archiver
	// OnUpdate is called with the entries a batch added, newest first.
	OnUpdate func(ctx context.Context, added []model.Entry)
}

// Consumer drains fetched batches into the store on a fixed tick.
type Consumer struct {
	store *timeline.Store
	in    <-chan []model.Entry
	marks *config.Watermarks
	cfg   ConsumerConfig
}

func NewConsumer(store *timeline.Store, in <-chan []model.Entry, marks *config.Watermarks, cfg ConsumerConfig) *Consumer {
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 10 * time.Second
	}
	return &Consumer{store: store, in: in, marks: marks, cfg: cfg}
}

// Drain merges every batch currently queued without blocking and returns
// how many batches it applied.
func (c *Consumer) Drain(ctx context.Context) int {
	n := 0
	for {
		select {
		case batch := <-c.in:
			c.apply(ctx, batch)
			n++
		default:
			return n
		}
	}
}

func (c *Consumer) apply(ctx context.Context, batch []model.Entry) {
	res := c.store.MergeAndEvict(batch, c.marks.Limit())
	metrics.EntriesMerged.Add(float64(len(res.Added)))
	metrics.EntriesEvicted.Add(float64(len(res.Evicted)))
	metrics.SetTimeline(c.store.Len(), c.store.UnreadCount())

	if len(res.Evicted) > 0 && c.cfg.Archive != nil {
		if err := c.cfg.Archive.Put(ctx, res.Evicted); err != nil {
			slog.ErrorContext(ctx, "archive evicted entries", "count", len(res.Evicted), "error", err)
		}
	}
	slog.DebugContext(ctx, "merged batch", "batch", len(batch), "added", len(res.Added), "evicted", len(res.Evicted))
	if len(res.Added) > 0 && c.cfg.OnUpdate != nil {
		c.cfg.OnUpdate(ctx, res.Added)
	}
}

// Run drains on every tick until ctx is cancelled, then drains once more so
// batches whose ids already advanced the watermark are not lost.
func (c *Consumer) Run(ctx context.Context) error {
	t := time.NewTicker(c.cfg.DrainInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Drain(context.WithoutCancel(ctx))
			return nil
		case <-t.C:
			c.Drain(ctx)
		}
	}
}
