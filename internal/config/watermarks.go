package config

import (
	"errors"
	"os"
	"sync/atomic"

	"nestling/internal/model"
)

// Watermarks holds the timeline positions that change while the program
// runs. The poller advances LastUpdateID, the reader advances LastReadID, and
// both are written back to HomeTimelineConfig before the config is saved.
type Watermarks struct {
	lastUpdate atomic.Uint64
	lastRead   atomic.Uint64
	limit      atomic.Int64
}

func NewWatermarks(h HomeTimelineConfig) *Watermarks {
	w := &Watermarks{}
	w.lastUpdate.Store(h.LastUpdateID)
	w.lastRead.Store(h.LastReadID)
	w.limit.Store(int64(h.Limit))
	return w
}

func (w *Watermarks) LastUpdateID() model.TweetID { return model.TweetID(w.lastUpdate.Load()) }
func (w *Watermarks) LastReadID() model.TweetID   { return model.TweetID(w.lastRead.Load()) }
func (w *Watermarks) Limit() int                  { return int(w.limit.Load()) }

// SetLastUpdateID advances the fetch watermark. Smaller ids are ignored.
func (w *Watermarks) SetLastUpdateID(id model.TweetID) {
	advance(&w.lastUpdate, uint64(id))
}

// MarkRead advances the read watermark. Smaller ids are ignored.
func (w *Watermarks) MarkRead(id model.TweetID) {
	advance(&w.lastRead, uint64(id))
}

func advance(v *atomic.Uint64, id uint64) {
	for {
		cur := v.Load()
		if id <= cur || v.CompareAndSwap(cur, id) {
			return
		}
	}
}

// ApplyTo copies the current positions into h.
func (w *Watermarks) ApplyTo(h *HomeTimelineConfig) {
	h.LastUpdateID = w.lastUpdate.Load()
	h.LastReadID = w.lastRead.Load()
}

// SaveWatermarks rewrites the config file at path with the current
// positions. The file is re-read first so credentials taken from the
// environment are never written to disk, and positions already on disk
// that are further ahead are kept.
func SaveWatermarks(path string, w *Watermarks) error {
	cfg, err := readFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	w.SetLastUpdateID(model.TweetID(cfg.HomeTimeline.LastUpdateID))
	w.MarkRead(model.TweetID(cfg.HomeTimeline.LastReadID))
	w.ApplyTo(&cfg.HomeTimeline)
	return Save(path, cfg)
}
