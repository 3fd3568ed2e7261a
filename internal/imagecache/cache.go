// Package imagecache resolves remote image URLs (profile avatars) to local
// files. Files are named by the SHA-256 of the URL and, once written, are
// trusted for the life of the cache directory.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"nestling/internal/metrics"
	"nestling/internal/model"
)

const (
	defaultMaxBytes = 5 << 20
	defaultTimeout  = 15 * time.Second
	tempPrefix      = ".download-"
)

// Resolver is what renderers need from the cache.
type Resolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// Cache is a flat directory of downloaded images.
type Cache struct {
	dir        string
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger

	group singleflight.Group
	// recent is nil when the cache is unbounded.
	recent *lru.Cache[string, string]
}

type Option func(*Cache)

// WithHTTPClient replaces the download client.
func WithHTTPClient(c *http.Client) Option { return func(ic *Cache) { ic.httpClient = c } }

// WithMaxBytes caps the size of a single downloaded image.
func WithMaxBytes(n int64) Option { return func(ic *Cache) { ic.maxBytes = n } }

func WithLogger(l *slog.Logger) Option { return func(ic *Cache) { ic.logger = l } }

// WithMaxEntries bounds the directory to n files, removing the least recently
// resolved file first. n <= 0 leaves the cache unbounded.
func WithMaxEntries(n int) Option {
	return func(ic *Cache) {
		if n <= 0 {
			return
		}
		recent, err := lru.NewWithEvict[string, string](n, func(_ string, path string) {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				ic.logger.Warn("image cache eviction failed", "path", path, "error", err)
			}
		})
		if err == nil {
			ic.recent = recent
		}
	}
}

// New opens (creating if needed) the cache directory.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("empty image cache dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image cache dir: %w", err)
	}
	c := &Cache{
		dir:        dir,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxBytes:   defaultMaxBytes,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.recent != nil {
		if err := c.index(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Cache) Dir() string { return c.dir }

// Key is the hex SHA-256 of the URL bytes.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Path is where url is (or would be) cached.
func (c *Cache) Path(url string) string { return filepath.Join(c.dir, Key(url)) }

// Resolve returns the local path for url, downloading it on a miss.
// Download failures are returned as *model.FetchError and are never retried
// here; callers render a placeholder and try again on a later pass.
//
// Concurrent callers for one URL share a single download. The download is
// detached from any one caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (c *Cache) Resolve(ctx context.Context, url string) (string, error) {
	key := Key(url)
	path := filepath.Join(c.dir, key)
	if c.present(key, path) {
		metrics.ImageCacheHits.Inc()
		return path, nil
	}

	dl := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return nil, c.fill(dl, url, key, path)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return path, nil
	case <-ctx.Done():
		return "", &model.FetchError{URL: url, Err: ctx.Err()}
	}
}

// fill downloads url to path unless another caller stored it while this one
// waited for the download slot.
func (c *Cache) fill(ctx context.Context, url, key, path string) error {
	if c.present(key, path) {
		metrics.ImageCacheHits.Inc()
		return nil
	}
	metrics.ImageCacheMisses.Inc()
	if err := c.download(ctx, url, path); err != nil {
		metrics.ImageCacheErrors.Inc()
		return err
	}
	if c.recent != nil {
		c.recent.Add(key, path)
	}
	return nil
}

func (c *Cache) present(key, path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if c.recent != nil {
		if _, ok := c.recent.Get(key); !ok {
			c.recent.Add(key, path)
		}
	}
	return true
}

func (c *Cache) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &model.FetchError{URL: url, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &model.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &model.FetchError{URL: url, Status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(c.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create image temp file: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, c.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > c.maxBytes {
		err = fmt.Errorf("image larger than %d bytes", c.maxBytes)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return &model.FetchError{URL: url, Status: resp.StatusCode, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("store image: %w", err)
	}
	c.logger.Debug("image cached", "url", url, "path", path, "bytes", n)
	return nil
}

// index seeds the recency list from the files already on disk, oldest
// modification first, trimming the directory to the bound.
func (c *Cache) index() error {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read image cache dir: %w", err)
	}
	type file struct {
		name string
		mod  time.Time
	}
	files := make([]file, 0, len(des))
	for _, de := range des {
		if de.IsDir() {
			continue
		}
		if strings.HasPrefix(de.Name(), tempPrefix) {
			_ = os.Remove(filepath.Join(c.dir, de.Name()))
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, file{name: de.Name(), mod: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files {
		c.recent.Add(f.name, filepath.Join(c.dir, f.name))
	}
	return nil
}

var _ Resolver = (*Cache)(nil)
