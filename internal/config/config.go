package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures credentials, timeline watermarks, storage locations and the
// poll cadence.
type Config struct {
	General      GeneralConfig      `yaml:"general"`
	Credentials  CredentialsConfig  `yaml:"credentials"`
	HomeTimeline HomeTimelineConfig `yaml:"homeTimeline"`
	Storage      StorageConfig      `yaml:"storage"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type GeneralConfig struct {
	// Time between successful polls.
	PollInterval time.Duration `yaml:"pollInterval"`
	// Time between attempts after a failed poll. Must be shorter than PollInterval.
	RetryDelay time.Duration `yaml:"retryDelay"`
	// How often the consumer drains fetched batches into the timeline.
	DrainInterval time.Duration `yaml:"drainInterval"`
	// Twitter v1.1 API root, overridable for testing against a stub.
	APIBaseURL string `yaml:"apiBaseURL"`
}

type CredentialsConfig struct {
	// OAuth1.0a credentials for v1.1 timelines.
	// Empty fields are filled from X_CONSUMER_KEY and friends.
	ConsumerKey    string `yaml:"consumerKey" env:"X_CONSUMER_KEY"`
	ConsumerSecret string `yaml:"consumerSecret" env:"X_CONSUMER_SECRET"`
	AccessToken    string `yaml:"accessToken" env:"X_ACCESS_TOKEN"`
	AccessSecret   string `yaml:"accessSecret" env:"X_ACCESS_SECRET"`
}

// Complete reports whether all four OAuth values are present.
func (c CredentialsConfig) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

type HomeTimelineConfig struct {
	// Newest tweet id already fetched; 0 means none.
	LastUpdateID uint64 `yaml:"lastUpdateId"`
	// Highest tweet id the user has read.
	LastReadID uint64 `yaml:"lastReadId"`
	// Maximum number of entries retained in the timeline.
	Limit int `yaml:"limit"`
	// count parameter of each request.
	PageSize int `yaml:"pageSize"`
	// Screen names hidden by `show`.
	Muted      []string `yaml:"muted"`
	UnreadOnly bool     `yaml:"unreadOnly"`
}

type StorageConfig struct {
	// Timeline JSON file; defaults to {cacheDir}/home_timeline.v1.json.
	TimelinePath string `yaml:"timelinePath"`
	// Directory holding avatars.
	ImageCacheDir string `yaml:"imageCacheDir"`
	// 0 keeps every avatar ever fetched.
	ImageCacheMaxEntries int `yaml:"imageCacheMaxEntries"`
	// SQLite file receiving evicted entries; empty disables the archive.
	ArchivePath string `yaml:"archivePath"`
}

type MetricsConfig struct {
	// Listen address for /metrics and /healthz (and, under `run`, the
	// /read/{id} and /refresh control routes); empty disables the server.
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Format string `yaml:"format"` // "json" or "text"
	Level  string `yaml:"level"`
}

const (
	DefaultAPIBaseURL = "https://api.twitter.com/1.1"
	timelineFileName  = "home_timeline.v1.json"
)

// Default returns a sensible default configuration rooted at the user's
// config and cache directories.
func Default() Config {
	cacheDir := defaultCacheDir()
	return Config{
		General: GeneralConfig{
			PollInterval:  600 * time.Second,
			RetryDelay:    60 * time.Second,
			DrainInterval: 10 * time.Second,
			APIBaseURL:    DefaultAPIBaseURL,
		},
		HomeTimeline: HomeTimelineConfig{Limit: 1000, PageSize: 200},
		Storage: StorageConfig{
			TimelinePath:  filepath.Join(cacheDir, timelineFileName),
			ImageCacheDir: filepath.Join(cacheDir, "images"),
		},
		Logging: LoggingConfig{Format: "text", Level: "info"},
	}
}

// DefaultPath is ~/.config/nestling/config.yaml, or ./config.yaml when the
// user config directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "nestling", "config.yaml")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".nestling"
	}
	return filepath.Join(dir, "nestling")
}

// ResolveEnv fills empty credentials from the environment.
func (c *Config) ResolveEnv(ctx context.Context) error {
	return c.resolveEnv(ctx, envconfig.OsLookuper())
}

func (c *Config) resolveEnv(ctx context.Context, l envconfig.Lookuper) error {
	// Values already present in the file are not overwritten.
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c.Credentials,
		Lookuper: l,
	}); err != nil {
		return fmt.Errorf("credentials from env: %w", err)
	}
	return nil
}

// Validate rejects configurations the poll loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.HomeTimeline.Limit <= 0 {
		errs = append(errs, fmt.Errorf("homeTimeline.limit must be positive, got %d", c.HomeTimeline.Limit))
	}
	if c.HomeTimeline.PageSize <= 0 || c.HomeTimeline.PageSize > 200 {
		errs = append(errs, fmt.Errorf("homeTimeline.pageSize must be in 1..200, got %d", c.HomeTimeline.PageSize))
	}
	if c.General.PollInterval <= 0 {
		errs = append(errs, errors.New("general.pollInterval must be positive"))
	}
	if c.General.RetryDelay <= 0 || c.General.RetryDelay >= c.General.PollInterval {
		errs = append(errs, fmt.Errorf("general.retryDelay (%s) must be positive and shorter than pollInterval (%s)",
			c.General.RetryDelay, c.General.PollInterval))
	}
	if c.General.DrainInterval <= 0 {
		errs = append(errs, errors.New("general.drainInterval must be positive"))
	}
	if c.Storage.TimelinePath == "" {
		errs = append(errs, errors.New("storage.timelinePath is required"))
	}
	if c.Storage.ImageCacheDir == "" {
		errs = append(errs, errors.New("storage.imageCacheDir is required"))
	}
	if c.Storage.ImageCacheMaxEntries < 0 {
		errs = append(errs, errors.New("storage.imageCacheMaxEntries must not be negative"))
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Load reads YAML config from path. Fields absent from the file keep their
// defaults.
func Load(ctx context.Context, path string) (Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ResolveEnv(ctx); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// readFile decodes path over the defaults without consulting the
// environment.
func readFile(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrCreate loads path, writing the default configuration there first if
// the file does not exist yet.
func LoadOrCreate(ctx context.Context, path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(path, Default()); err != nil {
			return Config{}, err
		}
	}
	return Load(ctx, path)
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
