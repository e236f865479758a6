package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// PHOTO_TRIAGE_LIBRARY_ROOT_DIR
const EnvPrefix = "PHOTO_TRIAGE"

// Config represents the entire application configuration
type Config struct {
	Library     LibraryConfig     `mapstructure:"library"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Index       IndexConfig       `mapstructure:"index"`
	Selector    SelectorConfig    `mapstructure:"selector"`
	Thumbnail   ThumbnailConfig   `mapstructure:"thumbnail"`
	Ranks       RanksConfig       `mapstructure:"ranks"`
	Watch       WatchConfig       `mapstructure:"watch"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// LibraryConfig locates the photo library on disk
type LibraryConfig struct {
	RootDir      string `mapstructure:"root_dir"`
	ThumbnailDir string `mapstructure:"thumbnail_dir"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// IndexConfig contains reconciliation settings
type IndexConfig struct {
	BatchSize       int `mapstructure:"batch_size"`
	ScanConcurrency int `mapstructure:"scan_concurrency"`
}

// SelectorConfig contains random selection settings
type SelectorConfig struct {
	SortedProbability float64        `mapstructure:"sorted_probability"`
	SortedWeights     map[string]int `mapstructure:"sorted_weights"` // rank -> weight
	MaxAttempts       int            `mapstructure:"max_attempts"`
	ReconcileTimeout  string         `mapstructure:"reconcile_timeout"`
}

// ThumbnailConfig contains thumbnail generation settings
type ThumbnailConfig struct {
	Size    int `mapstructure:"size"`
	Quality int `mapstructure:"quality"`
}

// RanksConfig contains folder aggregation settings
type RanksConfig struct {
	MaxDepth int `mapstructure:"max_depth"` // 0 = unlimited
}

// WatchConfig contains library watcher settings
type WatchConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Debounce    string `mapstructure:"debounce"`
	MinInterval string `mapstructure:"min_interval"`
}

// MaintenanceConfig contains periodic job settings
type MaintenanceConfig struct {
	ReconcileInterval string `mapstructure:"reconcile_interval"`
	CleanupInterval   string `mapstructure:"cleanup_interval"`
	TempFileMaxAge    string `mapstructure:"temp_file_max_age"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"root":      "library.root_dir",
	"db":        "database.path",
	"addr":      "http.bind_addr",
	"log-level": "logging.level",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("library.root_dir", "./photos")
	v.SetDefault("library.thumbnail_dir", "")
	v.SetDefault("database.path", "")
	v.SetDefault("index.batch_size", 200)
	v.SetDefault("index.scan_concurrency", 4)
	v.SetDefault("selector.sorted_probability", 0.2)
	v.SetDefault("selector.sorted_weights", map[string]int{"1": 0, "2": 20, "3": 30, "4": 30, "5": 20})
	v.SetDefault("selector.max_attempts", 5)
	v.SetDefault("selector.reconcile_timeout", "3s")
	v.SetDefault("thumbnail.size", 160)
	v.SetDefault("thumbnail.quality", 70)
	v.SetDefault("ranks.max_depth", 0)
	v.SetDefault("watch.enabled", true)
	v.SetDefault("watch.debounce", "2s")
	v.SetDefault("watch.min_interval", "10s")
	v.SetDefault("maintenance.reconcile_interval", "10m")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.temp_file_max_age", "1h")
	v.SetDefault("http.bind_addr", "0.0.0.0:3000")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("http.idle_timeout", "120s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load loads configuration from the specified file path, environment
// variables and command line flags. An empty path skips the file; flags may
// be nil
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Library.RootDir == "" {
		return fmt.Errorf("library.root_dir is required")
	}

	if c.Index.BatchSize < 1 {
		return fmt.Errorf("index.batch_size must be positive")
	}
	if c.Index.ScanConcurrency < 1 || c.Index.ScanConcurrency > 64 {
		return fmt.Errorf("index.scan_concurrency must be between 1 and 64")
	}

	if c.Selector.SortedProbability < 0 || c.Selector.SortedProbability > 1 {
		return fmt.Errorf("selector.sorted_probability must be between 0 and 1")
	}
	if _, err := c.Selector.Weights(); err != nil {
		return err
	}
	if c.Selector.MaxAttempts < 1 {
		return fmt.Errorf("selector.max_attempts must be positive")
	}

	if c.Thumbnail.Size < 16 || c.Thumbnail.Size > 1024 {
		return fmt.Errorf("thumbnail.size must be between 16 and 1024")
	}
	if c.Thumbnail.Quality < 1 || c.Thumbnail.Quality > 100 {
		return fmt.Errorf("thumbnail.quality must be between 1 and 100")
	}

	if c.Ranks.MaxDepth < 0 {
		return fmt.Errorf("ranks.max_depth must not be negative")
	}

	durations := map[string]string{
		"selector.reconcile_timeout":     c.Selector.ReconcileTimeout,
		"watch.debounce":                 c.Watch.Debounce,
		"watch.min_interval":             c.Watch.MinInterval,
		"maintenance.reconcile_interval": c.Maintenance.ReconcileInterval,
		"maintenance.cleanup_interval":   c.Maintenance.CleanupInterval,
		"maintenance.temp_file_max_age":  c.Maintenance.TempFileMaxAge,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// DatabasePath returns the index database path, defaulting to a file in the
// library root
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Library.RootDir, ".photo-triage.db")
}

// Weights returns the sorted bucket weights keyed by rank. Ranks must be
// 1..5, weights non-negative and summing to 100, and rank 1 is never sampled
func (c *SelectorConfig) Weights() (map[int]int, error) {
	weights := make(map[int]int, len(c.SortedWeights))
	sum := 0
	for key, w := range c.SortedWeights {
		rank, err := strconv.Atoi(key)
		if err != nil || rank < 1 || rank > 5 {
			return nil, fmt.Errorf("selector.sorted_weights: invalid rank %q", key)
		}
		if w < 0 {
			return nil, fmt.Errorf("selector.sorted_weights: negative weight for rank %d", rank)
		}
		weights[rank] = w
		sum += w
	}
	if weights[1] != 0 {
		return nil, fmt.Errorf("selector.sorted_weights: rank 1 must have weight 0")
	}
	if sum != 100 {
		return nil, fmt.Errorf("selector.sorted_weights must sum to 100, got %d", sum)
	}
	return weights, nil
}

// GetReconcileTimeout returns the fallback reconcile timeout as time.Duration
func (c *SelectorConfig) GetReconcileTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReconcileTimeout)
	if d == 0 {
		return 3 * time.Second
	}
	return d
}

// GetDebounce returns the watcher debounce delay as time.Duration
func (c *WatchConfig) GetDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Debounce)
	if d == 0 {
		return 2 * time.Second
	}
	return d
}

// GetMinInterval returns the minimum time between watcher-triggered passes
func (c *WatchConfig) GetMinInterval() time.Duration {
	d, _ := time.ParseDuration(c.MinInterval)
	if d == 0 {
		return 10 * time.Second
	}
	return d
}

// GetReconcileInterval returns the periodic reconcile interval as time.Duration
func (c *MaintenanceConfig) GetReconcileInterval() time.Duration {
	d, _ := time.ParseDuration(c.ReconcileInterval)
	if d == 0 {
		return 10 * time.Minute
	}
	return d
}

// GetCleanupInterval returns the thumbnail cleanup interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	d, _ := time.ParseDuration(c.CleanupInterval)
	if d == 0 {
		return time.Hour
	}
	return d
}

// GetTempFileMaxAge returns the age after which temp files are removed
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.TempFileMaxAge)
	if d == 0 {
		return time.Hour
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 120 * time.Second
	}
	return d
}
