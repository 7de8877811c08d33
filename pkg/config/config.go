// Package config provides hierarchical configuration for the indexer.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soilnet/ismn/internal/logger"
)

// Config holds all indexer configuration.
type Config struct {
	Version int `yaml:"version"`

	Build      BuildConfig      `yaml:"build"`
	Log        LogConfig        `yaml:"log"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Export     ExportConfig     `yaml:"export"`
	Publish    PublishConfig    `yaml:"publish"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// BuildConfig controls index construction.
type BuildConfig struct {
	Workers     int    `yaml:"workers"`      // 0 = one per CPU
	ScratchDir  string `yaml:"scratch_dir"`  // temporary extractions
	LogDir      string `yaml:"log_dir"`      // error log, defaults to the archive's parent
	TableSuffix string `yaml:"table_suffix"` // index table <archive><suffix> next to the archive
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // console | json
}

// CheckpointConfig selects where station scans are cached.
type CheckpointConfig struct {
	Backend string        `yaml:"backend"` // none | local | redis | both
	Dir     string        `yaml:"dir"`
	MaxAge  time.Duration `yaml:"max_age"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig for the redis checkpoint backend.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// ExportConfig controls table exports.
type ExportConfig struct {
	Compression  string `yaml:"compression"` // snappy | zstd | gzip | none
	RowGroupSize int64  `yaml:"row_group_size"`
}

// PublishConfig for uploading index artifacts to S3.
type PublishConfig struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TelemetryConfig for tracing and metrics.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sample_rate"`
	MetricsAddr string  `yaml:"metrics_addr"` // e.g. ":9090", empty disables
}

var (
	checkpointBackends = map[string]bool{"none": true, "local": true, "redis": true, "both": true}
	compressions       = map[string]bool{"snappy": true, "zstd": true, "gzip": true, "none": true}
)

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	ismnDir := filepath.Join(homeDir, ".ismn")

	return &Config{
		Version: 1,
		Build: BuildConfig{
			Workers:     0,
			ScratchDir:  filepath.Join(os.TempDir(), "ismn"),
			TableSuffix: ".index.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Checkpoint: CheckpointConfig{
			Backend: "none",
			Dir:     filepath.Join(ismnDir, "checkpoints"),
			MaxAge:  30 * 24 * time.Hour,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "ismn:checkpoints:",
				TTL:    7 * 24 * time.Hour,
			},
		},
		Export: ExportConfig{
			Compression:  "snappy",
			RowGroupSize: 64 * 1024,
		},
		Publish: PublishConfig{
			Prefix: "ismn",
			Region: "us-east-1",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Build.Workers < 0 {
		return fmt.Errorf("build.workers must not be negative, got %d", c.Build.Workers)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if !checkpointBackends[c.Checkpoint.Backend] {
		return fmt.Errorf("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	if !compressions[c.Export.Compression] {
		return fmt.Errorf("unknown export compression %q", c.Export.Compression)
	}
	if c.Export.RowGroupSize <= 0 {
		return fmt.Errorf("export.row_group_size must be positive, got %d", c.Export.RowGroupSize)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be in [0, 1], got %g", c.Telemetry.SampleRate)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	search []string // candidate files in priority order
	paths  []string // files that were loaded
}

// NewManager creates a configuration manager searching the system, user
// and project config files.
func NewManager() *Manager {
	return &Manager{config: Default(), search: defaultPaths()}
}

// NewManagerWithPaths creates a manager that only searches paths.
func NewManagerWithPaths(paths ...string) *Manager {
	return &Manager{config: Default(), search: paths}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			// Missing files are fine, broken ones are not.
			if !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", path, err)
			}
			continue
		}
		m.paths = append(m.paths, path)
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// LoadFile merges one explicit config file over the current configuration.
// Unlike the search paths, the file must exist.
func (m *Manager) LoadFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadFile(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	m.paths = append(m.paths, path)
	return m.config.Validate()
}

func defaultPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/ismn/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".ismn", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".ismn.yaml"))
	}
	return paths
}

// loadFile decodes path over a copy of the current config, so keys the file
// does not mention keep their values.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	merged := *m.config
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return err
	}
	m.config = &merged
	return nil
}

// loadEnv applies ISMN_* environment overrides.
func (m *Manager) loadEnv() error {
	c := m.config

	str := map[string]*string{
		"ISMN_SCRATCH_DIR":        &c.Build.ScratchDir,
		"ISMN_LOG_DIR":            &c.Build.LogDir,
		"ISMN_LOG_LEVEL":          &c.Log.Level,
		"ISMN_LOG_FORMAT":         &c.Log.Format,
		"ISMN_CHECKPOINT":         &c.Checkpoint.Backend,
		"ISMN_CHECKPOINT_DIR":     &c.Checkpoint.Dir,
		"ISMN_REDIS_ADDR":         &c.Checkpoint.Redis.Addr,
		"ISMN_REDIS_PASSWORD":     &c.Checkpoint.Redis.Password,
		"ISMN_S3_BUCKET":          &c.Publish.Bucket,
		"ISMN_S3_PREFIX":          &c.Publish.Prefix,
		"ISMN_S3_REGION":          &c.Publish.Region,
		"ISMN_S3_ENDPOINT":        &c.Publish.Endpoint,
		"ISMN_S3_ACCESS_KEY":      &c.Publish.AccessKey,
		"ISMN_S3_SECRET_KEY":      &c.Publish.SecretKey,
		"ISMN_OTLP_ENDPOINT":      &c.Telemetry.Endpoint,
		"ISMN_METRICS_ADDR":       &c.Telemetry.MetricsAddr,
		"ISMN_EXPORT_COMPRESSION": &c.Export.Compression,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ISMN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ISMN_WORKERS: %w", err)
		}
		c.Build.Workers = n
	}
	if v := os.Getenv("ISMN_TELEMETRY"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ISMN_TELEMETRY: %w", err)
		}
		c.Telemetry.Enabled = on
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Paths returns the files that were loaded.
func (m *Manager) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.paths...)
}

// SaveTo writes the current config to path.
func (m *Manager) SaveTo(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return m.SaveTo(filepath.Join(home, ".ismn", "config.yaml"))
}

var (
	globalManager *Manager
	globalOnce    sync.Once
	globalErr     error
)

// Global returns the process-wide configuration manager, loaded once.
func Global() (*Manager, error) {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalErr = globalManager.Load()
	})
	return globalManager, globalErr
}
