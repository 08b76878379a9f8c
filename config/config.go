package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"perfmon/apperr"
	"perfmon/optimizer"
)

// StoreFile is the store's file name inside <workspace>/databases.
const StoreFile = "performance_monitoring.db"

// Config holds every configurable value for the monitor.
type Config struct {
	// Persistence
	Workspace string // directory holding databases/, e.g. "."

	// Monitoring loop
	Interval       time.Duration // wait between cycles
	Window         time.Duration // how long "verify" keeps the loop running
	HistorySize    int           // ring buffer capacity
	SampleWindow   time.Duration // CPU integration window per sample
	CollectTimeout time.Duration // bound on one collection
	DiskPath       string        // mount point reported as disk usage

	// Optimization
	Phases     []optimizer.PhaseSpec
	PhaseDelay time.Duration // placeholder work per phase

	// Event bus, disabled when empty
	NatsURL string

	LogLevel string // debug|info|warn|error
}

// DBPath is where the SQLite store lives.
func (c *Config) DBPath() string {
	return filepath.Join(c.Workspace, "databases", StoreFile)
}

// DataStoreDirs are scanned for discoverable local data stores.
func (c *Config) DataStoreDirs() []string {
	return []string{filepath.Join(c.Workspace, "databases")}
}

// RegisterFlags adds the configuration flags to fs. Flag values win over
// every other source.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("workspace", ".", "workspace root containing databases/")
	fs.Float64("interval", 5, "seconds between monitoring cycles")
	fs.Float64("window", 10, "seconds the verify mode keeps monitoring")
	fs.String("log-level", "info", "debug|info|warn|error")
	fs.String("nats-url", "", "publish samples and progress to this NATS server")
	fs.String("config", "", "optional YAML config file")
}

// Load reads configuration from (in decreasing priority):
//  1. command-line flags registered with RegisterFlags (fs may be nil)
//  2. environment variables prefixed PERFMON_ (e.g. PERFMON_INTERVAL),
//     including any found in a .env file
//  3. a yaml file: --config if given, else ./configs/config.yaml if it exists
//  4. defaults
//
// It returns a validated *Config or an error wrapping
// apperr.ErrInvalidConfiguration.
func Load(fs *pflag.FlagSet) (*Config, error) {
	loadDotEnv()

	v := viper.New()

	v.SetDefault("workspace", ".")
	v.SetDefault("interval", 5.0)
	v.SetDefault("window", 10.0)
	v.SetDefault("history_size", 1000)
	v.SetDefault("sample_window", "1s")
	v.SetDefault("collect_timeout", "6s")
	v.SetDefault("disk_path", "/")
	v.SetDefault("phase_delay", "500ms")
	v.SetDefault("nats_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("phases", defaultPhases())

	v.SetEnvPrefix("PERFMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, flag := range map[string]string{
			"workspace": "workspace",
			"interval":  "interval",
			"window":    "window",
			"log_level": "log-level",
			"nats_url":  "nats-url",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	cfg := &Config{
		Workspace:      v.GetString("workspace"),
		Interval:       seconds(v.GetFloat64("interval")),
		Window:         seconds(v.GetFloat64("window")),
		HistorySize:    v.GetInt("history_size"),
		SampleWindow:   v.GetDuration("sample_window"),
		CollectTimeout: v.GetDuration("collect_timeout"),
		DiskPath:       v.GetString("disk_path"),
		PhaseDelay:     v.GetDuration("phase_delay"),
		NatsURL:        v.GetString("nats_url"),
		LogLevel:       v.GetString("log_level"),
	}
	if err := v.UnmarshalKey("phases", &cfg.Phases); err != nil {
		return nil, fmt.Errorf("%w: cannot decode phases: %v", apperr.ErrInvalidConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("%w: workspace must not be empty", apperr.ErrInvalidConfiguration)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %s", apperr.ErrInvalidConfiguration, c.Interval)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", apperr.ErrInvalidConfiguration, c.Window)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("%w: history_size must be positive, got %d", apperr.ErrInvalidConfiguration, c.HistorySize)
	}
	if c.SampleWindow < 0 || c.CollectTimeout <= c.SampleWindow {
		return fmt.Errorf("%w: collect_timeout (%s) must exceed sample_window (%s)",
			apperr.ErrInvalidConfiguration, c.CollectTimeout, c.SampleWindow)
	}

	phases := make([]optimizer.Phase, len(c.Phases))
	for i, p := range c.Phases {
		phases[i] = optimizer.Phase{Name: p.Name, Weight: p.Weight}
	}
	return optimizer.Validate(phases)
}

// loadDotEnv tries the usual .env locations; a missing file is fine.
func loadDotEnv() {
	for _, path := range []string{".env", filepath.Join("configs", ".env")} {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("%w: read config %s: %v", apperr.ErrInvalidConfiguration, f.Value.String(), err)
			}
			return nil
		}
	}

	// Optional yaml file - useful for local dev
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: read config: %v", apperr.ErrInvalidConfiguration, err)
	}
	return nil
}

func defaultPhases() []map[string]any {
	out := make([]map[string]any, len(optimizer.DefaultWeights))
	for i, p := range optimizer.DefaultWeights {
		out[i] = map[string]any{"name": p.Name, "weight": p.Weight}
	}
	return out
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
