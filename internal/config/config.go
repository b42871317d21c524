package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g. SYNAPSE_LOGGING_LEVEL.
const EnvPrefix = "SYNAPSE"

// Config represents the complete Synapse configuration
type Config struct {
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Monitor     MonitorConfig     `mapstructure:"monitor" yaml:"monitor"`
	Correlation CorrelationConfig `mapstructure:"correlation" yaml:"correlation"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// SchedulerConfig controls the dispatch tick
type SchedulerConfig struct {
	// TickIntervalMs is how often the priority buffer is drained (default: 500)
	TickIntervalMs int `mapstructure:"tick_interval_ms" yaml:"tick_interval_ms"`
}

// MonitorConfig controls the proactive monitoring loop
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// IntervalMs is the time between monitoring cycles (default: 10000)
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
	// ActionDelayMs is how long a scheduled proactive action waits before it
	// executes, giving subscribers a chance to cancel it (default: 4000)
	ActionDelayMs int `mapstructure:"action_delay_ms" yaml:"action_delay_ms"`
	// RuleCooldownSeconds is the minimum time between two firings of one rule
	// for one subject (0 = disabled)
	RuleCooldownSeconds int `mapstructure:"rule_cooldown_seconds" yaml:"rule_cooldown_seconds"`
	// Subjects are watched from startup
	Subjects []string `mapstructure:"subjects" yaml:"subjects"`
}

// CorrelationConfig controls correlation chain bookkeeping
type CorrelationConfig struct {
	// MaxChains bounds how many chains are retained (oldest evicted first)
	MaxChains int `mapstructure:"max_chains" yaml:"max_chains"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Level   string `mapstructure:"level" yaml:"level"`
	// Dir is where synapse.log is written. Empty means <config dir>/logs.
	Dir        string `mapstructure:"dir" yaml:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			TickIntervalMs: 500,
		},
		Monitor: MonitorConfig{
			Enabled:             true,
			IntervalMs:          10000,
			ActionDelayMs:       4000,
			RuleCooldownSeconds: 60,
			Subjects:            []string{},
		},
		Correlation: CorrelationConfig{
			MaxChains: 1000,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "", // Empty means <config dir>/logs
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9464",
		},
	}
}

// TickInterval returns the drain tick as a time.Duration
func (c *SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Interval returns the monitoring cycle period as a time.Duration
func (c *MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// ActionDelay returns the proactive action delay as a time.Duration
func (c *MonitorConfig) ActionDelay() time.Duration {
	return time.Duration(c.ActionDelayMs) * time.Millisecond
}

// RuleCooldown returns the rule cooldown as a time.Duration (0 means disabled)
func (c *MonitorConfig) RuleCooldown() time.Duration {
	return time.Duration(c.RuleCooldownSeconds) * time.Second
}

// ResolveDir returns the directory log files are written to.
func (c *LoggingConfig) ResolveDir() string {
	if c.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	path := c.Dir
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.tick_interval_ms", defaults.Scheduler.TickIntervalMs)

	// Monitor defaults
	viper.SetDefault("monitor.enabled", defaults.Monitor.Enabled)
	viper.SetDefault("monitor.interval_ms", defaults.Monitor.IntervalMs)
	viper.SetDefault("monitor.action_delay_ms", defaults.Monitor.ActionDelayMs)
	viper.SetDefault("monitor.rule_cooldown_seconds", defaults.Monitor.RuleCooldownSeconds)
	viper.SetDefault("monitor.subjects", defaults.Monitor.Subjects)

	// Correlation defaults
	viper.SetDefault("correlation.max_chains", defaults.Correlation.MaxChains)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "synapse")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".synapse"
	}
	return filepath.Join(home, ".config", "synapse")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Marshal renders c as YAML in the layout of the config file.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// WriteFile writes c to path as YAML, creating parent directories.
func (c *Config) WriteFile(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
