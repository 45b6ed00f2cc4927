package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	Probe       ProbeConfig     `toml:"probe"`
	Workflow    WorkflowConfig  `toml:"workflow"`
	Storage     StorageConfig   `toml:"storage"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"omitempty,oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output"`                                                 // "stdout", "file"
}

// BrowserConfig contains settings for the shared Chrome session. The elevated
// timeouts tolerate the APs' slow embedded HTTP stacks.
type BrowserConfig struct {
	Headless        bool          `toml:"headless"`
	UserAgent       string        `toml:"user_agent"`
	PageLoadTimeout time.Duration `toml:"page_load_timeout" validate:"min=60000000000"` // >= 60s
	ElementWait     time.Duration `toml:"element_wait" validate:"min=15000000000"`      // >= 15s
	NavigateSettle  time.Duration `toml:"navigate_settle"`                              // pause after navigation before inspecting the page
	DismissSettle   time.Duration `toml:"dismiss_settle"`                               // pause after clicking through the warning page
	ReloadSettle    time.Duration `toml:"reload_settle"`                                // pause after the post-dismissal reload
}

// ProbeConfig controls host reachability checks.
type ProbeConfig struct {
	Timeout  time.Duration `toml:"timeout"`
	Interval time.Duration `toml:"interval"` // continuous poller interval
}

// WorkflowConfig contains the settle delays the devices' web server needs
// around form submissions. The save round-trip has no completion signal, so
// these remain fixed waits.
type WorkflowConfig struct {
	ClickSettle time.Duration `toml:"click_settle"`
	SaveSettle  time.Duration `toml:"save_settle"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// SchedulerConfig controls the periodic fleet probe sweep.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format (with seconds)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability; only
// user-facing settings belong in apfleet.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Browser: BrowserConfig{
			Headless:        false, // operators watch the tabs
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			PageLoadTimeout: 60 * time.Second,
			ElementWait:     15 * time.Second,
			NavigateSettle:  2 * time.Second,
			DismissSettle:   2 * time.Second,
			ReloadSettle:    3 * time.Second,
		},
		Probe: ProbeConfig{
			Timeout:  2 * time.Second,
			Interval: 1 * time.Second,
		},
		Workflow: WorkflowConfig{
			ClickSettle: 1 * time.Second,
			SaveSettle:  3 * time.Second,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:  false, // opt-in
			Schedule: "0 */5 * * * *",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier
// files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("APFLEET_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("APFLEET_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if headless := os.Getenv("APFLEET_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}

	if path := os.Getenv("APFLEET_STORAGE_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
}
