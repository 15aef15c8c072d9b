// Package daemon manages the hotplug daemon lifecycle and configuration.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/tutu-network/hotplug/internal/domain"
	"github.com/tutu-network/hotplug/internal/infra/cpu"
	"github.com/tutu-network/hotplug/internal/infra/hotplug"
)

// Config holds all daemon configuration.
type Config struct {
	Controller ControllerConfig `toml:"controller"`
	Platform   PlatformConfig   `toml:"platform"`
	API        APIConfig        `toml:"api"`
	Journal    JournalConfig    `toml:"journal"`
	Health     HealthConfig     `toml:"health"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ControllerConfig holds the startup tunables of the hotplug controller.
type ControllerConfig struct {
	Enabled           bool     `toml:"enabled"`
	SampleRateMS      uint32   `toml:"sample_rate_ms" validate:"min=1"`
	WindowMS          uint32   `toml:"window_ms" validate:"min=1"`
	HysteresisDivisor uint32   `toml:"hysteresis_divisor" validate:"min=1"`
	MinCores          uint32   `toml:"min_cores"`
	MaxCores          uint32   `toml:"max_cores"`  // 0 means all cores
	Thresholds        []uint32 `toml:"thresholds"` // empty means the defaults
	PrimaryCore       int      `toml:"primary_core" validate:"min=0"`
	// RestoreTunables prefers tunables persisted by a previous run over
	// the values above.
	RestoreTunables bool `toml:"restore_tunables"`
}

// PlatformConfig selects where load comes from and how cores are switched.
type PlatformConfig struct {
	Backend         string  `toml:"backend" validate:"oneof=sysfs simulated"`
	SysfsRoot       string  `toml:"sysfs_root"`
	SchedstatPath   string  `toml:"schedstat_path"`
	SimulatedCores  int     `toml:"simulated_cores" validate:"min=1,max=1024"`
	SimulatedLoad   float64 `toml:"simulated_load" validate:"min=0"`
	SimulatedDelay  string  `toml:"simulated_delay"`
	SimulatedOnline int     `toml:"simulated_online" validate:"min=0"`
}

// APIConfig controls the HTTP control surface.
type APIConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"min=0,max=65535"` // 0 picks a free port
}

// JournalConfig controls the SQLite transition journal.
type JournalConfig struct {
	Enabled   bool   `toml:"enabled"`
	Retention string `toml:"retention"`
	Queue     int    `toml:"queue" validate:"min=1"`
}

// HealthConfig controls the periodic health checks.
type HealthConfig struct {
	Interval string `toml:"interval"`
}

// TelemetryConfig controls Prometheus exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level       string `toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Controller: ControllerConfig{
			Enabled:           true,
			SampleRateMS:      uint32(hotplug.DefaultSampleRate / time.Millisecond),
			WindowMS:          uint32(hotplug.DefaultWindow / time.Millisecond),
			HysteresisDivisor: hotplug.DefaultHysteresisDivisor,
			MinCores:          1,
			MaxCores:          0,
			RestoreTunables:   true,
		},
		Platform: PlatformConfig{
			Backend:        "sysfs",
			SysfsRoot:      cpu.DefaultSysfsRoot,
			SchedstatPath:  cpu.DefaultSchedstatPath,
			SimulatedCores: 4,
			SimulatedLoad:  1,
			SimulatedDelay: "2ms",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7439,
		},
		Journal: JournalConfig{
			Enabled:   true,
			Retention: "168h",
			Queue:     256,
		},
		Health: HealthConfig{
			Interval: "30s",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s%s", fe.Namespace(), fe.Tag(), paramSuffix(fe.Param())))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Controller.MaxCores != 0 && c.Controller.MinCores > c.Controller.MaxCores {
		return fmt.Errorf("invalid config: controller.min_cores %d above max_cores %d",
			c.Controller.MinCores, c.Controller.MaxCores)
	}
	for name, s := range map[string]string{
		"journal.retention":        c.Journal.Retention,
		"health.interval":          c.Health.Interval,
		"platform.simulated_delay": c.Platform.SimulatedDelay,
	} {
		if _, err := parseDuration(s); err != nil {
			return fmt.Errorf("invalid config: %s: %w", name, err)
		}
	}
	return nil
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// Tunables converts the controller section for a machine with totalCores
// cores. MaxCores 0 selects every core.
func (c ControllerConfig) Tunables(totalCores int) domain.Tunables {
	maxCores := c.MaxCores
	if maxCores == 0 {
		maxCores = uint32(totalCores)
	}
	return domain.Tunables{
		SampleRate:        time.Duration(c.SampleRateMS) * time.Millisecond,
		Window:            time.Duration(c.WindowMS) * time.Millisecond,
		HysteresisDivisor: c.HysteresisDivisor,
		Bounds:            domain.Bounds{Min: c.MinCores, Max: maxCores},
		Thresholds:        c.Thresholds,
	}
}

// LoadConfig reads config from $HOTPLUG_HOME/config.toml, falling back to
// defaults, then applies environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(hotplugHome(), "config.toml"))
}

// LoadConfigFile reads config from path. A missing file yields defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("stat config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from HOTPLUG_* variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("HOTPLUG_BACKEND"); v != "" {
		cfg.Platform.Backend = v
	}
	if v := os.Getenv("HOTPLUG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HOTPLUG_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("HOTPLUG_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOTPLUG_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}
	if v := os.Getenv("HOTPLUG_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HOTPLUG_ENABLED: %w", err)
		}
		cfg.Controller.Enabled = enabled
	}
	return nil
}

// SaveConfig writes the config to $HOTPLUG_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(hotplugHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// hotplugHome returns the daemon data directory.
func hotplugHome() string {
	if env := os.Getenv("HOTPLUG_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hotplug")
}

// Home is exported for use by other packages.
func Home() string {
	return hotplugHome()
}

// parseDuration parses a duration string; empty means zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
