package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Engine    EngineConfig    `toml:"engine"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
	Terminal  TerminalConfig  `toml:"terminal"`
	Audio     AudioConfig     `toml:"audio"`
	Scripting ScriptingConfig `toml:"scripting"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Debug     DebugConfig     `toml:"debug"`
}

type EngineConfig struct {
	Name          string        `toml:"name"`
	FrameRate     time.Duration `toml:"frame_rate"`     // time budget per frame
	MaxFrames     uint64        `toml:"max_frames"`     // 0 = run until a unit stops the loop
	DisabledUnits []string      `toml:"disabled_units"` // unit names that start disabled
}

type SchedulerConfig struct {
	StrictRegistration bool `toml:"strict_registration"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
	File   string `toml:"file"`   // empty = stderr
}

type TerminalConfig struct {
	Enabled    bool `toml:"enabled"`
	EventQueue int  `toml:"event_queue"`
}

type AudioConfig struct {
	Enabled    bool          `toml:"enabled"`
	SampleRate int           `toml:"sample_rate"`
	ClickHz    float64       `toml:"click_hz"`
	ClickMs    time.Duration `toml:"click_ms"`
}

type ScriptingConfig struct {
	Enabled  bool   `toml:"enabled"`
	Manifest string `toml:"manifest"`
	Dir      string `toml:"dir"`
}

type TelemetryConfig struct {
	Enabled         bool          `toml:"enabled"`
	Driver          string        `toml:"driver"` // "postgres" or "sqlite"
	DSN             string        `toml:"dsn"`
	SampleEvery     uint64        `toml:"sample_every"` // frames between samples
	BatchSize       int           `toml:"batch_size"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type DebugConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Load reads the TOML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config { return defaults() }

func (c *Config) validate() error {
	if c.Engine.FrameRate <= 0 {
		return fmt.Errorf("engine.frame_rate must be positive, got %s", c.Engine.FrameRate)
	}
	if err := ValidateLogFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	if c.Telemetry.Enabled {
		switch c.Telemetry.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("telemetry.driver %q: want postgres or sqlite", c.Telemetry.Driver)
		}
		if c.Telemetry.SampleEvery == 0 {
			return fmt.Errorf("telemetry.sample_every must be at least 1")
		}
		if c.Telemetry.BatchSize < 1 {
			return fmt.Errorf("telemetry.batch_size must be at least 1, got %d", c.Telemetry.BatchSize)
		}
	}
	return nil
}

// ValidateLogFormat accepts the encoder names the logger understands.
func ValidateLogFormat(format string) error {
	switch format {
	case "console", "json":
		return nil
	default:
		return fmt.Errorf("%q: want console or json", format)
	}
}

func defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			Name:      "lifecycle",
			FrameRate: 16 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Terminal: TerminalConfig{
			Enabled:    true,
			EventQueue: 100,
		},
		Audio: AudioConfig{
			Enabled:    false,
			SampleRate: 48000,
			ClickHz:    880,
			ClickMs:    40 * time.Millisecond,
		},
		Scripting: ScriptingConfig{
			Enabled:  true,
			Manifest: "data/yaml/scripts.yaml",
			Dir:      "scripts",
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Driver:          "sqlite",
			DSN:             "lifecycle.db",
			SampleEvery:     60,
			BatchSize:       32,
			MaxOpenConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Debug: DebugConfig{
			Enabled: false,
			Addr:    "127.0.0.1:7070",
		},
	}
}
