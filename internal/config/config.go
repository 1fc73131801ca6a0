package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/spf13/viper"

	"github.com/Swind/go-frame-runner/core"
)

// EnvPrefix prefixes every environment override, e.g. FRAMERUNNER_FRAME_INTERVAL.
const EnvPrefix = "FRAMERUNNER"

// Config holds the frame host process settings.
type Config struct {
	Frame    FrameConfig
	Executor ExecutorConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Random   RandomConfig
}

// FrameConfig holds scheduler loop settings.
type FrameConfig struct {
	Name      string
	Interval  time.Duration
	MaxFrames uint64 `mapstructure:"max_frames"`
}

// ExecutorConfig holds background executor settings.
type ExecutorConfig struct {
	Name            string
	CheckDelay      time.Duration `mapstructure:"check_delay"`
	HistoryCapacity int           `mapstructure:"history_capacity"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// MetricsConfig holds the Prometheus endpoint settings. An empty Addr
// disables the endpoint.
type MetricsConfig struct {
	Addr         string
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// RandomConfig holds the global seed. Zero seeds from the clock.
type RandomConfig struct {
	Seed int64
}

// Load reads configuration from defaults, an optional TOML file and the
// environment. path selects the file; when empty, FRAMERUNNER_CONFIG or
// ~/.config/framerunner/config.toml is used if present.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("frame.name", "frame")
	v.SetDefault("frame.interval", 16*time.Millisecond)
	v.SetDefault("frame.max_frames", 0)
	v.SetDefault("executor.name", "background")
	v.SetDefault("executor.check_delay", time.Duration(0))
	v.SetDefault("executor.history_capacity", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.poll_interval", time.Second)
	v.SetDefault("random.seed", 0)

	v.SetConfigType("toml")

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG")
		explicit = path != ""
	}
	if explicit {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "framerunner"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings the host cannot run with.
func (c Config) Validate() error {
	if c.Frame.Interval <= 0 {
		return fmt.Errorf("frame.interval must be positive, got %s", c.Frame.Interval)
	}
	if c.Executor.CheckDelay < 0 {
		return fmt.Errorf("executor.check_delay must not be negative, got %s", c.Executor.CheckDelay)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LogLevel returns the parsed log level, defaulting to informational.
func (c Config) LogLevel() logiface.Level {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		return core.LevelInformational
	}
	return level
}

// ParseLevel maps a level name to a logiface level.
func ParseLevel(name string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return core.LevelDebug, nil
	case "", "info", "informational":
		return core.LevelInformational, nil
	case "warn", "warning":
		return core.LevelWarning, nil
	case "error", "err":
		return core.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
