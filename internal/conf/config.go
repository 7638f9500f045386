// Package conf loads the Piccolo server's Settings from an embedded
// default YAML document, an on-disk override file, environment
// variables, and CLI flags, in that order of increasing precedence,
// following the shape of the teacher's internal/conf package: viper
// bound against a nested Settings struct, with an embedded config.yaml
// supplying every default.
package conf

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/TeamPiccolo/piccolo3-server/internal/logging"
)

//go:embed config.yaml
var configFiles embed.FS

// ChannelConfig describes one shutter-gated optical channel.
type ChannelConfig struct {
	Name          string  `mapstructure:"name"`
	Direction     string  `mapstructure:"direction"`
	Reverse       bool    `mapstructure:"reverse"`
	FibreDiameter float64 `mapstructure:"fibre_diameter"`
}

// SpectrometerConfig describes one USB spectrometer and the channels it
// serves.
type SpectrometerConfig struct {
	Serial     string   `mapstructure:"serial"`
	Channels   []string `mapstructure:"channels"`
	Setpoint   float64  `mapstructure:"setpoint"`
	Fan        bool     `mapstructure:"fan"`
	PowerGPIO  int      `mapstructure:"power_gpio"`
	MinIntegMS int64    `mapstructure:"min_integration_ms"`
	MaxIntegMS int64    `mapstructure:"max_integration_ms"`
	// WavelengthCalibrationPiccolo maps a channel name to its
	// per-channel wavelengthCalibrationCoefficientsPiccolo polynomial,
	// lowest order first.
	WavelengthCalibrationPiccolo map[string][]float64 `mapstructure:"wavelength_calibration_piccolo"`
}

// ServerConfig controls the process's transport and storage locations.
type ServerConfig struct {
	DataDir   string `mapstructure:"data_dir"`
	Mount     string `mapstructure:"mount"` // optional device to verify is mounted under DataDir
	Bind      string `mapstructure:"bind"`  // resource-tree transport bind address
	Daemonize bool   `mapstructure:"daemonize"`
}

// LoggingConfig controls where and how verbosely the server logs,
// mirroring internal/logging.Config.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ToLoggingConfig converts to internal/logging's Config, parsing Level
// defensively: an unrecognised level string falls back to info rather
// than failing startup over a typo in a log-verbosity knob.
func (l LoggingConfig) ToLoggingConfig() logging.Config {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	return logging.Config{
		Path:       l.Path,
		Level:      level,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	}
}

// MQTTConfig controls the power-off/power-on signalling publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// OutputConfig controls the writer's queue behaviour; the on-disk
// encoding itself is writer-defined and has no configuration knob.
type OutputConfig struct {
	QueueDepth int `mapstructure:"queue_depth"`
}

// SchedulerConfig locates the persistent job store.
type SchedulerConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Settings is the root configuration struct, populated entirely through
// viper so environment variables (PICCOLO_SERVER_BIND, etc.) can override
// any field; the CLI's --data-dir, --bind and --debug flags override only
// their own fields.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Output    OutputConfig    `mapstructure:"output"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	Channels      []ChannelConfig      `mapstructure:"channels"`
	Spectrometers []SpectrometerConfig `mapstructure:"spectrometers"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the embedded defaults, then a config file found on
// configPaths (first one present wins; none found is not an error,
// defaults stand alone), then environment variables, into a fresh
// viper instance, and unmarshals the result into Settings.
func Load(configPaths []string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("piccolo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v); err != nil {
		return nil, fmt.Errorf("loading embedded defaults: %w", err)
	}

	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("unmarshaling config into struct: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// setDefaults parses the embedded config.yaml and registers every key
// it contains as a viper default, so a user's override file only needs
// to name what it changes.
func setDefaults(v *viper.Viper) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("reading embedded config.yaml: %w", err)
	}
	defaults := viper.New()
	defaults.SetConfigType("yaml")
	if err := defaults.ReadConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parsing embedded config.yaml: %w", err)
	}
	for _, key := range defaults.AllKeys() {
		v.SetDefault(key, defaults.Get(key))
	}
	return nil
}

// DefaultConfigPaths returns the directories Load should search, in
// order, for an optional config.yaml override: the current directory
// first, then an XDG-style config home.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(home, "piccolo"))
	}
	paths = append(paths, "/etc/piccolo")
	return paths
}

// GetSettings returns the most recently Loaded settings, or nil if Load
// has not been called yet.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
