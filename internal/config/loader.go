package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvConfigPath overrides the configuration search order with an explicit
// file path.
const EnvConfigPath = "SIFTX_CONFIG"

// ConfigurationError indicates no usable configuration was found. Fatal
// at startup for the web service.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no usable configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ErrNotFound is wrapped by ConfigurationError when no file exists at any
// search location.
var ErrNotFound = errors.New("configuration file not found")

// SearchPaths returns the candidate configuration files, most specific
// first: working directory, user home, system-wide.
func SearchPaths() []string {
	paths := []string{}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, "siftx.yml"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".siftx.yml"))
	}
	return append(paths, "/etc/siftx.yml")
}

// Load finds and parses the configuration.
//
// The SIFTX_CONFIG environment variable names an explicit file; otherwise
// the first existing file from SearchPaths wins. Environment variables
// prefixed SIFTX_ override individual keys.
func Load() (*Config, error) {
	file := os.Getenv(EnvConfigPath)
	if file == "" {
		for _, candidate := range SearchPaths() {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				file = candidate
				break
			}
		}
	}
	if file == "" {
		return nil, &ConfigurationError{Err: ErrNotFound}
	}
	return LoadFile(file)
}

// LoadFile parses one configuration file.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("SIFTX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("edx_venv_path", DefaultVenvPath)
	v.SetDefault("edx_platform_path", DefaultPlatformPath)
	v.SetDefault("sifter_dir", DefaultSifterDir)
	v.SetDefault("log_level", "info")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_size", 64)
	v.SetDefault("rate_limit.per_second", 0)
	v.SetDefault("rate_limit.burst", 5)
}
