// Package config loads the siftx configuration file.
//
// Configuration is YAML, searched in the working directory, the user's
// home directory, then system-wide, with an explicit override through the
// SIFTX_CONFIG environment variable. The loaded value is immutable;
// components receive it (or slices of it) through their constructors and
// never reach into process-wide state.
package config

import (
	"fmt"
	"time"

	"github.com/siftworks/siftx/pkg/launch"
)

// Defaults for the platform locators, matching the standard deployment.
const (
	DefaultVenvPath     = "/edx/app/edxapp/venvs/edxapp"
	DefaultPlatformPath = "/edx/app/edxapp/edx-platform"
	DefaultSifterDir    = "/usr/share/siftx/sifters"
)

// Config is the application configuration.
type Config struct {
	// EdxVenvPath is the default virtualenv locator passed to sifters.
	EdxVenvPath string `mapstructure:"edx_venv_path"`

	// EdxPlatformPath is the default platform root passed to sifters.
	EdxPlatformPath string `mapstructure:"edx_platform_path"`

	// SifterDir is the installed (lowest precedence) sifter directory.
	SifterDir string `mapstructure:"sifter_dir"`

	// Consumers are the configured tenants.
	Consumers []ConsumerConfig `mapstructure:"consumers"`

	// BrokerURL and ResultBackend locate an external worker pool. When
	// unset the bundled in-process pool is used.
	BrokerURL     string `mapstructure:"broker_url"`
	ResultBackend string `mapstructure:"result_backend"`

	// SessionSecret signs the web session cookie. Required for serve.
	SessionSecret string `mapstructure:"session_secret"`

	// StaffRoles overrides the roles permitted to invoke sifters.
	StaffRoles []string `mapstructure:"staff_roles"`

	// SifterTimeout bounds a single sifter run. Zero means no limit.
	SifterTimeout time.Duration `mapstructure:"sifter_timeout"`

	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	Server  ServerConfig  `mapstructure:"server"`
	Workers WorkersConfig `mapstructure:"workers"`
	Rate    RateConfig    `mapstructure:"rate_limit"`
}

// ConsumerConfig is one tenant entry in the configuration file.
type ConsumerConfig struct {
	Key            string   `mapstructure:"key"`
	Secret         string   `mapstructure:"secret"`
	AllowedSifters []string `mapstructure:"allowed_sifters"`
}

// ServerConfig configures the web front end.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WorkersConfig configures the bundled worker pool.
type WorkersConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

// RateConfig limits job submissions per tenant.
type RateConfig struct {
	// PerSecond is the sustained submission rate per tenant. Zero
	// disables limiting.
	PerSecond float64 `mapstructure:"per_second"`

	// Burst is the per-tenant burst allowance.
	Burst int `mapstructure:"burst"`
}

// LaunchConsumers converts the configured tenants for the verifier.
func (c *Config) LaunchConsumers() []launch.Consumer {
	out := make([]launch.Consumer, 0, len(c.Consumers))
	for _, cc := range c.Consumers {
		out = append(out, launch.Consumer{
			Key:            cc.Key,
			Secret:         cc.Secret,
			AllowedSifters: cc.AllowedSifters,
		})
	}
	return out
}

// EffectiveStaffRoles returns the configured staff-role set or the default.
func (c *Config) EffectiveStaffRoles() []string {
	if len(c.StaffRoles) > 0 {
		return c.StaffRoles
	}
	return launch.DefaultStaffRoles
}

// ValidateForServe checks the keys the web front end cannot run without.
func (c *Config) ValidateForServe() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("session_secret is required to run the web service")
	}
	if len(c.Consumers) == 0 {
		return fmt.Errorf("at least one consumer must be configured")
	}
	return nil
}
