// Package config loads fleetscope configuration with viper and hands
// components a nil-safe view of their section.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: FLEETSCOPE_SSH_PORT sets ssh.port.
const EnvPrefix = "FLEETSCOPE"

// Config wraps a *viper.Viper. A Config built from nil answers every lookup
// with the zero value. A Config returned by Section reads prefixed keys from
// the root instance, so defaults and environment overrides stay visible.
type Config struct {
	v      *viper.Viper
	prefix string
}

// New wraps v. v may be nil.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Viper returns the wrapped instance, never nil.
func (c *Config) Viper() *viper.Viper {
	if c == nil || c.v == nil {
		return viper.New()
	}
	return c.v
}

func (c *Config) GetString(key string) string {
	if c == nil || c.v == nil {
		return ""
	}
	return c.v.GetString(c.prefix + key)
}

func (c *Config) GetInt(key string) int {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetInt(c.prefix + key)
}

func (c *Config) GetFloat64(key string) float64 {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetFloat64(c.prefix + key)
}

func (c *Config) GetBool(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.GetBool(c.prefix + key)
}

func (c *Config) GetDuration(key string) time.Duration {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetDuration(c.prefix + key)
}

func (c *Config) GetStringSlice(key string) []string {
	if c == nil || c.v == nil {
		return nil
	}
	return c.v.GetStringSlice(c.prefix + key)
}

func (c *Config) IsSet(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.IsSet(c.prefix + key)
}

// Sub returns the named section. A missing section yields an empty Config,
// never nil.
func (c *Config) Sub(key string) *Config {
	if c == nil || c.v == nil {
		return New(nil)
	}
	return New(c.v.Sub(c.prefix + key))
}

// Section returns a view of the keys under name. Unlike Sub it does not copy
// the subtree, so defaults and environment overrides still apply.
func (c *Config) Section(name string) *Config {
	if c == nil || c.v == nil {
		return New(nil)
	}
	return &Config{v: c.v, prefix: c.prefix + name + "."}
}

// Unmarshal decodes the whole section into target.
func (c *Config) Unmarshal(target any) error {
	if c == nil || c.v == nil {
		return nil
	}
	if c.prefix != "" {
		return c.v.UnmarshalKey(strings.TrimSuffix(c.prefix, "."), target)
	}
	return c.v.Unmarshal(target)
}

// Duration returns key, or def when key is unset or not positive.
func (c *Config) Duration(key string, def time.Duration) time.Duration {
	if d := c.GetDuration(key); c.IsSet(key) && d > 0 {
		return d
	}
	return def
}

// Int returns key, or def when key is unset or not positive.
func (c *Config) Int(key string, def int) int {
	if n := c.GetInt(key); c.IsSet(key) && n > 0 {
		return n
	}
	return def
}

// String returns key, or def when key is unset or blank.
func (c *Config) String(key, def string) string {
	if s := strings.TrimSpace(c.GetString(key)); s != "" {
		return s
	}
	return def
}

// Load builds a viper instance with defaults, an optional config file and
// FLEETSCOPE_ environment overrides. An empty path searches the working
// directory and /etc/fleetscope for fleetscope.yaml; not finding one is fine.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("fleetscope")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fleetscope")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers the default value of every known key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.auth_secret", "")

	v.SetDefault("credential.env", "SSH_PASSWORD")

	v.SetDefault("ssh.backend", "native")
	v.SetDefault("ssh.user", "")
	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.connect_timeout", "10s")
	v.SetDefault("ssh.command_timeout", "30s")
	v.SetDefault("ssh.known_hosts", "~/.ssh/known_hosts")
	v.SetDefault("ssh.insecure_ignore_host_key", false)
	v.SetDefault("ssh.helper_command", []string{"expect", "-f", "-"})

	v.SetDefault("discovery.enabled", true)
	v.SetDefault("discovery.backend", "dnssd")
	v.SetDefault("discovery.service", "_ssh._tcp")
	v.SetDefault("discovery.attempts", 3)
	v.SetDefault("discovery.warmup", "2s")
	v.SetDefault("discovery.backoff_unit", "1s")
	v.SetDefault("discovery.scan_timeout", "15s")
	v.SetDefault("discovery.max_lines", 100)
	v.SetDefault("discovery.overall_timeout", "30s")
	v.SetDefault("discovery.grace", "3s")

	v.SetDefault("inventory.enabled", true)

	v.SetDefault("license.enabled", true)
	v.SetDefault("license.path", "/Applications/Adobe InDesign CC 2017/Plug-Ins/priint.comet 4.1.6 R R25255/w2_license.lic")

	v.SetDefault("dispatch.enabled", true)
	v.SetDefault("dispatch.timeout", "5s")
	v.SetDefault("dispatch.concurrency", 32)
	v.SetDefault("dispatch.rate", 10.0)
	v.SetDefault("dispatch.burst", 5)
	v.SetDefault("dispatch.audit_db", "fleetscope.db")

	v.SetDefault("vault.enabled", true)
}
