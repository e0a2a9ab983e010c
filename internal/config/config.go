// Package config loads the llamactl daemon configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/llamactl/internal/logger"
	"github.com/loykin/llamactl/internal/ports"
	"github.com/loykin/llamactl/internal/settings"
	tlsx "github.com/loykin/llamactl/internal/tls"
)

const (
	DefaultListen        = "127.0.0.1:7070"
	DefaultBasePath      = "/api"
	DefaultMetricsListen = "127.0.0.1:9090"
	DefaultShutdownGrace = time.Second
	envPrefix            = "LLAMACTL"
)

// Config is the daemon configuration.
type Config struct {
	SettingsPath  string        `toml:"settings_path" mapstructure:"settings_path"`
	ShutdownGrace time.Duration `toml:"shutdown_grace" mapstructure:"shutdown_grace"`
	Env           []string      `toml:"env" mapstructure:"env"`
	EnvFiles      []string      `toml:"env_files" mapstructure:"env_files"`

	Server  ServerConfig  `toml:"server" mapstructure:"server"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Output  OutputConfig  `toml:"output" mapstructure:"output"`
	Ports   PortsConfig   `toml:"ports" mapstructure:"ports"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type ServerConfig struct {
	Listen   string       `toml:"listen" mapstructure:"listen"`
	BasePath string       `toml:"base_path" mapstructure:"base_path"`
	TLS      tlsx.Options `toml:"tls" mapstructure:"tls"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	Format     string `toml:"format" mapstructure:"format"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// OutputConfig controls mirroring of llama-server output to files.
type OutputConfig struct {
	Dir    string `toml:"dir" mapstructure:"dir"`
	Stdout string `toml:"stdout" mapstructure:"stdout"`
	Stderr string `toml:"stderr" mapstructure:"stderr"`
}

type PortsConfig struct {
	Host     string `toml:"host" mapstructure:"host"`
	Attempts int    `toml:"attempts" mapstructure:"attempts"`
}

type HistoryConfig struct {
	DSNs []string `toml:"dsns" mapstructure:"dsns"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("settings_path", settings.DefaultPath())
	v.SetDefault("shutdown_grace", DefaultShutdownGrace)
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")
	v.SetDefault("ports.attempts", ports.DefaultAttempts)
}

// LoadConfig reads the TOML file at path. An empty path yields the
// defaults. LLAMACTL_* environment variables override file values, e.g.
// LLAMACTL_SERVER_LISTEN.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	base := ""
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		base = filepath.Dir(path)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.resolvePaths(base)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) resolvePaths(base string) {
	c.SettingsPath = resolvePath(base, c.SettingsPath)
	c.Log.File = resolvePath(base, c.Log.File)
	c.Output.Dir = resolvePath(base, c.Output.Dir)
	c.Output.Stdout = resolvePath(base, c.Output.Stdout)
	c.Output.Stderr = resolvePath(base, c.Output.Stderr)
	c.Server.TLS.CertFile = resolvePath(base, c.Server.TLS.CertFile)
	c.Server.TLS.KeyFile = resolvePath(base, c.Server.TLS.KeyFile)
	c.Server.TLS.Dir = resolvePath(base, c.Server.TLS.Dir)
	for i, f := range c.EnvFiles {
		c.EnvFiles[i] = resolvePath(base, f)
	}
}

// resolvePath expands ~ and anchors relative paths at base.
func resolvePath(base, p string) string {
	if p == "" {
		return ""
	}
	p = settings.ExpandHome(p)
	if !filepath.IsAbs(p) && base != "" {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if err := c.Server.TLS.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server.tls: %w", err))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen is required when metrics are enabled"))
	}
	if c.ShutdownGrace < 0 {
		errs = append(errs, errors.New("shutdown_grace must not be negative"))
	}
	if c.Ports.Attempts < 0 || c.Ports.Attempts > 1000 {
		errs = append(errs, fmt.Errorf("ports.attempts out of range: %d", c.Ports.Attempts))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) rotation() logger.FileConfig {
	return logger.FileConfig{
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}
}

// LoggerConfig is the daemon logger configuration.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Path:   c.Log.File,
		File:   c.rotation(),
	}
}

// OutputLogConfig describes where process output is mirrored.
func (c *Config) OutputLogConfig() logger.Config {
	f := c.rotation()
	f.Dir = c.Output.Dir
	f.StdoutPath = c.Output.Stdout
	f.StderrPath = c.Output.Stderr
	return logger.Config{File: f}
}

// PortAllocator builds the allocator for launches.
func (c *Config) PortAllocator() ports.Allocator {
	return ports.Allocator{Host: c.Ports.Host, Attempts: c.Ports.Attempts}
}

// GlobalEnv merges the env_files in order, then the env list. Later entries
// win.
func (c *Config) GlobalEnv() ([]string, error) {
	var out []string
	for _, p := range c.EnvFiles {
		pairs, err := LoadEnvFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pairs...)
	}
	return append(out, c.Env...), nil
}

// LoadEnvFile parses a .env file of KEY=VALUE lines. Blank lines and lines
// starting with # are skipped, as is a leading "export ".
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			continue
		}
		k := strings.TrimSpace(line[:i])
		v := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		out = append(out, k+"="+v)
	}
	return out, nil
}
