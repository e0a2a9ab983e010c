// Package settings holds the launcher's persisted global and per-model
// configuration.
package settings

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080

	baseDirName  = ".llama-os"
	settingsFile = "launcher_settings.json"
	versionsDir  = "versions"
)

// GlobalConfig locates llama-server executables and models. Empty strings
// mean unset. ActiveExecutableVersion wins over ActiveExecutableFolder.
type GlobalConfig struct {
	ModelsDirectory         string `json:"models_directory" toml:"models_directory" yaml:"models_directory" mapstructure:"models_directory"`
	ExecutableFolder        string `json:"executable_folder" toml:"executable_folder" yaml:"executable_folder" mapstructure:"executable_folder"`
	ActiveExecutableFolder  string `json:"active_executable_folder,omitempty" toml:"active_executable_folder,omitempty" yaml:"active_executable_folder,omitempty" mapstructure:"active_executable_folder"`
	ActiveExecutableVersion string `json:"active_executable_version,omitempty" toml:"active_executable_version,omitempty" yaml:"active_executable_version,omitempty" mapstructure:"active_executable_version"`
}

// VersionsRoot is the directory holding installed versions.
func (g GlobalConfig) VersionsRoot() string {
	return filepath.Join(g.ExecutableFolder, versionsDir)
}

// ModelConfig is the per-model launch configuration.
type ModelConfig struct {
	ModelPath  string `json:"model_path" toml:"model_path" yaml:"model_path" mapstructure:"model_path"`
	CustomArgs string `json:"custom_args" toml:"custom_args" yaml:"custom_args" mapstructure:"custom_args"`
	ServerHost string `json:"server_host" toml:"server_host" yaml:"server_host" mapstructure:"server_host"`
	ServerPort uint16 `json:"server_port" toml:"server_port" yaml:"server_port" mapstructure:"server_port"`
	// Env holds extra "KEY=VALUE" entries for this model's process.
	Env []string `json:"env,omitempty" toml:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
}

// NewModelConfig returns the defaults for a model that has no saved config.
func NewModelConfig(modelPath string) ModelConfig {
	return ModelConfig{
		ModelPath:  modelPath,
		ServerHost: DefaultHost,
		ServerPort: DefaultPort,
	}
}

func (m ModelConfig) withDefaults() ModelConfig {
	if m.ServerHost == "" {
		m.ServerHost = DefaultHost
	}
	if m.ServerPort == 0 {
		m.ServerPort = DefaultPort
	}
	return m
}

// BaseDir is ~/.llama-os.
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, baseDirName)
}

// DefaultPath is the default settings file location.
func DefaultPath() string {
	return filepath.Join(BaseDir(), settingsFile)
}

// Defaults returns the global configuration used before any settings exist.
func Defaults() GlobalConfig {
	base := BaseDir()
	return GlobalConfig{
		ModelsDirectory:  filepath.Join(base, "models"),
		ExecutableFolder: filepath.Join(base, "llama.cpp"),
	}
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

type fileLayout struct {
	Global GlobalConfig  `json:"global_config" toml:"global_config" yaml:"global_config" mapstructure:"global_config"`
	Models []ModelConfig `json:"model_configs" toml:"model_configs" yaml:"model_configs" mapstructure:"model_configs"`
}
