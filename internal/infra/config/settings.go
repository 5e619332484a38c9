// Package config loads nixcfg settings from YAML with NIXCFG_ environment
// overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "nixcfg"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "NIXCFG"
)

type Settings struct {
	Config   ConfigSettings   `mapstructure:"config" yaml:"config"`
	Validate ValidateSettings `mapstructure:"validate" yaml:"validate"`
	Exec     ExecSettings     `mapstructure:"exec" yaml:"exec"`
	Tools    ToolSettings     `mapstructure:"tools" yaml:"tools"`
	Packages PackageSettings  `mapstructure:"packages" yaml:"packages"`
	Services ServiceSettings  `mapstructure:"services" yaml:"services"`
	Access   AccessSettings   `mapstructure:"access" yaml:"access"`
	Log      LogSettings      `mapstructure:"log" yaml:"log"`
}

type ConfigSettings struct {
	SearchPaths   []string `mapstructure:"search_paths" yaml:"search_paths"`
	DefaultTarget string   `mapstructure:"default_target" yaml:"default_target"`
	BackupDir     string   `mapstructure:"backup_dir" yaml:"backup_dir"`
}

type ValidateSettings struct {
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type ExecSettings struct {
	ElevationWrapper string `mapstructure:"elevation_wrapper" yaml:"elevation_wrapper"`
	MaxOutputBytes   int    `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
}

type ToolSettings struct {
	NixInstantiate string `mapstructure:"nix_instantiate" yaml:"nix_instantiate"`
	NixosRebuild   string `mapstructure:"nixos_rebuild" yaml:"nixos_rebuild"`
	Nix            string `mapstructure:"nix" yaml:"nix"`
	NixEnv         string `mapstructure:"nix_env" yaml:"nix_env"`
	Systemctl      string `mapstructure:"systemctl" yaml:"systemctl"`
}

type PackageSettings struct {
	SearchLimit int `mapstructure:"search_limit" yaml:"search_limit"`
}

type ServiceSettings struct {
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	Critical    []string      `mapstructure:"critical" yaml:"critical"`
}

type AccessSettings struct {
	AdminGroups []string `mapstructure:"admin_groups" yaml:"admin_groups"`
}

type LogSettings struct {
	Level string `mapstructure:"level" yaml:"level"`
}

func DefaultSettings() Settings {
	return Settings{
		Config: ConfigSettings{
			SearchPaths: []string{
				"/etc/nixos/flake.nix",
				"/etc/nixos/configuration.nix",
				"~/.config/nixos/configuration.nix",
			},
			DefaultTarget: "/etc/nixos/configuration.nix",
			BackupDir:     "/etc/nixos/backups",
		},
		Validate: ValidateSettings{TempDir: os.TempDir()},
		Exec:     ExecSettings{ElevationWrapper: "sudo", MaxOutputBytes: 16 << 20},
		Tools: ToolSettings{
			NixInstantiate: "nix-instantiate",
			NixosRebuild:   "nixos-rebuild",
			Nix:            "nix",
			NixEnv:         "nix-env",
			Systemctl:      "systemctl",
		},
		Packages: PackageSettings{SearchLimit: 50},
		Services: ServiceSettings{SettleDelay: time.Second, Critical: []string{}},
		Access:   AccessSettings{AdminGroups: []string{"wheel"}},
		Log:      LogSettings{Level: "info"},
	}
}

// Programs lists every external tool the settings name, for the runner's
// allow-list.
func (s Settings) Programs() []string {
	return []string{
		s.Tools.NixInstantiate,
		s.Tools.NixosRebuild,
		s.Tools.Nix,
		s.Tools.NixEnv,
		s.Tools.Systemctl,
	}
}

// YAML renders the effective settings.
func (s Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// ConfigDir is $XDG_CONFIG_HOME/nixcfg, defaulting to ~/.config/nixcfg.
func ConfigDir() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName), nil
}

type LoadOptions struct {
	// ConfigFilePath is used exclusively when set and must exist.
	ConfigFilePath string
	ConfigDirPath  string
}

// Load merges defaults, the settings file and NIXCFG_* environment values.
// It returns the file that was read, or "" when only defaults apply.
func Load(ctx context.Context, opts LoadOptions) (Settings, string, error) {
	select {
	case <-ctx.Done():
		return Settings{}, "", fmt.Errorf("load settings canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultSettings())

	path := opts.ConfigFilePath
	explicit := path != ""
	if !explicit {
		dir := opts.ConfigDirPath
		if dir == "" {
			d, err := ConfigDir()
			if err != nil {
				return Settings{}, "", err
			}
			dir = d
		}
		path = filepath.Join(dir, ConfigFileName)
	}

	resolved := ""
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, "", fmt.Errorf("failed to read settings %s: %w", path, err)
		}
		resolved = path
	} else if explicit || !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, "", fmt.Errorf("settings file %s: %w", path, err)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, "", fmt.Errorf("failed to parse settings: %w", err)
	}
	for i, p := range s.Config.SearchPaths {
		s.Config.SearchPaths[i] = expandHome(p)
	}
	s.Config.DefaultTarget = expandHome(s.Config.DefaultTarget)
	s.Config.BackupDir = expandHome(s.Config.BackupDir)
	return s, resolved, nil
}

func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("config.search_paths", d.Config.SearchPaths)
	v.SetDefault("config.default_target", d.Config.DefaultTarget)
	v.SetDefault("config.backup_dir", d.Config.BackupDir)
	v.SetDefault("validate.temp_dir", d.Validate.TempDir)
	v.SetDefault("exec.elevation_wrapper", d.Exec.ElevationWrapper)
	v.SetDefault("exec.max_output_bytes", d.Exec.MaxOutputBytes)
	v.SetDefault("tools.nix_instantiate", d.Tools.NixInstantiate)
	v.SetDefault("tools.nixos_rebuild", d.Tools.NixosRebuild)
	v.SetDefault("tools.nix", d.Tools.Nix)
	v.SetDefault("tools.nix_env", d.Tools.NixEnv)
	v.SetDefault("tools.systemctl", d.Tools.Systemctl)
	v.SetDefault("packages.search_limit", d.Packages.SearchLimit)
	v.SetDefault("services.settle_delay", d.Services.SettleDelay)
	v.SetDefault("services.critical", d.Services.Critical)
	v.SetDefault("access.admin_groups", d.Access.AdminGroups)
	v.SetDefault("log.level", d.Log.Level)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
