package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"llm-stream/internal/llm"
)

const (
	EnvPrefix      = "LLM_STREAM"
	DefaultDir     = "~/.config/llm-stream"
	configFileName = "config.toml"
	historyName    = "history.db"
)

// Params are the model parameters shared by the config file, presets and
// flags. Nil pointers mean "not set".
type Params struct {
	Model       string   `mapstructure:"model"`
	System      string   `mapstructure:"system"`
	Version     string   `mapstructure:"version"`
	MaxTokens   *int     `mapstructure:"max_tokens"`
	MinTokens   *int     `mapstructure:"min_tokens"`
	Temperature *float32 `mapstructure:"temperature"`
	TopP        *float32 `mapstructure:"top_p"`
	TopK        *int     `mapstructure:"top_k"`
}

type Preset struct {
	Name    string `mapstructure:"name"`
	API     string `mapstructure:"api"`
	Env     string `mapstructure:"env"`
	Key     string `mapstructure:"key"`
	BaseURL string `mapstructure:"base_url"`
	Params  `mapstructure:",squash"`
}

type Template struct {
	Name        string         `mapstructure:"name"`
	Description string         `mapstructure:"description"`
	Template    string         `mapstructure:"template"`
	System      string         `mapstructure:"system"`
	DefaultVars map[string]any `mapstructure:"default_vars"`
}

type Config struct {
	API        string `mapstructure:"api"`
	BaseURL    string `mapstructure:"base_url"`
	Env        string `mapstructure:"env"`
	Key        string `mapstructure:"key"`
	Quiet      bool   `mapstructure:"quiet"`
	Language   string `mapstructure:"language"`
	Theme      string `mapstructure:"theme"`
	LogLevel   string `mapstructure:"log_level"`
	MaxRetries int    `mapstructure:"max_retries"`
	Params     `mapstructure:",squash"`

	Presets   []Preset   `mapstructure:"presets"`
	Templates []Template `mapstructure:"templates"`
}

// Paths locates the configuration directory, the config file and the
// history database.
type Paths struct {
	Dir     string
	File    string
	History string
}

func ResolvePaths(dir, file string) (Paths, error) {
	dir, err := ExpandHome(firstNonEmpty(dir, DefaultDir))
	if err != nil {
		return Paths{}, err
	}
	paths := Paths{
		Dir:     dir,
		File:    filepath.Join(dir, configFileName),
		History: filepath.Join(dir, historyName),
	}
	if file != "" {
		if paths.File, err = ExpandHome(file); err != nil {
			return Paths{}, err
		}
	}
	return paths, nil
}

func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api", string(llm.APIOpenAI))
	v.SetDefault("quiet", false)
	v.SetDefault("language", "markdown")
	v.SetDefault("theme", "ansi")
	v.SetDefault("log_level", "warn")
	v.SetDefault("max_retries", 0)
}

// Load reads the config file at paths.File into v, writing a default file
// first when none exists. Values can be overridden with LLM_STREAM_*
// environment variables.
func Load(v *viper.Viper, paths Paths) (Config, error) {
	var cfg Config
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetConfigFile(paths.File)

	if _, err := os.Stat(paths.File); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(paths.File), 0o755); err != nil {
			return cfg, fmt.Errorf("create config directory: %w", err)
		}
		if err := v.SafeWriteConfigAs(paths.File); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %s: %w", paths.File, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.API != "" {
		if _, err := llm.ParseAPI(c.API); err != nil {
			return fmt.Errorf("invalid api: %w", err)
		}
	}
	if c.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}
	for i, preset := range c.Presets {
		if strings.TrimSpace(preset.Name) == "" {
			return fmt.Errorf("presets[%d]: name is required", i)
		}
		if preset.API != "" {
			if _, err := llm.ParseAPI(preset.API); err != nil {
				return fmt.Errorf("preset %s: %w", preset.Name, err)
			}
		}
	}
	for i, tmpl := range c.Templates {
		if strings.TrimSpace(tmpl.Name) == "" {
			return fmt.Errorf("templates[%d]: name is required", i)
		}
		if strings.TrimSpace(tmpl.Template) == "" {
			return fmt.Errorf("template %s: template is required", tmpl.Name)
		}
	}
	return nil
}

func (c Config) Preset(name string) (Preset, error) {
	for _, preset := range c.Presets {
		if preset.Name == name {
			return preset, nil
		}
	}
	return Preset{}, fmt.Errorf("preset not found: %s", name)
}

func (c Config) Template(name string) (Template, error) {
	for _, tmpl := range c.Templates {
		if tmpl.Name == name {
			return tmpl, nil
		}
	}
	return Template{}, fmt.Errorf("template not found: %s", name)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
