package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

const sampleConfig = `
api = "anthropic"
model = "claude-test"
max_tokens = 1024
theme = "ansi"

[[presets]]
name = "fast"
api = "openai"
model = "gpt-4o-mini"
temperature = 0.2
env = "WORK_OPENAI_KEY"

[[templates]]
name = "review"
description = "Review code"
system = "You review {{ .language }} code."
template = "Review this:\n{{ .stdin }}\nFocus: {{ .focus }}"

[templates.default_vars]
focus = "bugs"
`

func writeConfig(t *testing.T, content string) Paths {
	t.Helper()
	dir := t.TempDir()
	paths, err := ResolvePaths(dir, "")
	if err != nil {
		t.Fatalf("resolve paths: %v", err)
	}
	if content != "" {
		if err := os.WriteFile(paths.File, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	return paths
}

func TestLoadWritesDefaults(t *testing.T) {
	paths := writeConfig(t, "")
	cfg, err := Load(viper.New(), paths)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API != "openai" || cfg.Language != "markdown" || cfg.Theme != "ansi" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	data, err := os.ReadFile(paths.File)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if !strings.Contains(string(data), "language") {
		t.Fatalf("unexpected default config:\n%s", data)
	}
	if paths.History != filepath.Join(paths.Dir, "history.db") {
		t.Fatalf("unexpected history path: %s", paths.History)
	}
}

func TestLoadPresetsAndTemplates(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API != "anthropic" || cfg.Model != "claude-test" || cfg.MaxTokens == nil || *cfg.MaxTokens != 1024 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	preset, err := cfg.Preset("fast")
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	if preset.API != "openai" || preset.Temperature == nil || *preset.Temperature != 0.2 {
		t.Fatalf("unexpected preset: %+v", preset)
	}
	tmpl, err := cfg.Template("review")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if tmpl.DefaultVars["focus"] != "bugs" {
		t.Fatalf("unexpected default vars: %+v", tmpl.DefaultVars)
	}
	if _, err := cfg.Template("missing"); err == nil {
		t.Fatalf("expected missing template error")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LLM_STREAM_THEME", "monokai")
	cfg, err := Load(viper.New(), writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Theme != "monokai" {
		t.Fatalf("expected env override, got %q", cfg.Theme)
	}
}

func TestLoadRejectsUnknownAPI(t *testing.T) {
	_, err := Load(viper.New(), writeConfig(t, `api = "cohere"`))
	if err == nil || !strings.Contains(err.Error(), "invalid api") {
		t.Fatalf("expected invalid api error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []Config{
		{MaxRetries: -1},
		{Presets: []Preset{{API: "openai"}}},
		{Presets: []Preset{{Name: "x", API: "nope"}}},
		{Templates: []Template{{Name: "empty"}}},
	}
	for i, cfg := range cases {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestMergePrecedence(t *testing.T) {
	cfg, err := Load(viper.New(), writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	flagTemp := float32(0.9)
	settings, err := cfg.Merge(Settings{Params: Params{Temperature: &flagTemp}}, "fast")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if settings.API != "openai" || settings.Model != "gpt-4o-mini" {
		t.Fatalf("preset should override config: %+v", settings)
	}
	if *settings.Temperature != 0.9 {
		t.Fatalf("flag should override preset: %v", *settings.Temperature)
	}
	if settings.MaxTokens == nil || *settings.MaxTokens != 1024 {
		t.Fatalf("config should fill the rest: %+v", settings)
	}

	settings, err = cfg.Merge(Settings{Model: "flag-model"}, "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if settings.API != "anthropic" || settings.Model != "flag-model" {
		t.Fatalf("unexpected settings: %+v", settings)
	}

	if _, err := cfg.Merge(Settings{}, "missing"); err == nil {
		t.Fatalf("expected missing preset error")
	}
}

func TestResolveKey(t *testing.T) {
	env := map[string]string{
		"ANTHROPIC_API_KEY": "from-default-env",
		"WORK_KEY":          "from-named-env",
	}
	getenv := func(name string) string { return env[name] }

	key, err := Settings{API: "anthropic", Key: "explicit", Env: "WORK_KEY"}.ResolveKey(getenv)
	if err != nil || key != "explicit" {
		t.Fatalf("explicit key: %q %v", key, err)
	}
	key, err = Settings{API: "anthropic", Env: "WORK_KEY"}.ResolveKey(getenv)
	if err != nil || key != "from-named-env" {
		t.Fatalf("named env: %q %v", key, err)
	}
	key, err = Settings{API: "claude"}.ResolveKey(getenv)
	if err != nil || key != "from-default-env" {
		t.Fatalf("default env: %q %v", key, err)
	}
	key, err = Settings{API: "ollama"}.ResolveKey(getenv)
	if err != nil || key != "" {
		t.Fatalf("ollama: %q %v", key, err)
	}
	_, err = Settings{API: "openai"}.ResolveKey(getenv)
	if err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected missing key error naming the env var, got %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandHome("~/.config/llm-stream")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, ".config/llm-stream") {
		t.Fatalf("unexpected path: %s", got)
	}
	if got, _ := ExpandHome("/abs/path"); got != "/abs/path" {
		t.Fatalf("absolute path changed: %s", got)
	}
}
