package config

import (
	"fmt"

	"llm-stream/internal/llm"
)

// Settings are the effective options of one invocation.
type Settings struct {
	API      string
	Env      string
	Key      string
	BaseURL  string
	Quiet    bool
	Language string
	Theme    string
	Params
}

// Merge layers flags over the named preset (if any) over the config file.
// Empty strings and nil pointers in flags count as unset.
func (c Config) Merge(flags Settings, preset string) (Settings, error) {
	out := flags
	if preset != "" {
		p, err := c.Preset(preset)
		if err != nil {
			return Settings{}, err
		}
		out.fill(Settings{API: p.API, Env: p.Env, Key: p.Key, BaseURL: p.BaseURL, Params: p.Params})
	}
	out.fill(Settings{
		API:      c.API,
		Env:      c.Env,
		Key:      c.Key,
		BaseURL:  c.BaseURL,
		Quiet:    c.Quiet,
		Language: c.Language,
		Theme:    c.Theme,
		Params:   c.Params,
	})
	if out.API == "" {
		out.API = string(llm.APIOpenAI)
	}
	return out, nil
}

func (s *Settings) fill(from Settings) {
	s.API = firstNonEmpty(s.API, from.API)
	s.Env = firstNonEmpty(s.Env, from.Env)
	s.Key = firstNonEmpty(s.Key, from.Key)
	s.BaseURL = firstNonEmpty(s.BaseURL, from.BaseURL)
	s.Quiet = s.Quiet || from.Quiet
	s.Language = firstNonEmpty(s.Language, from.Language)
	s.Theme = firstNonEmpty(s.Theme, from.Theme)
	s.Model = firstNonEmpty(s.Model, from.Model)
	s.System = firstNonEmpty(s.System, from.System)
	s.Version = firstNonEmpty(s.Version, from.Version)
	if s.MaxTokens == nil {
		s.MaxTokens = from.MaxTokens
	}
	if s.MinTokens == nil {
		s.MinTokens = from.MinTokens
	}
	if s.Temperature == nil {
		s.Temperature = from.Temperature
	}
	if s.TopP == nil {
		s.TopP = from.TopP
	}
	if s.TopK == nil {
		s.TopK = from.TopK
	}
}

// ResolveKey returns the api key: an explicit key wins, then the environment
// variable named by Env, then the api's default variable.
func (s Settings) ResolveKey(getenv func(string) string) (string, error) {
	api, err := llm.ParseAPI(s.API)
	if err != nil {
		return "", err
	}
	if s.Key != "" {
		return s.Key, nil
	}
	env := firstNonEmpty(s.Env, api.DefaultEnv())
	if env != "" {
		if key := getenv(env); key != "" {
			return key, nil
		}
	}
	if !api.NeedsKey() {
		return "", nil
	}
	if env == "" {
		return "", fmt.Errorf("%s api key is required", api)
	}
	return "", fmt.Errorf("%s api key is required: set --api-key or $%s", api, env)
}
