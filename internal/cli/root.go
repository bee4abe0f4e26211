package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"llm-stream/internal/config"
)

type Options struct {
	API         string
	Model       string
	MaxTokens   int
	MinTokens   int
	APIEnv      string
	APIVersion  string
	APIKey      string
	APIBaseURL  string
	Quiet       bool
	Language    string
	Theme       string
	Markdown    bool
	NoColor     bool
	System      string
	Temperature float32
	TopP        float32
	TopK        int
	Suffix      string
	File        string
	Template    string
	Vars        string
	Preset      string

	ConfigDir         string
	ConfigFile        string
	Dir               bool
	Config            bool
	PrintConversation bool
	DryRun            bool

	NoCache      bool
	From         string
	FromLast     bool
	Fork         bool
	Title        string
	Description  string
	Show         bool
	List         bool
	Delete       string
	Conversation string

	LogLevel    string
	MetricsFile string
	MaxRetries  int
}

func NewRootCmd() *cobra.Command {
	opts := &Options{}
	root := &cobra.Command{
		Use:   "e [prompt]",
		Short: "Stream LLM replies into the terminal",
		Long: `e sends a prompt to OpenAI, Anthropic, Google, Mistral or Ollama and
prints the reply as it streams in, syntax highlighted when writing to a terminal.
Use - as the prompt to read it from stdin.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.API, "api", "a", "", "api provider: openai, anthropic, google, mistral, mistral-fim, ollama")
	flags.StringVarP(&opts.Model, "model", "m", "", "model to use")
	flags.IntVar(&opts.MaxTokens, "max-tokens", 0, "maximum number of tokens to generate")
	flags.IntVar(&opts.MinTokens, "min-tokens", 0, "minimum number of tokens to generate")
	flags.StringVar(&opts.APIEnv, "api-env", "", "environment variable holding the api key")
	flags.StringVar(&opts.APIVersion, "api-version", "", "api version")
	flags.StringVar(&opts.APIKey, "api-key", "", "api key, overrides the environment")
	flags.StringVar(&opts.APIBaseURL, "api-base-url", "", "api base url")
	flags.BoolVar(&opts.Quiet, "quiet", false, "don't show the spinner")
	flags.StringVar(&opts.Language, "language", "", "language used for syntax highlighting (default markdown)")
	flags.StringVar(&opts.Theme, "theme", "", "highlighting theme, ansi or a chroma style name (default ansi)")
	flags.BoolVar(&opts.Markdown, "markdown", false, "render the reply as markdown")
	flags.BoolVar(&opts.NoColor, "no-color", false, "don't colour the output")
	flags.StringVar(&opts.System, "system", "", "system message")
	flags.Float32Var(&opts.Temperature, "temperature", 0, "temperature")
	flags.Float32Var(&opts.TopP, "top-p", 0, "top-p")
	flags.IntVar(&opts.TopK, "top-k", 0, "top-k")
	flags.StringVar(&opts.Suffix, "suffix", "", "suffix prompt for fill-in-the-middle")
	flags.StringVarP(&opts.File, "file", "F", "", "file added to the prompt, use -F- for stdin")
	flags.StringVarP(&opts.Template, "template", "t", "", "prompt template to use")
	flags.StringVar(&opts.Vars, "vars", "", "template variables as a JSON object")
	flags.StringVarP(&opts.Preset, "preset", "p", "", "preset from the config file")
	flags.StringVar(&opts.ConfigDir, "config-dir", config.DefaultDir, "directory holding the config file and history")
	flags.StringVar(&opts.ConfigFile, "config-file", "", "config file (default <config-dir>/config.toml)")
	flags.BoolVar(&opts.Dir, "dir", false, "print the config directory and exit")
	flags.BoolVar(&opts.Config, "config", false, "print the config file in use and exit")
	flags.BoolVar(&opts.PrintConversation, "print-conversation", false, "print the conversation sent to the model")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "don't call the model")
	flags.BoolVar(&opts.NoCache, "no-cache", false, "don't save the conversation")
	flags.StringVar(&opts.From, "from", "", "continue the conversation with this id")
	flags.BoolVar(&opts.FromLast, "from-last", false, "continue the last conversation")
	flags.BoolVar(&opts.Fork, "fork", false, "save a continued conversation under a new id")
	flags.StringVar(&opts.Title, "title", "", "conversation title")
	flags.StringVar(&opts.Description, "description", "", "conversation description")
	flags.BoolVar(&opts.Show, "show", false, "print the conversation selected with --from or --from-last")
	flags.BoolVar(&opts.List, "list", false, "list saved conversations")
	flags.StringVar(&opts.Delete, "delete", "", "delete the saved conversation with this id")
	flags.StringVar(&opts.Conversation, "conversation", "", "messages to prepend, as a JSON array of {role, content}")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.MetricsFile, "metrics-file", "", "write stream metrics in the Prometheus text format to this file")
	flags.IntVar(&opts.MaxRetries, "max-retries", 0, "maximum consecutive reconnect attempts, 0 retries forever")

	root.MarkFlagsMutuallyExclusive("from", "from-last")
	root.MarkFlagsMutuallyExclusive("markdown", "no-color")

	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig resolves the config paths, loads the .env file found next to
// the config and reads the config file.
func loadConfig(opts *Options) (config.Paths, config.Config, error) {
	paths, err := config.ResolvePaths(opts.ConfigDir, opts.ConfigFile)
	if err != nil {
		return paths, config.Config{}, err
	}
	if err := godotenv.Load(filepath.Join(paths.Dir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return paths, config.Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(viper.New(), paths)
	if err != nil {
		return paths, cfg, err
	}
	return paths, cfg, nil
}

func newLogger(cmd *cobra.Command, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl})), nil
}

// flagSettings collects the flags that take part in the config merge. Flags
// left at their zero value are unset unless given explicitly.
func flagSettings(cmd *cobra.Command, opts *Options) config.Settings {
	s := config.Settings{
		API:      opts.API,
		Env:      opts.APIEnv,
		Key:      opts.APIKey,
		BaseURL:  opts.APIBaseURL,
		Quiet:    opts.Quiet,
		Language: opts.Language,
		Theme:    opts.Theme,
		Params: config.Params{
			Model:   opts.Model,
			System:  opts.System,
			Version: opts.APIVersion,
		},
	}
	flags := cmd.Flags()
	if flags.Changed("max-tokens") {
		s.MaxTokens = &opts.MaxTokens
	}
	if flags.Changed("min-tokens") {
		s.MinTokens = &opts.MinTokens
	}
	if flags.Changed("temperature") {
		s.Temperature = &opts.Temperature
	}
	if flags.Changed("top-p") {
		s.TopP = &opts.TopP
	}
	if flags.Changed("top-k") {
		s.TopK = &opts.TopK
	}
	return s
}
