package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"llm-stream/internal/config"
	"llm-stream/internal/history"
	"llm-stream/internal/llm"
	"llm-stream/internal/render"
)

const titleLength = 60

func run(cmd *cobra.Command, opts *Options, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	paths, err := config.ResolvePaths(opts.ConfigDir, opts.ConfigFile)
	if err != nil {
		return err
	}
	if opts.Dir {
		fmt.Fprintln(out, paths.Dir)
		return nil
	}
	paths, cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if opts.Config {
		fmt.Fprintln(out, paths.File)
		return nil
	}

	logger, err := newLogger(cmd, firstNonEmpty(opts.LogLevel, cfg.LogLevel, "warn"))
	if err != nil {
		return err
	}

	if opts.List {
		return listConversations(ctx, out, paths)
	}
	if opts.Show {
		return showConversation(ctx, out, paths, opts)
	}
	if opts.Delete != "" {
		return deleteConversation(ctx, out, paths, opts.Delete)
	}

	settings, err := cfg.Merge(flagSettings(cmd, opts), opts.Preset)
	if err != nil {
		return err
	}
	api, err := llm.ParseAPI(settings.API)
	if err != nil {
		return err
	}

	var store *history.Store
	if !opts.NoCache || opts.From != "" || opts.FromLast {
		store, err = history.Open(paths.History)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	rec, err := selectRecord(ctx, store, opts)
	if err != nil {
		return err
	}

	prompt, file, err := readInput(args, opts.File, cmd.InOrStdin())
	if err != nil {
		return err
	}
	prompt, system, err := buildPrompt(cfg, opts, settings, prompt, file)
	if err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return errors.New("prompt is required")
	}
	extra, err := parseConversation(opts.Conversation)
	if err != nil {
		return err
	}
	conv := buildConversation(rec.Messages, extra, system, prompt)

	if opts.PrintConversation {
		if err := printJSON(out, conv); err != nil {
			return err
		}
	}

	key, err := settings.ResolveKey(os.Getenv)
	if err != nil {
		return err
	}
	backend, err := llm.NewBackend(llm.BackendConfig{
		API:     api,
		BaseURL: settings.BaseURL,
		Token:   key,
		Version: settings.Version,
	})
	if err != nil {
		return err
	}

	policy := llm.DefaultReconnectPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cmd.Flags().Changed("max-retries") {
		policy.MaxRetries = opts.MaxRetries
	}
	if policy.MaxRetries < 0 {
		return errors.New("max-retries must not be negative")
	}
	var metrics *llm.Metrics
	if opts.MetricsFile != "" {
		metrics = llm.NewMetrics()
	}
	client := llm.NewClient(backend,
		llm.WithPolicy(policy),
		llm.WithLogger(logger),
		llm.WithMetrics(metrics),
	)
	params := llm.Params{
		Model:       settings.Model,
		Suffix:      opts.Suffix,
		MaxTokens:   settings.MaxTokens,
		MinTokens:   settings.MinTokens,
		Temperature: settings.Temperature,
		TopP:        settings.TopP,
		TopK:        settings.TopK,
	}

	if opts.DryRun {
		if opts.PrintConversation {
			return nil
		}
		req, err := client.Request(conv, params)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\n%s\n", req.Method, req.RedactedURL(), req.Body)
		return nil
	}

	highlighter, err := render.NewHighlighter(render.HighlightOptions{
		Language: settings.Language,
		Theme:    settings.Theme,
		Markdown: opts.Markdown,
		NoColor:  opts.NoColor,
	})
	if err != nil {
		return err
	}
	interactive := render.IsTerminal(out)
	renderer := render.New(out, render.Options{
		Interactive: interactive,
		Quiet:       settings.Quiet,
		Highlighter: highlighter,
	})
	renderer.Start()
	stream, err := client.Stream(ctx, conv, params)
	if err != nil {
		return renderer.Finish(err)
	}
	reply, err := renderer.Drain(stream)
	if writeErr := metrics.WriteFile(opts.MetricsFile); writeErr != nil {
		logger.Warn("writing metrics", "path", opts.MetricsFile, "error", writeErr)
	}
	if err != nil {
		return err
	}
	if interactive {
		fmt.Fprintln(out)
	}

	if opts.NoCache {
		return nil
	}
	rec.Messages = append(conv, llm.Message{Role: llm.RoleAssistant, Content: reply})
	rec.API = client.Backend().Name()
	rec.Model = settings.Model
	rec.Title = firstNonEmpty(opts.Title, rec.Title, title(prompt))
	rec.Description = firstNonEmpty(opts.Description, rec.Description)
	if err := store.Save(ctx, &rec); err != nil {
		return err
	}
	logger.Debug("conversation saved", "id", rec.ID)
	return nil
}

// selectRecord loads the conversation to continue, forked when asked. It
// returns an empty record when no conversation is selected.
func selectRecord(ctx context.Context, store *history.Store, opts *Options) (history.Record, error) {
	var (
		rec history.Record
		err error
	)
	switch {
	case opts.From != "":
		rec, err = store.Get(ctx, opts.From)
	case opts.FromLast:
		rec, err = store.Last(ctx)
	default:
		return history.Record{}, nil
	}
	if err != nil {
		return history.Record{}, err
	}
	if opts.Fork {
		rec = rec.Fork()
	}
	return rec, nil
}

func listConversations(ctx context.Context, out io.Writer, paths config.Paths) error {
	store, err := history.Open(paths.History)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(ctx)
	if err != nil {
		return err
	}
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("ID", "UPDATED", "API", "MODEL", "TITLE")
	for _, rec := range records {
		table.AddRow(rec.ID, rec.UpdatedAt.Local().Format(time.DateTime), rec.API, rec.Model, rec.Title)
	}
	fmt.Fprintln(out, table)
	return nil
}

func deleteConversation(ctx context.Context, out io.Writer, paths config.Paths, id string) error {
	store, err := history.Open(paths.History)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	fmt.Fprintln(out, "deleted", id)
	return nil
}

type conversationView struct {
	ID          string           `json:"id"`
	Parent      string           `json:"parent,omitempty"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	API         string           `json:"api,omitempty"`
	Model       string           `json:"model,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Messages    llm.Conversation `json:"messages"`
}

func showConversation(ctx context.Context, out io.Writer, paths config.Paths, opts *Options) error {
	if opts.From == "" && !opts.FromLast {
		return errors.New("--show needs --from or --from-last")
	}
	store, err := history.Open(paths.History)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := selectRecord(ctx, store, &Options{From: opts.From, FromLast: opts.FromLast})
	if err != nil {
		return err
	}
	return printJSON(out, conversationView{
		ID:          rec.ID,
		Parent:      rec.Parent,
		Title:       rec.Title,
		Description: rec.Description,
		API:         rec.API,
		Model:       rec.Model,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		Messages:    rec.Messages,
	})
}

func printJSON(out io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// title is the first line of prompt, shortened to titleLength runes.
func title(prompt string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= titleLength {
		return line
	}
	runes := []rune(line)
	return string(runes[:titleLength-3]) + "..."
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
