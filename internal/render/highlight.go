package render

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"
)

const (
	DefaultLanguage = "markdown"
	DefaultTheme    = "ansi"

	ansiStyle = "monokai"
)

// Highlighter renders the whole reply so far. It is called again with the
// longer text on every fragment.
type Highlighter interface {
	Highlight(text string) (string, error)
}

type HighlightOptions struct {
	Language string
	Theme    string
	Markdown bool
	NoColor  bool
}

func NewHighlighter(opts HighlightOptions) (Highlighter, error) {
	switch {
	case opts.NoColor:
		return PlainHighlighter{}, nil
	case opts.Markdown:
		return NewGlamourHighlighter(opts.Theme)
	default:
		return NewChromaHighlighter(opts.Language, opts.Theme), nil
	}
}

type PlainHighlighter struct{}

func (PlainHighlighter) Highlight(text string) (string, error) { return text, nil }

// ChromaHighlighter colours source text with a chroma lexer. The "ansi" theme
// uses the 8 colour terminal palette, any other theme the 256 colour one.
type ChromaHighlighter struct {
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter chroma.Formatter
}

func NewChromaHighlighter(language, theme string) *ChromaHighlighter {
	lexer := lexers.Get(firstNonEmpty(language, DefaultLanguage))
	if lexer == nil {
		lexer = lexers.Fallback
	}
	h := &ChromaHighlighter{
		lexer:     chroma.Coalesce(lexer),
		style:     styles.Get(ansiStyle),
		formatter: formatters.TTY8,
	}
	if theme = strings.TrimSpace(theme); theme != "" && theme != DefaultTheme {
		h.style = styles.Get(theme)
		h.formatter = formatters.TTY256
	}
	return h
}

func (h *ChromaHighlighter) Highlight(text string) (string, error) {
	iterator, err := h.lexer.Tokenise(nil, text)
	if err != nil {
		return "", fmt.Errorf("tokenise: %w", err)
	}
	var builder strings.Builder
	// Each line is formatted on its own so colour escapes never span a newline.
	for _, line := range chroma.SplitTokensIntoLines(iterator.Tokens()) {
		newline := false
		if n := len(line); n > 0 && strings.HasSuffix(line[n-1].Value, "\n") {
			line[n-1].Value = strings.TrimSuffix(line[n-1].Value, "\n")
			newline = true
		}
		if err := h.formatter.Format(&builder, h.style, chroma.Literator(line...)); err != nil {
			return "", fmt.Errorf("format: %w", err)
		}
		if newline {
			builder.WriteByte('\n')
		}
	}
	out := builder.String()
	// Some lexers append a newline to their input.
	if !strings.HasSuffix(text, "\n") {
		out = strings.TrimSuffix(out, "\n")
	}
	return out, nil
}

// GlamourHighlighter renders markdown with glamour.
type GlamourHighlighter struct {
	renderer *glamour.TermRenderer
}

// NewGlamourHighlighter uses theme when it names a glamour style. Any other
// theme, including ansi and chroma style names, picks a style from the
// terminal's background.
func NewGlamourHighlighter(theme string) (*GlamourHighlighter, error) {
	style := glamour.WithAutoStyle()
	if _, ok := glamourstyles.DefaultStyles[theme]; ok {
		style = glamour.WithStandardStyle(theme)
	}
	renderer, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &GlamourHighlighter{renderer: renderer}, nil
}

func (h *GlamourHighlighter) Highlight(text string) (string, error) {
	out, err := h.renderer.Render(text)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
