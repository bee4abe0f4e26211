package render

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"llm-stream/internal/llm"
)

type fakeStream struct {
	deltas []string
	err    error
	closed bool
}

func (s *fakeStream) Recv() (llm.Delta, error) {
	if len(s.deltas) == 0 {
		if s.err != nil {
			err := s.err
			s.err = nil
			return llm.Delta{}, err
		}
		return llm.Delta{}, io.EOF
	}
	text := s.deltas[0]
	s.deltas = s.deltas[1:]
	return llm.Delta{Text: text}, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type countingHighlighter struct {
	calls int
}

func (h *countingHighlighter) Highlight(text string) (string, error) {
	h.calls++
	return text, nil
}

// bracketHighlighter wraps every line, so its output for earlier lines never
// changes as text is appended.
type bracketHighlighter struct{}

func (bracketHighlighter) Highlight(text string) (string, error) {
	var out []string
	for _, line := range lines(text) {
		out = append(out, "["+line+"]")
	}
	result := strings.Join(out, "\n")
	if strings.HasSuffix(text, "\n") {
		result += "\n"
	}
	return result, nil
}

type failingHighlighter struct{}

func (failingHighlighter) Highlight(string) (string, error) {
	return "", errors.New("no grammar")
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// screen replays terminal output: ESC[1G returns to column one, newline moves
// to the next line, colour escapes are ignored and other bytes overwrite.
func screen(output string) []string {
	output = ansiPattern.ReplaceAllString(output, "")
	rows := [][]rune{{}}
	row, col := 0, 0
	for len(output) > 0 {
		if strings.HasPrefix(output, columnZero) {
			col = 0
			output = output[len(columnZero):]
			continue
		}
		r := []rune(output)[0]
		output = output[len(string(r)):]
		if r == '\n' {
			row++
			col = 0
			if row == len(rows) {
				rows = append(rows, []rune{})
			}
			continue
		}
		for len(rows[row]) <= col {
			rows[row] = append(rows[row], ' ')
		}
		rows[row][col] = r
		col++
	}
	result := make([]string, len(rows))
	for i, row := range rows {
		result[i] = strings.TrimRight(string(row), " ")
	}
	return result
}

func TestRenderPassthrough(t *testing.T) {
	fragments := []string{"Hel", "", "lo\n", "```go\n", "x := 1", "\n```"}
	var out bytes.Buffer
	text, err := Render(&fakeStream{deltas: fragments}, &out, Options{Highlighter: &countingHighlighter{}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out.String() != strings.Join(fragments, "") {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if text != "Hello\n```go\nx := 1\n```" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestRenderSettledLines(t *testing.T) {
	var out bytes.Buffer
	r := New(&out, Options{Interactive: true, Quiet: true})
	for _, fragment := range []string{"ab", "c\nd", "e\n", "f"} {
		if err := r.Write(llm.Delta{Text: fragment}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	want := columnZero + "ab" +
		columnZero + "abc\nd" +
		columnZero + "de" +
		columnZero + "de\nf"
	if out.String() != want {
		t.Fatalf("unexpected bytes:\n got %q\nwant %q", out.String(), want)
	}
}

func TestRenderFinalState(t *testing.T) {
	fragments := []string{"# Ti", "tle\n\nSome ", "text", " here.\n", "```go\nfunc", " main() {}\n", "```", "\nend"}
	var out bytes.Buffer
	stream := &fakeStream{deltas: fragments}
	_, err := Render(stream, &out, Options{Interactive: true, Quiet: true, Highlighter: bracketHighlighter{}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	want, _ := bracketHighlighter{}.Highlight(strings.Join(fragments, ""))
	got := screen(out.String())
	if strings.Join(got, "\n") != want {
		t.Fatalf("unexpected screen:\n%s\nwant:\n%s", strings.Join(got, "\n"), want)
	}
	if !stream.closed {
		t.Fatalf("expected stream to be closed")
	}
}

func TestRenderChromaFinalState(t *testing.T) {
	fragments := []string{"Intro\n", "```go\n", "package main\n\nfunc ", "main() {\n\tprintln(\"hi\")\n}\n", "```\n", "done"}
	var out bytes.Buffer
	r := New(&out, Options{Interactive: true, Quiet: true, Highlighter: NewChromaHighlighter("go", "monokai")})
	for _, fragment := range fragments {
		if err := r.Write(llm.Delta{Text: fragment}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	want := strings.Join(fragments, "")
	if got := ansiPattern.ReplaceAllString(r.Output(), ""); got != want {
		t.Fatalf("highlighted output lost text:\n%q\nwant\n%q", got, want)
	}
	if got := strings.Join(screen(out.String()), "\n"); got != want {
		t.Fatalf("unexpected screen:\n%q\nwant\n%q", got, want)
	}
}

func TestEmptyFragmentsAreInert(t *testing.T) {
	defer goleak.VerifyNone(t)

	highlighter := &countingHighlighter{}
	var out bytes.Buffer
	r := New(&out, Options{Interactive: true, Highlighter: highlighter})
	for i := 0; i < 5; i++ {
		if err := r.Write(llm.Delta{}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if highlighter.calls != 0 {
		t.Fatalf("empty fragments triggered %d renders", highlighter.calls)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if err := r.Finish(nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
}

func TestSpinnerStoppedBeforeFirstFragment(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out bytes.Buffer
	r := New(&out, Options{Interactive: true, Highlighter: &countingHighlighter{}})
	r.Start()
	if err := r.Write(llm.Delta{Text: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Write(llm.Delta{Text: "y"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Finish(nil); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := r.Finish(nil); err != nil {
		t.Fatalf("second finish: %v", err)
	}

	output := out.String()
	if !strings.Contains(output, spinnerLabel) {
		t.Fatalf("spinner never drawn: %q", output)
	}
	if !strings.HasSuffix(output, columnZero+"x"+columnZero+"xy") {
		t.Fatalf("unexpected tail: %q", output)
	}
	if got := screen(output); len(got) != 1 || got[0] != "xy" {
		t.Fatalf("spinner remnants left: %q", got)
	}
}

func TestRenderErrorClearsSpinner(t *testing.T) {
	defer goleak.VerifyNone(t)

	cause := &llm.ConnectionError{URL: "http://example.test", Err: errors.New("refused")}
	var out bytes.Buffer
	_, err := Render(&fakeStream{err: cause}, &out, Options{Interactive: true})
	var connErr *llm.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if got := screen(out.String()); len(got) != 1 || got[0] != "" {
		t.Fatalf("spinner left on screen: %q", got)
	}
}

func TestRenderHighlightFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	var out bytes.Buffer
	_, err := Render(&fakeStream{deltas: []string{"a"}}, &out, Options{Interactive: true, Highlighter: failingHighlighter{}})
	if err == nil || !strings.Contains(err.Error(), "no grammar") {
		t.Fatalf("expected highlight error, got %v", err)
	}
	if got := screen(out.String()); len(got) != 1 || got[0] != "" {
		t.Fatalf("spinner left on screen: %q", got)
	}
}

func TestRenderEndTwice(t *testing.T) {
	stream := &fakeStream{deltas: []string{"a"}}
	var out bytes.Buffer
	if _, err := Render(stream, &out, Options{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	before := out.String()
	if _, err := Render(stream, &out, Options{}); err != nil {
		t.Fatalf("second render: %v", err)
	}
	if out.String() != before {
		t.Fatalf("ended stream produced output: %q", out.String())
	}
}

func TestLines(t *testing.T) {
	cases := map[string]int{
		"":         0,
		"a":        1,
		"a\n":      1,
		"\n":       1,
		"a\nb":     2,
		"a\r\nb\n": 2,
		"a\n\n":    2,
	}
	for input, want := range cases {
		if got := len(lines(input)); got != want {
			t.Fatalf("lines(%q): got %d want %d", input, got, want)
		}
	}
	if got := lines("a\r\nb"); got[0] != "a" {
		t.Fatalf("carriage return kept: %q", got)
	}
}

func TestNewHighlighter(t *testing.T) {
	h, err := NewHighlighter(HighlightOptions{NoColor: true})
	if err != nil {
		t.Fatalf("new highlighter: %v", err)
	}
	if out, _ := h.Highlight("`code`"); out != "`code`" {
		t.Fatalf("plain highlighter changed text: %q", out)
	}
	h, err = NewHighlighter(HighlightOptions{Language: "no-such-language"})
	if err != nil {
		t.Fatalf("new highlighter: %v", err)
	}
	out, err := h.Highlight("plain words")
	if err != nil {
		t.Fatalf("highlight: %v", err)
	}
	if ansiPattern.ReplaceAllString(out, "") != "plain words" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGlamourHighlighterThemes(t *testing.T) {
	for _, theme := range []string{"", DefaultTheme, "monokai", "dracula", "light"} {
		h, err := NewHighlighter(HighlightOptions{Markdown: true, Theme: theme})
		if err != nil {
			t.Fatalf("theme %q: %v", theme, err)
		}
		out, err := h.Highlight("# Title\n\nsome *text*")
		if err != nil {
			t.Fatalf("theme %q: highlight: %v", theme, err)
		}
		plain := ansiPattern.ReplaceAllString(out, "")
		if !strings.Contains(plain, "Title") || !strings.Contains(plain, "text") {
			t.Fatalf("theme %q: unexpected output: %q", theme, out)
		}
	}
}
