package render

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"llm-stream/internal/llm"
)

type Options struct {
	// Interactive enables highlighting and cursor movement. Without it
	// fragments are written through unchanged.
	Interactive bool
	// Quiet suppresses the spinner.
	Quiet       bool
	Highlighter Highlighter
}

// Renderer prints a streamed reply. Every fragment re-highlights the whole
// reply; only the last previously printed line and anything after it is
// written again.
type Renderer struct {
	out         *bufio.Writer
	interactive bool
	highlighter Highlighter
	spinner     *Spinner

	accumulated []byte
	previous    string
}

func New(w io.Writer, opts Options) *Renderer {
	r := &Renderer{
		out:         bufio.NewWriter(w),
		interactive: opts.Interactive,
		highlighter: opts.Highlighter,
	}
	if r.highlighter == nil {
		r.highlighter = PlainHighlighter{}
	}
	if opts.Interactive && !opts.Quiet {
		r.spinner = NewSpinner(w, spinnerLabel)
	}
	return r
}

func (r *Renderer) Start() {
	if r.spinner != nil {
		r.spinner.Start()
	}
}

func (r *Renderer) Write(delta llm.Delta) error {
	if delta.Text == "" {
		return nil
	}
	r.stopSpinner()
	r.accumulated = append(r.accumulated, delta.Text...)

	if !r.interactive {
		if _, err := r.out.WriteString(delta.Text); err != nil {
			return fmt.Errorf("write: %w", err)
		}
		return r.out.Flush()
	}

	output, err := r.highlighter.Highlight(strings.ToValidUTF8(string(r.accumulated), "\uFFFD"))
	if err != nil {
		return fmt.Errorf("highlight: %w", err)
	}
	settled := max(len(lines(r.previous))-1, 0)
	rendered := lines(output)
	if settled > len(rendered) {
		settled = len(rendered)
	}
	r.out.WriteString(columnZero)
	r.out.WriteString(strings.Join(rendered[settled:], "\n"))
	r.previous = output
	return r.out.Flush()
}

// Finish stops the spinner and leaves the cursor on a clean line when err is
// not nil. It returns err.
func (r *Renderer) Finish(err error) error {
	r.stopSpinner()
	if err != nil && r.interactive && r.previous != "" {
		r.out.WriteString("\n")
	}
	if flushErr := r.out.Flush(); err == nil {
		err = flushErr
	}
	return err
}

// Text returns the reply received so far with surrounding whitespace trimmed.
func (r *Renderer) Text() string {
	return strings.TrimSpace(strings.ToValidUTF8(string(r.accumulated), "\uFFFD"))
}

// Output returns the last highlighted rendering.
func (r *Renderer) Output() string {
	return r.previous
}

func (r *Renderer) stopSpinner() {
	if r.spinner != nil {
		r.spinner.Stop()
	}
}

// Drain writes every delta of stream and finishes the renderer. It returns
// the trimmed reply text.
func (r *Renderer) Drain(stream llm.Stream) (string, error) {
	defer stream.Close()
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return r.Text(), r.Finish(nil)
		}
		if err != nil {
			return r.Text(), r.Finish(err)
		}
		if err := r.Write(delta); err != nil {
			return r.Text(), r.Finish(err)
		}
	}
}

// Render drives stream to completion and returns the trimmed reply text.
func Render(stream llm.Stream, w io.Writer, opts Options) (string, error) {
	r := New(w, opts)
	r.Start()
	return r.Drain(stream)
}
