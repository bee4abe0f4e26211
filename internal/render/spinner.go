package render

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

const spinnerLabel = "Loading..."

// Spinner draws a busy indicator on the current line until stopped. Stop
// waits for the drawing goroutine to exit and erases what it drew.
type Spinner struct {
	w        io.Writer
	label    string
	frames   []string
	interval time.Duration
	style    lipgloss.Style

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
	width     int
}

func NewSpinner(w io.Writer, label string) *Spinner {
	dots := spinner.Dot
	return &Spinner{
		w:        w,
		label:    label,
		frames:   dots.Frames,
		interval: dots.FPS,
		style:    lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	s.startOnce.Do(func() {
		s.started = true
		go s.run()
	})
}

func (s *Spinner) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	frame := 0
	s.draw(frame)
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			frame++
			s.draw(frame)
		}
	}
}

func (s *Spinner) draw(frame int) {
	line := s.style.Render(s.frames[frame%len(s.frames)]) + s.label
	if width := lipgloss.Width(line); width > s.width {
		s.width = width
	}
	_, _ = io.WriteString(s.w, columnZero+line)
}

// Stop is safe to call more than once; only the first call has an effect.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		s.startOnce.Do(func() {})
		if !s.started {
			return
		}
		close(s.stop)
		<-s.done
		_, _ = io.WriteString(s.w, columnZero+strings.Repeat(" ", s.width)+columnZero)
	})
}
