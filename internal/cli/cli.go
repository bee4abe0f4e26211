package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

// Execute runs the e command with args and returns the process exit code.
func Execute(ctx context.Context, args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if in == nil {
		in = eofReader{}
	}
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	root := NewRootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	if err := root.ExecuteContext(ctx); err != nil {
		io.WriteString(errOut, errorStyle.Render("error:")+" "+err.Error()+"\n")
		return 1
	}
	return 0
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
