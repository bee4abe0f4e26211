package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"llm-stream/internal/version"
)

type versionOptions struct {
	JSON  bool
	Table bool
}

func newVersionCmd() *cobra.Command {
	opts := &versionOptions{}
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print version information as JSON")
	cmd.Flags().BoolVar(&opts.Table, "table", false, "print version information as a table")
	return cmd
}

func runVersion(cmd *cobra.Command, opts *versionOptions) error {
	if opts.JSON && opts.Table {
		return errors.New("only one of --json or --table can be set")
	}
	info := version.Get()
	out := cmd.OutOrStdout()
	switch {
	case opts.JSON:
		data, err := info.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, data)
	case opts.Table:
		fmt.Fprintln(out, info.Table())
	default:
		fmt.Fprintln(out, info.String())
	}
	return nil
}
