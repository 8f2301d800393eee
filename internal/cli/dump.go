package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkuiper/recordstore/internal/record"
	"github.com/mkuiper/recordstore/internal/sync"
)

// NewDumpCommand creates the dump command: sync a kind and print the
// resulting cache collection as canonical JSON. Canonical output is
// byte-stable, so dumps diff cleanly between runs.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		server     string
		schemaPath string
	)
	cmd := &cobra.Command{
		Use:           "dump <kind>",
		Short:         "Sync one kind and print its cache collection as canonical JSON",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(rootOpts, args[0], server, schemaPath, cmd)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://127.0.0.1:8484", "sync server base URL")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "kind schema file (optional)")
	return cmd
}

func runDump(opts *RootOptions, kind, server, schemaPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	c, st, err := buildClient(server, schemaPath)
	if err != nil {
		formatter.Error(err.Error())
		return err
	}

	res := c.Sync(cmd.Context(), kind, sync.Options{})
	if !res.OK {
		err := &ExitError{Code: ExitFailure, Message: fmt.Sprintf("sync failed (status %d)", res.Status)}
		formatter.Error(err.Error())
		return err
	}

	out, err := record.MarshalCanonical(st.State().Collection(kind))
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "encode collection", Err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
