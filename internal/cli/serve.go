package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkuiper/recordstore/internal/backend"
)

// NewServeCommand creates the serve command: the sqlite-backed reference
// sync server.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath string
		addr   string
	)
	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Run the reference sync server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts, dbPath, addr, cmd)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "recordstore.db", "sqlite database path")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8484", "listen address")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, dbPath, addr string, cmd *cobra.Command) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: serveLogLevel(opts),
	}))

	db, err := backend.Open(dbPath)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "open database", Err: err}
	}
	defer db.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &ExitError{Code: ExitCommandError, Message: "listen", Err: err}
	}
	logger.Info("sync server listening", "addr", ln.Addr().String(), "db", dbPath)

	srv := &http.Server{Handler: backend.NewHandler(db, backend.WithLogger(logger))}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		srv.Shutdown(context.Background())
		<-done
		return nil
	case err := <-done:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return &ExitError{Code: ExitCommandError, Message: "serve", Err: err}
	}
}

func serveLogLevel(opts *RootOptions) slog.Level {
	if opts.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
