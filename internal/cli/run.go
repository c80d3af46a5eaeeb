package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bizsync/internal/diag"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Listen   string
	Interval time.Duration
	NoDiag   bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drain the send queue until stopped",
		Long: `Start the send queue service and the diagnostics server.

The queue is drained every drain_interval while the remote is reachable.
Diagnostics are served on the configured listen address.

Example:
  bizsync run --config ./bizsync.yaml
  bizsync run --db /tmp/bizsync.db --listen 127.0.0.1:9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "diagnostics listen address (overrides config)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "drain interval (overrides config)")
	cmd.Flags().BoolVar(&opts.NoDiag, "no-diag", false, "do not serve diagnostics")

	return cmd
}

func runService(opts *RunOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.BaseURL == "" {
		return NewExitError(ExitCommandError, "base_url is required to run")
	}

	interval := a.cfg.DrainInterval
	if opts.Interval > 0 {
		interval = opts.Interval
	}
	listen := a.cfg.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	a.queue.Start(ctx, interval)
	defer a.queue.Stop()

	a.logger.Info("queue service started",
		"db", a.cfg.Database,
		"base_url", a.cfg.BaseURL,
		"interval", interval)
	fmt.Fprintln(cmd.OutOrStdout(), "Queue service started.")

	var serveErr chan error
	var srv *http.Server
	if !opts.NoDiag {
		ln, err := net.Listen("tcp", listen)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to listen", err)
		}
		srv = &http.Server{
			Handler: diag.NewRouter(a.queue,
				diag.WithLogger(a.logger),
				diag.WithPing(a.store.Ping)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		serveErr = make(chan error, 1)
		go func() {
			serveErr <- srv.Serve(ln)
		}()
		fmt.Fprintf(cmd.OutOrStdout(), "Diagnostics on http://%s\n", ln.Addr())
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "diagnostics server error", err)
		}
	}

	if srv != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("diagnostics shutdown", "error", err)
		}
	}

	a.logger.Info("queue service stopped gracefully")
	return nil
}
