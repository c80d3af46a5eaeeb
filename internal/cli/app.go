package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/bizsync/internal/config"
	"github.com/roach88/bizsync/internal/connectivity"
	"github.com/roach88/bizsync/internal/sendqueue"
	"github.com/roach88/bizsync/internal/store"
	"github.com/roach88/bizsync/internal/transport"
)

// errNoRemote is returned by deliveries when no base URL is configured.
var errNoRemote = errors.New("no base_url configured")

// app is the wiring shared by commands that touch the local database.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *store.Store
	monitor *connectivity.Monitor
	queue   *sendqueue.Service
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing database", "error", err)
	}
}

func newLogger(opts *RootOptions, cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	return cfg, nil
}

// openApp loads config, opens the database and builds the queue service.
// Without a base URL the queue can still be inspected and appended to but
// never sends.
func openApp(opts *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts, cfg, cmd.ErrOrStderr())

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o700); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	logger.Debug("database ready", "path", cfg.Database)

	tr, monitor, err := newTransport(cfg, logger)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "invalid link", err)
	}

	svc := sendqueue.New(st, tr, monitor,
		sendqueue.WithMaxAttempts(cfg.MaxAttempts),
		sendqueue.WithTimeout(cfg.DeliveryTimeout),
		sendqueue.WithLogger(logger))

	return &app{cfg: cfg, logger: logger, store: st, monitor: monitor, queue: svc}, nil
}

func newTransport(cfg config.Config, logger *slog.Logger) (transport.Transport, *connectivity.Monitor, error) {
	if cfg.BaseURL == "" {
		offline := connectivity.NewMonitor(connectivity.Static(connectivity.NotConnected),
			connectivity.WithLogger(logger),
			connectivity.WithInitialState(connectivity.NotConnected))
		return transport.Func(func(context.Context, transport.Request) error {
			return errNoRemote
		}), offline, nil
	}

	link, err := connectivity.ParseState(cfg.Link)
	if err != nil {
		return nil, nil, err
	}
	client := &http.Client{Timeout: cfg.DeliveryTimeout}
	probeURL := cfg.ProbeURL
	if probeURL == "" {
		probeURL = cfg.BaseURL
	}
	monitor := connectivity.NewMonitor(connectivity.HTTPProber(client, probeURL, link),
		connectivity.WithLogger(logger))

	tr := transport.NewHTTP(cfg.BaseURL,
		transport.WithClient(client),
		transport.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		transport.WithToken(cfg.Token))
	return tr, monitor, nil
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s not found", what), err)
	}
	return WrapExitError(ExitCommandError, fmt.Sprintf("failed to read %s", what), err)
}
