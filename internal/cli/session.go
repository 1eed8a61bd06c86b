package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"alienrisk/internal/archive"
	"alienrisk/internal/blob"
	"alienrisk/internal/config"
	"alienrisk/internal/core"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// session bundles what a command needs: config, logger, formatter and store.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	out    *OutputFormatter
	store  *core.Store
}

// openSession loads the config and opens the configured storage backend.
// Extra store options are appended after the defaults.
func openSession(cmd *cobra.Command, opts *RootOptions, storeOpts ...core.Option) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeUsage, "load config", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
	backend, err := core.OpenBackend(cmd.Context(), cfg.Storage, logger)
	if err != nil {
		return nil, WrapExitError(ExitFailure, ErrCodePersistence, "open storage", err)
	}
	logger.Debug("storage opened", "driver", cfg.Storage.Driver, "key", cfg.Storage.Key)

	all := []core.Option{core.WithKey(cfg.Storage.Key), core.WithLogger(logger)}
	if tracer := newTracer(cmd.ErrOrStderr(), cfg.Telemetry); tracer != nil {
		all = append(all, core.WithTracer(tracer))
	}
	all = append(all, storeOpts...)
	return &session{
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
		store: core.NewStore(backend, all...),
	}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close storage", "error", err)
	}
}

// archive opens the configured blob store and wraps it in an archive service.
func (s *session) archive(ctx context.Context) (*archive.Service, error) {
	blobs, err := blob.Open(ctx, s.cfg.Blob)
	if errors.Is(err, blob.ErrDisabled) {
		return nil, WrapExitError(ExitCommandError, ErrCodeUsage, "archiving needs blob.driver set to fs, s3 or memory", err)
	}
	if err != nil {
		return nil, WrapExitError(ExitFailure, ErrCodeGeneric, "open blob storage", err)
	}
	svc, err := archive.New(s.store, blobs, archive.WithLogger(s.logger))
	if err != nil {
		return nil, WrapExitError(ExitFailure, ErrCodeGeneric, "open archive", err)
	}
	return svc, nil
}

// newTracer returns the store tracer named by cfg, or nil for none.
func newTracer(stderr io.Writer, cfg config.Telemetry) core.Tracer {
	switch cfg.Trace {
	case config.TraceJSON:
		return core.NewJSONTracer(stderr)
	case config.TraceOTel:
		return core.NewOTelTracer(otel.GetTracerProvider())
	default:
		return nil
	}
}

// newLogger builds the slog handler named by cfg; verbose forces debug.
func newLogger(w io.Writer, cfg config.Log, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}
