package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alienrisk/internal/adapters/httpapi"
	"alienrisk/internal/blob"
	"alienrisk/internal/config"
	"alienrisk/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	expvarName      = "alienrisk_store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeUsage, "load config", err)
			}
			recorder, routerOpts, err := newServeMetrics(cfg.Telemetry)
			if err != nil {
				return WrapExitError(ExitFailure, ErrCodeGeneric, "register metrics", err)
			}
			s, err := openSession(cmd, rootOpts, core.WithMetricsRecorder(recorder))
			if err != nil {
				return err
			}
			defer s.Close()

			if addr == "" {
				addr = s.cfg.HTTP.Addr
			}
			if svc, err := s.archive(cmd.Context()); err == nil {
				routerOpts = append(routerOpts, httpapi.WithArchive(svc))
			} else if !errors.Is(err, blob.ErrDisabled) {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewRouter(s.store, s.logger, routerOpts...),
				ReadHeaderTimeout: 5 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				s.logger.Info("http server listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()
			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return WrapExitError(ExitFailure, ErrCodeGeneric, "http server", err)
			case <-ctx.Done():
			}
			s.logger.Info("shutting down http server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return WrapExitError(ExitFailure, ErrCodeGeneric, "http shutdown", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to http.addr from config)")
	return cmd
}

// newServeMetrics builds the store recorder named by cfg and the router
// options exposing it: /metrics for prometheus, /debug/vars for expvar.
func newServeMetrics(cfg config.Telemetry) (core.MetricsRecorder, []httpapi.Option, error) {
	if cfg.Metrics == config.MetricsExpvar {
		return core.NewExpvarMetricsRecorder(expvarName), []httpapi.Option{httpapi.WithExpvar()}, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return nil, nil, err
	}
	return recorder, []httpapi.Option{httpapi.WithMetricsGatherer(reg)}, nil
}
