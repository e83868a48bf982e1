package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mentor-sync/internal/api"
	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/metrics"
	"github.com/sells-group/mentor-sync/internal/monitoring"
	"github.com/sells-group/mentor-sync/internal/pipeline"
	"github.com/sells-group/mentor-sync/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API, metrics and reconcile trigger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := buildServer(ctx, cfg, st)

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		if alerter.Enabled() {
			checker := monitoring.NewChecker(monitoring.NewCollector(st, pipeline.RunKind), alerter, cfg.Monitoring)
			go checker.Run(ctx)
		}

		err = startServer(ctx, srv.Handler(), resolvePort(servePort, cfg.Server.Port))
		srv.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildServer wires the API to a fresh metrics registry and a pipeline
// that reports into it.
func buildServer(ctx context.Context, c *config.Config, st store.Store) *api.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	p := newPipeline(c, st, m)

	return api.New(ctx, api.Config{
		Store: st,
		Runner: api.RunnerFunc(func(ctx context.Context, dryRun bool) error {
			_, err := p.WithDryRun(dryRun).Run(ctx)
			return err
		}),
		Gatherer:    reg,
		CORSOrigins: c.Server.CORSOrigins,
	})
}

func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer listens on port until ctx is cancelled, then shuts down
// gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return eris.Wrap(<-shutdownErr, "server shutdown")
}
