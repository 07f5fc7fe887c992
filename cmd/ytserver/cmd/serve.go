package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/suzxlabs/ytserver/pkg/api"
	"github.com/suzxlabs/ytserver/pkg/artifacts"
	"github.com/suzxlabs/ytserver/pkg/logging"
	"github.com/suzxlabs/ytserver/pkg/metrics"
	"github.com/suzxlabs/ytserver/pkg/session"
	"github.com/suzxlabs/ytserver/pkg/shutdown"
	"github.com/suzxlabs/ytserver/pkg/supervisor"
	"github.com/suzxlabs/ytserver/pkg/tracing"
	"github.com/suzxlabs/ytserver/pkg/worker"
)

const maxLogSize = 100 * 1024 * 1024

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the download server",
	Long: `Starts the HTTP server: the WebSocket endpoint, the download and format
endpoints, artifact retrieval, health and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", ":3000", "address to listen on")
	serveCmd.Flags().String("download-dir", "./downloads", "directory for finished downloads")
	serveCmd.Flags().String("static-dir", "", "serve a web page from this directory at /")
	serveCmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")

	v.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen"))
	v.BindPFlag("download_dir", serveCmd.Flags().Lookup("download-dir"))
	v.BindPFlag("static_dir", serveCmd.Flags().Lookup("static-dir"))
	v.BindPFlag("log_level", serveCmd.Flags().Lookup("log-level"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, "ytserver")
	if err != nil {
		return err
	}

	shutdownMgr := shutdown.New(cfg.ShutdownTimeout, logger)
	shutdownMgr.Register("logger", shutdown.CloseResource(logger))

	provider, err := tracing.InitTracer(tracing.Config{
		ServiceName:    "ytserver",
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		return err
	}
	shutdownMgr.Register("tracer", provider.Shutdown)

	m := metrics.New()

	store, err := artifacts.NewStore(cfg.DownloadDir, logger)
	if err != nil {
		return err
	}
	store.SetObserver(m)
	shutdownMgr.Register("reclaim timers", func(ctx context.Context) error {
		store.Close()
		return nil
	})

	reclaimer := artifacts.NewReclaimer(artifacts.ReclaimerConfig{
		Enabled:   true,
		Retention: cfg.Retention,
		Interval:  cfg.SweepInterval,
	}, store)
	reclaimer.Start()
	shutdownMgr.Register("reclaimer", func(ctx context.Context) error {
		reclaimer.Stop()
		return nil
	})

	sessions := session.NewRegistry(logger)
	sessions.SetObserver(m)
	shutdownMgr.Register("sessions", func(ctx context.Context) error {
		sessions.CloseAll()
		return nil
	})

	adapter := worker.NewAdapter(workerOptions(cfg), logger)
	jobs := supervisor.New(sessions, adapter, store, cfg.Retention, logger)
	jobs.SetRecorder(m)
	jobs.SetTracer(provider.Tracer())
	shutdownMgr.Register("jobs", jobs.Wait)

	handler := api.NewHandler(sessions, jobs, adapter, store, api.Options{
		ProbeTimeout: cfg.ProbeTimeout,
		StaticDir:    cfg.StaticDir,
		Metrics:      m.Handler(),
	}, logger)
	router := api.NewRouter(handler, tracing.HTTPMiddleware(provider), m.Middleware)

	// No write timeout: artifact responses and WebSocket sessions are long-lived.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	shutdownMgr.Register("http server", shutdown.StopHTTPServer(srv))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var serveErr error
	go func() {
		logger.Info("Listening", logging.Fields{
			"addr":         cfg.ListenAddr,
			"download_dir": store.Dir(),
			"retention":    cfg.Retention.String(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", logging.Fields{"error": err.Error()})
			serveErr = err
			cancel()
		}
	}()

	if cfg.LogFile {
		go rotateLogs(ctx, logger)
	}

	shutdownMgr.Wait(ctx)
	return serveErr
}

func rotateLogs(ctx context.Context, logger *logging.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := logger.RotateIfNeeded(maxLogSize); err != nil {
				logger.Warn("Log rotation failed", logging.Fields{"error": err.Error()})
			}
		}
	}
}
