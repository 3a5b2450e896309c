package main

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"img2pdf/docs"
	"img2pdf/internal/config"
	handlers "img2pdf/internal/http/handler"
	"img2pdf/internal/http/middleware"
	"img2pdf/internal/logger"
	"img2pdf/internal/otel"
	"img2pdf/internal/service"
)

const (
	shutdownTimeout = 10 * time.Second
	// formOverhead covers multipart boundaries and the session_id field.
	formOverhead = 1 << 20
)

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP conversion service",
		Long: `Starts the upload, generate, download and cleanup API together with
/health, /healthz, /metrics and the Swagger UI under /swagger/.

Configuration is read from the environment (a .env file is loaded when present)
and from the optional YAML file named by IMG2PDF_CONFIG.`,
		Example: `  # Start on the configured PORT (default 8080)
  img2pdf serve

  # Start on a custom port
  img2pdf serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")

	return cmd
}

func serve(ctx context.Context, cfg *config.AppConfig) error {
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if _, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof)); err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}

	shutdownTracing, err := otel.Init(ctx, version, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Initialize the session pipeline and its background reaper
	svc, err := pipeline(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go service.NewReaper(svc, cfg.Session.ReapInterval, cfg.Session.InactivityThreshold, log).Run(reaperCtx)

	promMW, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Session.MaxUploadBytes)*cfg.Session.MaxFilesPerBatch + formOverhead,
		DisableStartupMessage: true,
	})

	// Register global middleware
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.Logger(log.Named("http")))
	app.Use(promMW.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, svc)

	addr := ":" + cfg.Port
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", addr),
			zap.String("session_root", cfg.Session.RootDir),
		)
		if err := app.Listen(addr); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
			return err
		}
		log.Info("server stopped")
		return nil
	case err := <-serverErr:
		return err
	}
}
