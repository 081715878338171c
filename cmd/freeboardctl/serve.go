package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	router "github.com/goliatone/go-router"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/gorouter"
	"github.com/goliatone/go-freeboard/components/freeboard/httpapi"
	pkgfreeboard "github.com/goliatone/go-freeboard/pkg/freeboard"
)

type serveCmd struct {
	Addr      string `help:"Listen address (overrides config addr)."`
	Dashboard string `arg:"" optional:"" type:"path" help:"Dashboard document to load on start."`
}

func (cmd *serveCmd) Run(ctx context.Context, g *globals) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	if cmd.Addr != "" {
		cfg.Addr = cmd.Addr
	}
	if cmd.Dashboard != "" {
		cfg.Dashboard = cmd.Dashboard
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := pkgfreeboard.NewRuntime(pkgfreeboard.RuntimeOptions{
		Context:   ctx,
		Logger:    logger.WithField("component", "freeboard"),
		Manifests: cfg.Manifests,
		Columns:   cfg.Columns,
	})
	if err != nil {
		return err
	}
	defer rt.Dashboard.Close()

	if cfg.Dashboard != "" {
		if err := loadDashboardFile(ctx, rt.Dashboard, cfg.Dashboard, logger); err != nil {
			return err
		}
	}

	renderer, err := freeboard.NewTemplateRenderer()
	if err != nil {
		return fmt.Errorf("freeboardctl: template renderer: %w", err)
	}
	controller := freeboard.NewController(freeboard.ControllerOptions{
		Dashboard: rt.Dashboard,
		Renderer:  renderer,
		StreamURL: path.Join(cfg.BasePath, "ws"),
	})

	server := router.NewFiberAdapter()
	if err := gorouter.Register(gorouter.Config[*fiber.App]{
		Router:     server.Router(),
		Controller: controller,
		API:        httpapi.NewCommandExecutor(rt.Dashboard, rt.Telemetry),
		Readers:    gorouter.NewReaders(rt.Dashboard),
		Broadcast:  rt.Broadcast,
		BasePath:   cfg.BasePath,
	}); err != nil {
		return fmt.Errorf("freeboardctl: register routes: %w", err)
	}
	if cfg.Metrics {
		server.WrappedRouter().Get("/metrics", adaptor.HTTPHandler(rt.Telemetry.Handler()))
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"addr":      cfg.Addr,
		"base_path": cfg.BasePath,
		"metrics":   cfg.Metrics,
	}).Info("freeboard serving")
	return server.Serve(cfg.Addr)
}

// loadDashboardFile deserializes a document; per-entity failures are logged
// and the rest of the dashboard keeps running.
func loadDashboardFile(ctx context.Context, d *freeboard.Dashboard, file string, logger logrus.FieldLogger) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("freeboardctl: open dashboard: %w", err)
	}
	defer f.Close()
	doc, err := freeboard.DecodeDocument(f)
	if err != nil {
		return err
	}
	if err := d.Deserialize(ctx, doc); err != nil {
		logger.WithError(err).WithField("dashboard", file).Warn("dashboard loaded with errors")
	}
	return d.Wait(ctx)
}
