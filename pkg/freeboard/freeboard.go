package freeboard

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	core "github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/plugins"
)

// Dashboard exposes the underlying components/freeboard.Dashboard type.
type Dashboard = core.Dashboard

// Options re-export for convenience.
type Options = core.Options

// Document re-export for convenience.
type Document = core.Document

// NewDashboard proxies to the internal constructor.
func NewDashboard(opts Options) *Dashboard {
	return core.NewDashboard(opts)
}

// RuntimeOptions configures a ready-to-serve dashboard.
type RuntimeOptions struct {
	Context          context.Context
	Logger           logrus.FieldLogger
	Manifests        []string
	MetricsNamespace string
	Columns          int
	ChartTTL         time.Duration
	Plugins          plugins.Options
}

// Runtime bundles a dashboard with the builtin plugins, broadcast stream,
// and Prometheus telemetry.
type Runtime struct {
	Registry  *core.Registry
	Dashboard *Dashboard
	Broadcast *core.BroadcastHook
	Telemetry *core.PrometheusTelemetry
}

// NewRuntime registers the builtin plugins, loads manifests, and builds the dashboard.
func NewRuntime(opts RuntimeOptions) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger().WithField("component", "freeboard")
	}
	namespace := opts.MetricsNamespace
	if namespace == "" {
		namespace = "freeboard"
	}
	pluginOpts := opts.Plugins
	if pluginOpts.Logger == nil {
		pluginOpts.Logger = logger
	}
	if pluginOpts.Charts == nil {
		ttl := opts.ChartTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		pluginOpts.Charts = plugins.NewChartCache(ttl)
	}

	reg := core.NewRegistry()
	if err := plugins.Register(reg, pluginOpts); err != nil {
		return nil, err
	}
	for _, path := range opts.Manifests {
		if _, err := reg.LoadManifestFile(path); err != nil {
			return nil, fmt.Errorf("freeboard: load manifest %s: %w", path, err)
		}
	}

	telemetry := core.NewPrometheusTelemetry(namespace)
	hook := core.NewBroadcastHook()
	d := core.NewDashboard(core.Options{
		Registry:    reg,
		RefreshHook: hook,
		Telemetry:   telemetry,
		Logger:      logger,
		Context:     opts.Context,
		Columns:     opts.Columns,
	})
	return &Runtime{
		Registry:  reg,
		Dashboard: d,
		Broadcast: hook,
		Telemetry: telemetry,
	}, nil
}
