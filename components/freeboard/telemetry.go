package freeboard

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry event names recorded by the dashboard.
const (
	EventDatasourceUpdate = "freeboard.datasource.update"
	EventWidgetValue      = "freeboard.widget.value"
	EventExpressionError  = "freeboard.expression.error"
	EventPluginError      = "freeboard.plugin.error"
	EventPluginMissing    = "freeboard.plugin.missing"
	EventResourceError    = "freeboard.resource.error"
)

// Telemetry records dashboard events for observability.
type Telemetry interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

type noopTelemetry struct{}

func (noopTelemetry) Record(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return noopTelemetry{}
	}
	return t
}

// PrometheusTelemetry counts events by name and by plugin type on a private
// registry.
type PrometheusTelemetry struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

// NewPrometheusTelemetry builds the collectors. namespace prefixes metric names.
func NewPrometheusTelemetry(namespace string) *PrometheusTelemetry {
	if namespace == "" {
		namespace = "freeboard"
	}
	reg := prometheus.NewRegistry()
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Dashboard events by name and plugin type.",
	}, []string{"event", "type"})
	reg.MustRegister(events)
	return &PrometheusTelemetry{registry: reg, events: events}
}

// Record increments the counter for event.
func (p *PrometheusTelemetry) Record(_ context.Context, event string, payload map[string]any) {
	typeName, _ := payload["type"].(string)
	p.events.WithLabelValues(event, typeName).Inc()
}

// Registry exposes the underlying prometheus registry.
func (p *PrometheusTelemetry) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the collected metrics.
func (p *PrometheusTelemetry) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
