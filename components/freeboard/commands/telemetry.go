package commands

import (
	"context"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// Telemetry is the event sink shared with the dashboard; a
// *freeboard.PrometheusTelemetry satisfies it.
type Telemetry = freeboard.Telemetry

// Events recorded after a command succeeds.
const (
	EventDashboardLoad     = "freeboard.dashboard.load"
	EventDashboardClear    = "freeboard.dashboard.clear"
	EventPluginSource      = "freeboard.plugin.source"
	EventDatasourceAdd     = "freeboard.datasource.add"
	EventDatasourceUpdate  = "freeboard.datasource.update_settings"
	EventDatasourceRemove  = "freeboard.datasource.remove"
	EventDatasourceRefresh = "freeboard.datasource.refresh"
	EventPaneAdd           = "freeboard.pane.add"
	EventPaneUpdate        = "freeboard.pane.update"
	EventPaneRemove        = "freeboard.pane.remove"
	EventWidgetAdd         = "freeboard.widget.add"
	EventWidgetUpdate      = "freeboard.widget.update"
	EventWidgetRemove      = "freeboard.widget.remove"
	EventWidgetMove        = "freeboard.widget.move"
)

type discardTelemetry struct{}

func (discardTelemetry) Record(context.Context, string, map[string]any) {}

func normalizeTelemetry(t Telemetry) Telemetry {
	if t == nil {
		return discardTelemetry{}
	}
	return t
}
