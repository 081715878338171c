package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

type documentService interface {
	Deserialize(ctx context.Context, doc freeboard.Document) error
	Clear(ctx context.Context)
	AddPluginSource(ctx context.Context, url string) error
}

// LoadDashboardInput replaces the dashboard with a document.
type LoadDashboardInput struct {
	Document freeboard.Document `json:"document"`
}

// LoadDashboardCommand deserializes documents.
type LoadDashboardCommand struct {
	service   documentService
	telemetry Telemetry
}

// NewLoadDashboardCommand builds the command.
func NewLoadDashboardCommand(service documentService, telemetry Telemetry) *LoadDashboardCommand {
	return &LoadDashboardCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[LoadDashboardInput] = (*LoadDashboardCommand)(nil)

// Execute loads the document.
func (c *LoadDashboardCommand) Execute(ctx context.Context, msg LoadDashboardInput) error {
	if c.service == nil {
		return errors.New("load dashboard command requires service")
	}
	err := c.service.Deserialize(ctx, msg.Document)
	c.telemetry.Record(ctx, EventDashboardLoad, map[string]any{
		"datasources": len(msg.Document.Datasources),
		"panes":       len(msg.Document.Panes),
		"failed":      err != nil,
	})
	return err
}

// ClearDashboardInput carries no data.
type ClearDashboardInput struct{}

// ClearDashboardCommand disposes everything on the dashboard.
type ClearDashboardCommand struct {
	service   documentService
	telemetry Telemetry
}

// NewClearDashboardCommand builds the command.
func NewClearDashboardCommand(service documentService, telemetry Telemetry) *ClearDashboardCommand {
	return &ClearDashboardCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[ClearDashboardInput] = (*ClearDashboardCommand)(nil)

// Execute clears the dashboard.
func (c *ClearDashboardCommand) Execute(ctx context.Context, _ ClearDashboardInput) error {
	if c.service == nil {
		return errors.New("clear dashboard command requires service")
	}
	c.service.Clear(ctx)
	c.telemetry.Record(ctx, EventDashboardClear, nil)
	return nil
}

// AddPluginSourceInput loads a plugin source URL.
type AddPluginSourceInput struct {
	URL string `json:"url" validate:"required"`
}

// AddPluginSourceCommand loads plugin sources.
type AddPluginSourceCommand struct {
	service   documentService
	telemetry Telemetry
}

// NewAddPluginSourceCommand builds the command.
func NewAddPluginSourceCommand(service documentService, telemetry Telemetry) *AddPluginSourceCommand {
	return &AddPluginSourceCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[AddPluginSourceInput] = (*AddPluginSourceCommand)(nil)

// Execute loads the source.
func (c *AddPluginSourceCommand) Execute(ctx context.Context, msg AddPluginSourceInput) error {
	if c.service == nil {
		return errors.New("add plugin source command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.AddPluginSource(ctx, msg.URL); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventPluginSource, map[string]any{"url": msg.URL})
	return nil
}
