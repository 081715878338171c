package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

type paneService interface {
	AddPane(ctx context.Context, cfg freeboard.PaneConfig) (string, error)
	UpdatePane(ctx context.Context, paneID string, title string, width int) error
	RemovePane(ctx context.Context, paneID string) error
}

// AddPaneInput creates a pane, optionally with widgets.
type AddPaneInput struct {
	Pane freeboard.PaneConfig `json:"pane"`
}

// AddPaneCommand creates panes.
type AddPaneCommand struct {
	service   paneService
	telemetry Telemetry
}

// NewAddPaneCommand builds the command.
func NewAddPaneCommand(service paneService, telemetry Telemetry) *AddPaneCommand {
	return &AddPaneCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[AddPaneInput] = (*AddPaneCommand)(nil)

// Execute creates the pane.
func (c *AddPaneCommand) Execute(ctx context.Context, msg AddPaneInput) error {
	_, err := c.Create(ctx, msg)
	return err
}

// Create creates the pane and returns its id.
func (c *AddPaneCommand) Create(ctx context.Context, msg AddPaneInput) (string, error) {
	if c.service == nil {
		return "", errors.New("add pane command requires service")
	}
	id, err := c.service.AddPane(ctx, msg.Pane)
	if err != nil {
		return "", err
	}
	c.telemetry.Record(ctx, EventPaneAdd, map[string]any{"pane_id": id, "widgets": len(msg.Pane.Widgets)})
	return id, nil
}

// UpdatePaneInput changes pane metadata.
type UpdatePaneInput struct {
	PaneID string `json:"pane_id" validate:"required"`
	Title  string `json:"title"`
	Width  int    `json:"width" validate:"gte=0"`
}

// UpdatePaneCommand edits panes.
type UpdatePaneCommand struct {
	service   paneService
	telemetry Telemetry
}

// NewUpdatePaneCommand builds the command.
func NewUpdatePaneCommand(service paneService, telemetry Telemetry) *UpdatePaneCommand {
	return &UpdatePaneCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[UpdatePaneInput] = (*UpdatePaneCommand)(nil)

// Execute applies the edit.
func (c *UpdatePaneCommand) Execute(ctx context.Context, msg UpdatePaneInput) error {
	if c.service == nil {
		return errors.New("update pane command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.UpdatePane(ctx, msg.PaneID, msg.Title, msg.Width); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventPaneUpdate, map[string]any{"pane_id": msg.PaneID})
	return nil
}

// RemovePaneInput identifies the pane to remove.
type RemovePaneInput struct {
	PaneID string `json:"pane_id" validate:"required"`
}

// RemovePaneCommand disposes panes and their widgets.
type RemovePaneCommand struct {
	service   paneService
	telemetry Telemetry
}

// NewRemovePaneCommand builds the command.
func NewRemovePaneCommand(service paneService, telemetry Telemetry) *RemovePaneCommand {
	return &RemovePaneCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RemovePaneInput] = (*RemovePaneCommand)(nil)

// Execute removes the pane.
func (c *RemovePaneCommand) Execute(ctx context.Context, msg RemovePaneInput) error {
	if c.service == nil {
		return errors.New("remove pane command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.RemovePane(ctx, msg.PaneID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventPaneRemove, map[string]any{"pane_id": msg.PaneID})
	return nil
}
