package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

type widgetService interface {
	AddWidget(ctx context.Context, paneID string, cfg freeboard.WidgetConfig) (string, error)
	UpdateWidget(ctx context.Context, widgetID string, cfg freeboard.WidgetConfig) error
	RemoveWidget(ctx context.Context, widgetID string) error
	MoveWidget(ctx context.Context, widgetID string, delta int) (bool, error)
}

// AddWidgetInput appends a widget to a pane.
type AddWidgetInput struct {
	PaneID   string             `json:"pane_id" validate:"required"`
	Title    string             `json:"title,omitempty"`
	Type     string             `json:"type" validate:"required"`
	Settings freeboard.Settings `json:"settings"`
}

// AddWidgetCommand creates widgets.
type AddWidgetCommand struct {
	service   widgetService
	telemetry Telemetry
}

// NewAddWidgetCommand builds the command.
func NewAddWidgetCommand(service widgetService, telemetry Telemetry) *AddWidgetCommand {
	return &AddWidgetCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[AddWidgetInput] = (*AddWidgetCommand)(nil)

// Execute creates the widget.
func (c *AddWidgetCommand) Execute(ctx context.Context, msg AddWidgetInput) error {
	_, err := c.Create(ctx, msg)
	return err
}

// Create creates the widget and returns its id.
func (c *AddWidgetCommand) Create(ctx context.Context, msg AddWidgetInput) (string, error) {
	if c.service == nil {
		return "", errors.New("add widget command requires service")
	}
	if err := validateInput(msg); err != nil {
		return "", err
	}
	id, err := c.service.AddWidget(ctx, msg.PaneID, freeboard.WidgetConfig{Title: msg.Title, Type: msg.Type, Settings: msg.Settings})
	if err != nil {
		return "", err
	}
	c.telemetry.Record(ctx, EventWidgetAdd, map[string]any{"widget_id": id, "pane_id": msg.PaneID, "type": msg.Type})
	return id, nil
}

// UpdateWidgetInput replaces a widget's settings. An empty Type keeps the
// current type.
type UpdateWidgetInput struct {
	WidgetID string             `json:"widget_id" validate:"required"`
	Title    string             `json:"title,omitempty"`
	Type     string             `json:"type,omitempty"`
	Settings freeboard.Settings `json:"settings"`
}

// UpdateWidgetCommand edits widgets.
type UpdateWidgetCommand struct {
	service   widgetService
	telemetry Telemetry
}

// NewUpdateWidgetCommand builds the command.
func NewUpdateWidgetCommand(service widgetService, telemetry Telemetry) *UpdateWidgetCommand {
	return &UpdateWidgetCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[UpdateWidgetInput] = (*UpdateWidgetCommand)(nil)

// Execute applies the edit.
func (c *UpdateWidgetCommand) Execute(ctx context.Context, msg UpdateWidgetInput) error {
	if c.service == nil {
		return errors.New("update widget command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.UpdateWidget(ctx, msg.WidgetID, freeboard.WidgetConfig{Title: msg.Title, Type: msg.Type, Settings: msg.Settings}); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventWidgetUpdate, map[string]any{"widget_id": msg.WidgetID})
	return nil
}

// RemoveWidgetInput identifies the widget to remove.
type RemoveWidgetInput struct {
	WidgetID string `json:"widget_id" validate:"required"`
}

// RemoveWidgetCommand disposes widgets.
type RemoveWidgetCommand struct {
	service   widgetService
	telemetry Telemetry
}

// NewRemoveWidgetCommand builds the command.
func NewRemoveWidgetCommand(service widgetService, telemetry Telemetry) *RemoveWidgetCommand {
	return &RemoveWidgetCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RemoveWidgetInput] = (*RemoveWidgetCommand)(nil)

// Execute removes the widget.
func (c *RemoveWidgetCommand) Execute(ctx context.Context, msg RemoveWidgetInput) error {
	if c.service == nil {
		return errors.New("remove widget command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.RemoveWidget(ctx, msg.WidgetID); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventWidgetRemove, map[string]any{"widget_id": msg.WidgetID})
	return nil
}

// MoveWidgetInput moves a widget one slot within its pane.
type MoveWidgetInput struct {
	WidgetID  string `json:"widget_id" validate:"required"`
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

// MoveWidgetCommand reorders widgets.
type MoveWidgetCommand struct {
	service   widgetService
	telemetry Telemetry
}

// NewMoveWidgetCommand builds the command.
func NewMoveWidgetCommand(service widgetService, telemetry Telemetry) *MoveWidgetCommand {
	return &MoveWidgetCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[MoveWidgetInput] = (*MoveWidgetCommand)(nil)

// Execute moves the widget. Moving past either end is a no-op.
func (c *MoveWidgetCommand) Execute(ctx context.Context, msg MoveWidgetInput) error {
	if c.service == nil {
		return errors.New("move widget command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	delta := 1
	if msg.Direction == "up" {
		delta = -1
	}
	moved, err := c.service.MoveWidget(ctx, msg.WidgetID, delta)
	if err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventWidgetMove, map[string]any{"widget_id": msg.WidgetID, "direction": msg.Direction, "moved": moved})
	return nil
}
