package commands

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

type datasourceService interface {
	AddDatasource(ctx context.Context, cfg freeboard.DatasourceConfig) error
	UpdateDatasource(ctx context.Context, name string, cfg freeboard.DatasourceConfig) error
	RemoveDatasource(ctx context.Context, name string) error
	UpdateDatasourceNow(ctx context.Context, name string) error
}

// AddDatasourceInput creates a datasource.
type AddDatasourceInput struct {
	Name     string             `json:"name" validate:"required"`
	Type     string             `json:"type" validate:"required"`
	Settings freeboard.Settings `json:"settings"`
}

// AddDatasourceCommand creates datasources through the dashboard.
type AddDatasourceCommand struct {
	service   datasourceService
	telemetry Telemetry
}

// NewAddDatasourceCommand builds the command.
func NewAddDatasourceCommand(service datasourceService, telemetry Telemetry) *AddDatasourceCommand {
	return &AddDatasourceCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[AddDatasourceInput] = (*AddDatasourceCommand)(nil)

// Execute validates the input and adds the datasource.
func (c *AddDatasourceCommand) Execute(ctx context.Context, msg AddDatasourceInput) error {
	if c.service == nil {
		return errors.New("add datasource command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.AddDatasource(ctx, freeboard.DatasourceConfig{Name: msg.Name, Type: msg.Type, Settings: msg.Settings}); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventDatasourceAdd, map[string]any{"name": msg.Name, "type": msg.Type})
	return nil
}

// UpdateDatasourceInput edits the datasource currently called Name. NewName
// renames it; an empty Type keeps the current type.
type UpdateDatasourceInput struct {
	Name     string             `json:"name" validate:"required"`
	NewName  string             `json:"new_name,omitempty"`
	Type     string             `json:"type,omitempty"`
	Settings freeboard.Settings `json:"settings"`
}

// UpdateDatasourceCommand applies datasource edits.
type UpdateDatasourceCommand struct {
	service   datasourceService
	telemetry Telemetry
}

// NewUpdateDatasourceCommand builds the command.
func NewUpdateDatasourceCommand(service datasourceService, telemetry Telemetry) *UpdateDatasourceCommand {
	return &UpdateDatasourceCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[UpdateDatasourceInput] = (*UpdateDatasourceCommand)(nil)

// Execute applies the edit.
func (c *UpdateDatasourceCommand) Execute(ctx context.Context, msg UpdateDatasourceInput) error {
	if c.service == nil {
		return errors.New("update datasource command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	cfg := freeboard.DatasourceConfig{Name: msg.NewName, Type: msg.Type, Settings: msg.Settings}
	if err := c.service.UpdateDatasource(ctx, msg.Name, cfg); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventDatasourceUpdate, map[string]any{"name": msg.Name, "new_name": msg.NewName})
	return nil
}

// RemoveDatasourceInput identifies the datasource to remove.
type RemoveDatasourceInput struct {
	Name string `json:"name" validate:"required"`
}

// RemoveDatasourceCommand disposes datasources.
type RemoveDatasourceCommand struct {
	service   datasourceService
	telemetry Telemetry
}

// NewRemoveDatasourceCommand builds the command.
func NewRemoveDatasourceCommand(service datasourceService, telemetry Telemetry) *RemoveDatasourceCommand {
	return &RemoveDatasourceCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RemoveDatasourceInput] = (*RemoveDatasourceCommand)(nil)

// Execute removes the datasource.
func (c *RemoveDatasourceCommand) Execute(ctx context.Context, msg RemoveDatasourceInput) error {
	if c.service == nil {
		return errors.New("remove datasource command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.RemoveDatasource(ctx, msg.Name); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventDatasourceRemove, map[string]any{"name": msg.Name})
	return nil
}

// RefreshDatasourceInput asks a datasource to update now.
type RefreshDatasourceInput struct {
	Name string `json:"name" validate:"required"`
}

// RefreshDatasourceCommand forwards to the instance refresh hook.
type RefreshDatasourceCommand struct {
	service   datasourceService
	telemetry Telemetry
}

// NewRefreshDatasourceCommand builds the command.
func NewRefreshDatasourceCommand(service datasourceService, telemetry Telemetry) *RefreshDatasourceCommand {
	return &RefreshDatasourceCommand{service: service, telemetry: normalizeTelemetry(telemetry)}
}

var _ gocommand.Commander[RefreshDatasourceInput] = (*RefreshDatasourceCommand)(nil)

// Execute triggers the refresh.
func (c *RefreshDatasourceCommand) Execute(ctx context.Context, msg RefreshDatasourceInput) error {
	if c.service == nil {
		return errors.New("refresh datasource command requires service")
	}
	if err := validateInput(msg); err != nil {
		return err
	}
	if err := c.service.UpdateDatasourceNow(ctx, msg.Name); err != nil {
		return err
	}
	c.telemetry.Record(ctx, EventDatasourceRefresh, map[string]any{"name": msg.Name})
	return nil
}
