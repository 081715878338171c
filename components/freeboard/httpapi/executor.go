package httpapi

import (
	"context"
	"errors"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/commands"
)

// Executor is the write side shared by transports that do not speak net/http
// directly.
type Executor interface {
	AddDatasource(ctx context.Context, input commands.AddDatasourceInput) error
	UpdateDatasource(ctx context.Context, input commands.UpdateDatasourceInput) error
	RemoveDatasource(ctx context.Context, input commands.RemoveDatasourceInput) error
	RefreshDatasource(ctx context.Context, input commands.RefreshDatasourceInput) error
	AddPane(ctx context.Context, input commands.AddPaneInput) (string, error)
	UpdatePane(ctx context.Context, input commands.UpdatePaneInput) error
	RemovePane(ctx context.Context, input commands.RemovePaneInput) error
	AddWidget(ctx context.Context, input commands.AddWidgetInput) (string, error)
	UpdateWidget(ctx context.Context, input commands.UpdateWidgetInput) error
	RemoveWidget(ctx context.Context, input commands.RemoveWidgetInput) error
	MoveWidget(ctx context.Context, input commands.MoveWidgetInput) error
	LoadDashboard(ctx context.Context, input commands.LoadDashboardInput) error
}

var errCommandNotConfigured = errors.New("httpapi: command not configured")

// CommandExecutor adapts commands to the Executor interface.
type CommandExecutor struct {
	AddDatasourceCommander     gocommand.Commander[commands.AddDatasourceInput]
	UpdateDatasourceCommander  gocommand.Commander[commands.UpdateDatasourceInput]
	RemoveDatasourceCommander  gocommand.Commander[commands.RemoveDatasourceInput]
	RefreshDatasourceCommander gocommand.Commander[commands.RefreshDatasourceInput]
	AddPaneCreator             Creator[commands.AddPaneInput]
	UpdatePaneCommander        gocommand.Commander[commands.UpdatePaneInput]
	RemovePaneCommander        gocommand.Commander[commands.RemovePaneInput]
	AddWidgetCreator           Creator[commands.AddWidgetInput]
	UpdateWidgetCommander      gocommand.Commander[commands.UpdateWidgetInput]
	RemoveWidgetCommander      gocommand.Commander[commands.RemoveWidgetInput]
	MoveWidgetCommander        gocommand.Commander[commands.MoveWidgetInput]
	LoadDashboardCommander     gocommand.Commander[commands.LoadDashboardInput]
}

// NewCommandExecutor wires every command against a dashboard service.
func NewCommandExecutor(d *freeboard.Dashboard, telemetry commands.Telemetry) *CommandExecutor {
	return &CommandExecutor{
		AddDatasourceCommander:     commands.NewAddDatasourceCommand(d, telemetry),
		UpdateDatasourceCommander:  commands.NewUpdateDatasourceCommand(d, telemetry),
		RemoveDatasourceCommander:  commands.NewRemoveDatasourceCommand(d, telemetry),
		RefreshDatasourceCommander: commands.NewRefreshDatasourceCommand(d, telemetry),
		AddPaneCreator:             commands.NewAddPaneCommand(d, telemetry),
		UpdatePaneCommander:        commands.NewUpdatePaneCommand(d, telemetry),
		RemovePaneCommander:        commands.NewRemovePaneCommand(d, telemetry),
		AddWidgetCreator:           commands.NewAddWidgetCommand(d, telemetry),
		UpdateWidgetCommander:      commands.NewUpdateWidgetCommand(d, telemetry),
		RemoveWidgetCommander:      commands.NewRemoveWidgetCommand(d, telemetry),
		MoveWidgetCommander:        commands.NewMoveWidgetCommand(d, telemetry),
		LoadDashboardCommander:     commands.NewLoadDashboardCommand(d, telemetry),
	}
}

var _ Executor = (*CommandExecutor)(nil)

func (e *CommandExecutor) AddDatasource(ctx context.Context, input commands.AddDatasourceInput) error {
	return execute(ctx, e.AddDatasourceCommander, input)
}

func (e *CommandExecutor) UpdateDatasource(ctx context.Context, input commands.UpdateDatasourceInput) error {
	return execute(ctx, e.UpdateDatasourceCommander, input)
}

func (e *CommandExecutor) RemoveDatasource(ctx context.Context, input commands.RemoveDatasourceInput) error {
	return execute(ctx, e.RemoveDatasourceCommander, input)
}

func (e *CommandExecutor) RefreshDatasource(ctx context.Context, input commands.RefreshDatasourceInput) error {
	return execute(ctx, e.RefreshDatasourceCommander, input)
}

func (e *CommandExecutor) AddPane(ctx context.Context, input commands.AddPaneInput) (string, error) {
	if e.AddPaneCreator == nil {
		return "", errCommandNotConfigured
	}
	return e.AddPaneCreator.Create(ctx, input)
}

func (e *CommandExecutor) UpdatePane(ctx context.Context, input commands.UpdatePaneInput) error {
	return execute(ctx, e.UpdatePaneCommander, input)
}

func (e *CommandExecutor) RemovePane(ctx context.Context, input commands.RemovePaneInput) error {
	return execute(ctx, e.RemovePaneCommander, input)
}

func (e *CommandExecutor) AddWidget(ctx context.Context, input commands.AddWidgetInput) (string, error) {
	if e.AddWidgetCreator == nil {
		return "", errCommandNotConfigured
	}
	return e.AddWidgetCreator.Create(ctx, input)
}

func (e *CommandExecutor) UpdateWidget(ctx context.Context, input commands.UpdateWidgetInput) error {
	return execute(ctx, e.UpdateWidgetCommander, input)
}

func (e *CommandExecutor) RemoveWidget(ctx context.Context, input commands.RemoveWidgetInput) error {
	return execute(ctx, e.RemoveWidgetCommander, input)
}

func (e *CommandExecutor) MoveWidget(ctx context.Context, input commands.MoveWidgetInput) error {
	return execute(ctx, e.MoveWidgetCommander, input)
}

func (e *CommandExecutor) LoadDashboard(ctx context.Context, input commands.LoadDashboardInput) error {
	return execute(ctx, e.LoadDashboardCommander, input)
}

func execute[T any](ctx context.Context, cmd gocommand.Commander[T], msg T) error {
	if cmd == nil {
		return errCommandNotConfigured
	}
	return cmd.Execute(ctx, msg)
}
