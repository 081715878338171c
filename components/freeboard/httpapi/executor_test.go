package httpapi

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-freeboard/components/freeboard/commands"
)

func TestCommandExecutorDelegates(t *testing.T) {
	add := &stubCommander[commands.AddDatasourceInput]{}
	pane := &stubCreator[commands.AddPaneInput]{id: "pane-1"}
	exec := &CommandExecutor{AddDatasourceCommander: add, AddPaneCreator: pane}

	if err := exec.AddDatasource(context.Background(), commands.AddDatasourceInput{Name: "temp", Type: "clock"}); err != nil {
		t.Fatalf("AddDatasource returned error: %v", err)
	}
	if add.calls != 1 {
		t.Fatalf("expected command execution")
	}
	id, err := exec.AddPane(context.Background(), commands.AddPaneInput{})
	if err != nil || id != "pane-1" {
		t.Fatalf("expected pane id, got %q (%v)", id, err)
	}
}

func TestCommandExecutorMissingCommand(t *testing.T) {
	exec := &CommandExecutor{}
	if err := exec.RemoveWidget(context.Background(), commands.RemoveWidgetInput{WidgetID: "w"}); !errors.Is(err, errCommandNotConfigured) {
		t.Fatalf("expected errCommandNotConfigured, got %v", err)
	}
	if _, err := exec.AddWidget(context.Background(), commands.AddWidgetInput{}); !errors.Is(err, errCommandNotConfigured) {
		t.Fatalf("expected errCommandNotConfigured, got %v", err)
	}
}
