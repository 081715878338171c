package gorouter

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	router "github.com/goliatone/go-router"

	"github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/httpapi"
)

type stubRenderer struct {
	calls int
}

func (s *stubRenderer) Render(name string, data any, out ...io.Writer) (string, error) {
	s.calls++
	if len(out) > 0 && out[0] != nil {
		out[0].Write([]byte("ok"))
	}
	return "ok", nil
}

func TestRegisterValidatesConfig(t *testing.T) {
	if err := Register(Config[struct{}]{}); err == nil {
		t.Fatalf("expected error when router/controller missing")
	}
	server := router.NewFiberAdapter()
	if err := Register(Config[*fiber.App]{Router: server.Router()}); err == nil {
		t.Fatalf("expected error when controller missing")
	}
}

func TestDefaultRouteConfig(t *testing.T) {
	routes := defaultRouteConfig(RouteConfig{WebSocket: "/stream"})
	if routes.WebSocket != "/stream" {
		t.Fatalf("expected override to be kept, got %q", routes.WebSocket)
	}
	if routes.DatasourceName != "/datasources/:name" || routes.PaneWidgets != "/panes/:id/widgets" {
		t.Fatalf("unexpected defaults: %+v", routes)
	}
	if routes.HTML != "/" {
		t.Fatalf("expected html at group root, got %q", routes.HTML)
	}
}

func TestRegisterOnFiberAdapter(t *testing.T) {
	d := freeboard.NewDashboard(freeboard.Options{})
	defer d.Close()
	controller := freeboard.NewController(freeboard.ControllerOptions{
		Dashboard: d,
		Renderer:  &stubRenderer{},
	})
	server := router.NewFiberAdapter()
	err := Register(Config[*fiber.App]{
		Router:     server.Router(),
		Controller: controller,
		API:        httpapi.NewCommandExecutor(d, nil),
		Readers:    NewReaders(d),
		Broadcast:  freeboard.NewBroadcastHook(),
	})
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
}

func TestStatusForMapsDashboardErrors(t *testing.T) {
	if got := statusFor(freeboard.ErrWidgetNotFound); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got)
	}
	if got := statusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}
