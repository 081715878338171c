package gorouter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	router "github.com/goliatone/go-router"

	"github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/commands"
	"github.com/goliatone/go-freeboard/components/freeboard/httpapi"
	"github.com/goliatone/go-freeboard/components/freeboard/queries"
)

// Readers bundles the read-side queries served as JSON.
type Readers struct {
	Dashboard  *queries.DashboardQuery
	Types      *queries.TypesQuery
	Datasource *queries.DatasourceQuery
	Widget     *queries.WidgetQuery
}

// NewReaders builds every query against a dashboard.
func NewReaders(d *freeboard.Dashboard) Readers {
	return Readers{
		Dashboard:  queries.NewDashboardQuery(d),
		Types:      queries.NewTypesQuery(d.Registry()),
		Datasource: queries.NewDatasourceQuery(d),
		Widget:     queries.NewWidgetQuery(d),
	}
}

// Config wires go-router with the freeboard controller, API, and hooks.
type Config[T any] struct {
	Router     router.Router[T]
	Controller *freeboard.Controller
	API        httpapi.Executor
	Readers    Readers
	Broadcast  *freeboard.BroadcastHook
	BasePath   string
	Routes     RouteConfig
}

// RouteConfig customizes the relative paths used for freeboard endpoints.
type RouteConfig struct {
	HTML              string
	Dashboard         string
	Types             string
	Datasources       string
	DatasourceName    string
	DatasourceRefresh string
	Panes             string
	PaneID            string
	PaneWidgets       string
	WidgetID          string
	WidgetMove        string
	WidgetHTML        string
	WebSocket         string
}

// Register mounts freeboard routes (HTML, JSON, REST, WebSocket) on a go-router router.
func Register[T any](cfg Config[T]) error {
	if cfg.Router == nil {
		return errors.New("gorouter: router is required")
	}
	if cfg.Controller == nil {
		return errors.New("gorouter: controller is required")
	}
	routes := defaultRouteConfig(cfg.Routes)
	base := cfg.BasePath
	if base == "" {
		base = "/freeboard"
	}

	group := cfg.Router.Group(base)

	group.Get(routes.HTML, router.WrapHandler(func(ctx router.Context) error {
		var buf bytes.Buffer
		if err := cfg.Controller.RenderTemplate(ctx.Context(), &buf); err != nil {
			return respondError(ctx, http.StatusInternalServerError, err)
		}
		ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.Send(buf.Bytes())
	}))

	group.Get(routes.WidgetHTML, router.WrapHandler(func(ctx router.Context) error {
		var buf bytes.Buffer
		if err := cfg.Controller.RenderWidget(ctx.Context(), ctx.Param("id"), &buf); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		ctx.SetHeader("Content-Type", "text/html; charset=utf-8")
		return ctx.Send(buf.Bytes())
	}))

	registerReaders(group, cfg.Readers, routes)

	if cfg.API != nil {
		registerAPI(group, cfg.API, routes)
	}

	if cfg.Broadcast != nil {
		registerWebSocket(group, cfg.Broadcast, routes.WebSocket)
	}

	return nil
}

func registerReaders[T any](r router.Router[T], readers Readers, routes RouteConfig) {
	if readers.Dashboard != nil {
		r.Get(routes.Dashboard, router.WrapHandler(func(ctx router.Context) error {
			doc, err := readers.Dashboard.Query(ctx.Context(), queries.DashboardInput{})
			if err != nil {
				return respondError(ctx, statusFor(err), err)
			}
			return ctx.JSON(http.StatusOK, doc)
		}))
	}
	if readers.Types != nil {
		r.Get(routes.Types, router.WrapHandler(func(ctx router.Context) error {
			kind := freeboard.PluginKind(ctx.Query("kind"))
			result, err := readers.Types.Query(ctx.Context(), queries.TypesInput{Kind: kind})
			if err != nil {
				return respondError(ctx, statusFor(err), err)
			}
			return ctx.JSON(http.StatusOK, result)
		}))
	}
	if readers.Datasource != nil {
		r.Get(routes.DatasourceName, router.WrapHandler(func(ctx router.Context) error {
			input := queries.DatasourceInput{Name: ctx.Param("name"), Path: ctx.Query("path")}
			result, err := readers.Datasource.Query(ctx.Context(), input)
			if err != nil {
				return respondError(ctx, statusFor(err), err)
			}
			return ctx.JSON(http.StatusOK, result)
		}))
	}
	if readers.Widget != nil {
		r.Get(routes.WidgetID, router.WrapHandler(func(ctx router.Context) error {
			state, err := readers.Widget.Query(ctx.Context(), queries.WidgetInput{WidgetID: ctx.Param("id")})
			if err != nil {
				return respondError(ctx, statusFor(err), err)
			}
			return ctx.JSON(http.StatusOK, state)
		}))
	}
}

func registerAPI[T any](r router.Router[T], api httpapi.Executor, routes RouteConfig) {
	r.Post(routes.Dashboard, router.WrapHandler(func(ctx router.Context) error {
		var doc freeboard.Document
		if err := json.Unmarshal(ctx.Body(), &doc); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.LoadDashboard(ctx.Context(), commands.LoadDashboardInput{Document: doc}); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "loaded"})
	}))

	r.Post(routes.Datasources, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.AddDatasourceInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		if err := api.AddDatasource(ctx.Context(), payload); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusCreated, map[string]string{"status": "created", "name": payload.Name})
	}))

	r.Put(routes.DatasourceName, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.UpdateDatasourceInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		payload.Name = ctx.Param("name")
		if err := api.UpdateDatasource(ctx.Context(), payload); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "updated"})
	}))

	r.Delete(routes.DatasourceName, router.WrapHandler(func(ctx router.Context) error {
		name := ctx.Param("name")
		if name == "" {
			return respondError(ctx, http.StatusBadRequest, errors.New("datasource name is required"))
		}
		if err := api.RemoveDatasource(ctx.Context(), commands.RemoveDatasourceInput{Name: name}); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "removed"})
	}))

	r.Post(routes.DatasourceRefresh, router.WrapHandler(func(ctx router.Context) error {
		if err := api.RefreshDatasource(ctx.Context(), commands.RefreshDatasourceInput{Name: ctx.Param("name")}); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
	}))

	r.Post(routes.Panes, router.WrapHandler(func(ctx router.Context) error {
		var pane freeboard.PaneConfig
		if err := json.Unmarshal(ctx.Body(), &pane); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		id, err := api.AddPane(ctx.Context(), commands.AddPaneInput{Pane: pane})
		if err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusCreated, map[string]string{"status": "created", "id": id})
	}))

	r.Put(routes.PaneID, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.UpdatePaneInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		payload.PaneID = ctx.Param("id")
		if err := api.UpdatePane(ctx.Context(), payload); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "updated"})
	}))

	r.Delete(routes.PaneID, router.WrapHandler(func(ctx router.Context) error {
		if err := api.RemovePane(ctx.Context(), commands.RemovePaneInput{PaneID: ctx.Param("id")}); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "removed"})
	}))

	r.Post(routes.PaneWidgets, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.AddWidgetInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		payload.PaneID = ctx.Param("id")
		id, err := api.AddWidget(ctx.Context(), payload)
		if err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusCreated, map[string]string{"status": "created", "id": id})
	}))

	r.Put(routes.WidgetID, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.UpdateWidgetInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		payload.WidgetID = ctx.Param("id")
		if err := api.UpdateWidget(ctx.Context(), payload); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "updated"})
	}))

	r.Delete(routes.WidgetID, router.WrapHandler(func(ctx router.Context) error {
		id := ctx.Param("id")
		if id == "" {
			return respondError(ctx, http.StatusBadRequest, errors.New("widget id is required"))
		}
		if err := api.RemoveWidget(ctx.Context(), commands.RemoveWidgetInput{WidgetID: id}); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "removed"})
	}))

	r.Post(routes.WidgetMove, router.WrapHandler(func(ctx router.Context) error {
		var payload commands.MoveWidgetInput
		if err := json.Unmarshal(ctx.Body(), &payload); err != nil {
			return respondError(ctx, http.StatusBadRequest, err)
		}
		payload.WidgetID = ctx.Param("id")
		if err := api.MoveWidget(ctx.Context(), payload); err != nil {
			return respondError(ctx, statusFor(err), err)
		}
		return ctx.JSON(http.StatusOK, map[string]string{"status": "moved"})
	}))
}

func registerWebSocket[T any](r router.Router[T], hook *freeboard.BroadcastHook, path string) {
	cfg := router.DefaultWebSocketConfig()
	r.WebSocket(path, cfg, func(ws router.WebSocketContext) error {
		events, cancel := hook.Subscribe()
		defer cancel()
		for {
			select {
			case event, ok := <-events:
				if !ok {
					return nil
				}
				if err := ws.WriteJSON(event); err != nil {
					return err
				}
			case <-ws.Context().Done():
				return ws.Close()
			}
		}
	})
}

func statusFor(err error) int {
	return httpapi.StatusCode(err)
}

func respondError(ctx router.Context, status int, err error) error {
	return ctx.JSON(status, map[string]string{"error": err.Error()})
}

func defaultRouteConfig(routes RouteConfig) RouteConfig {
	if routes.HTML == "" {
		routes.HTML = "/"
	}
	if routes.Dashboard == "" {
		routes.Dashboard = "/dashboard"
	}
	if routes.Types == "" {
		routes.Types = "/types"
	}
	if routes.Datasources == "" {
		routes.Datasources = "/datasources"
	}
	if routes.DatasourceName == "" {
		routes.DatasourceName = "/datasources/:name"
	}
	if routes.DatasourceRefresh == "" {
		routes.DatasourceRefresh = "/datasources/:name/refresh"
	}
	if routes.Panes == "" {
		routes.Panes = "/panes"
	}
	if routes.PaneID == "" {
		routes.PaneID = "/panes/:id"
	}
	if routes.PaneWidgets == "" {
		routes.PaneWidgets = "/panes/:id/widgets"
	}
	if routes.WidgetID == "" {
		routes.WidgetID = "/widgets/:id"
	}
	if routes.WidgetMove == "" {
		routes.WidgetMove = "/widgets/:id/move"
	}
	if routes.WidgetHTML == "" {
		routes.WidgetHTML = "/widgets/:id/html"
	}
	if routes.WebSocket == "" {
		routes.WebSocket = "/ws"
	}
	return routes
}
