package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
	"github.com/goliatone/go-freeboard/components/freeboard/commands"
	"github.com/goliatone/go-freeboard/components/freeboard/queries"
)

// Creator executes a command that yields the new entity id.
type Creator[T any] interface {
	Create(ctx context.Context, msg T) (string, error)
}

// Handlers exposes HTTP endpoints backed by shared commands.
type Handlers struct {
	AddDatasource     gocommand.Commander[commands.AddDatasourceInput]
	UpdateDatasource  gocommand.Commander[commands.UpdateDatasourceInput]
	RemoveDatasource  gocommand.Commander[commands.RemoveDatasourceInput]
	RefreshDatasource gocommand.Commander[commands.RefreshDatasourceInput]
	AddPane           Creator[commands.AddPaneInput]
	UpdatePane        gocommand.Commander[commands.UpdatePaneInput]
	RemovePane        gocommand.Commander[commands.RemovePaneInput]
	AddWidget         Creator[commands.AddWidgetInput]
	UpdateWidget      gocommand.Commander[commands.UpdateWidgetInput]
	RemoveWidget      gocommand.Commander[commands.RemoveWidgetInput]
	MoveWidget        gocommand.Commander[commands.MoveWidgetInput]
	LoadDashboard     gocommand.Commander[commands.LoadDashboardInput]
	Dashboard         gocommand.Querier[queries.DashboardInput, freeboard.Document]
}

// StatusCode maps dashboard errors onto HTTP status codes.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, commands.ErrInvalidInput),
		errors.Is(err, freeboard.ErrInvalidSettings),
		errors.Is(err, freeboard.ErrMissingName),
		errors.Is(err, freeboard.ErrUnknownPluginType):
		return http.StatusBadRequest
	case errors.Is(err, freeboard.ErrDatasourceNotFound),
		errors.Is(err, freeboard.ErrPaneNotFound),
		errors.Is(err, freeboard.ErrWidgetNotFound):
		return http.StatusNotFound
	case errors.Is(err, freeboard.ErrDuplicateDatasource):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusCode(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handlers) HandleGetDashboard(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Dashboard.Query(r.Context(), queries.DashboardInput{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handlers) HandleLoadDashboard(w http.ResponseWriter, r *http.Request) {
	var doc freeboard.Document
	if !decode(w, r, &doc) {
		return
	}
	if err := h.LoadDashboard.Execute(r.Context(), commands.LoadDashboardInput{Document: doc}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleAddDatasource(w http.ResponseWriter, r *http.Request) {
	var payload commands.AddDatasourceInput
	if !decode(w, r, &payload) {
		return
	}
	if err := h.AddDatasource.Execute(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) HandleUpdateDatasource(w http.ResponseWriter, r *http.Request, name string) {
	var payload commands.UpdateDatasourceInput
	if !decode(w, r, &payload) {
		return
	}
	payload.Name = name
	if err := h.UpdateDatasource.Execute(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleRemoveDatasource(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.RemoveDatasource.Execute(r.Context(), commands.RemoveDatasourceInput{Name: name}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleRefreshDatasource(w http.ResponseWriter, r *http.Request, name string) {
	if err := h.RefreshDatasource.Execute(r.Context(), commands.RefreshDatasourceInput{Name: name}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) HandleAddPane(w http.ResponseWriter, r *http.Request) {
	var payload freeboard.PaneConfig
	if !decode(w, r, &payload) {
		return
	}
	id, err := h.AddPane.Create(r.Context(), commands.AddPaneInput{Pane: payload})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) HandleUpdatePane(w http.ResponseWriter, r *http.Request, paneID string) {
	var payload commands.UpdatePaneInput
	if !decode(w, r, &payload) {
		return
	}
	payload.PaneID = paneID
	if err := h.UpdatePane.Execute(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleRemovePane(w http.ResponseWriter, r *http.Request, paneID string) {
	if err := h.RemovePane.Execute(r.Context(), commands.RemovePaneInput{PaneID: paneID}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleAddWidget(w http.ResponseWriter, r *http.Request, paneID string) {
	var payload commands.AddWidgetInput
	if !decode(w, r, &payload) {
		return
	}
	payload.PaneID = paneID
	id, err := h.AddWidget.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) HandleUpdateWidget(w http.ResponseWriter, r *http.Request, widgetID string) {
	var payload commands.UpdateWidgetInput
	if !decode(w, r, &payload) {
		return
	}
	payload.WidgetID = widgetID
	if err := h.UpdateWidget.Execute(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) HandleRemoveWidget(w http.ResponseWriter, r *http.Request, widgetID string) {
	if err := h.RemoveWidget.Execute(r.Context(), commands.RemoveWidgetInput{WidgetID: widgetID}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleMoveWidget(w http.ResponseWriter, r *http.Request, widgetID string) {
	var payload commands.MoveWidgetInput
	if !decode(w, r, &payload) {
		return
	}
	payload.WidgetID = widgetID
	if err := h.MoveWidget.Execute(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
