package queries

import (
	"context"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

type widgetService interface {
	Widget(widgetID string) (freeboard.WidgetState, bool)
	Panes() []freeboard.PaneState
}

// WidgetInput identifies a widget.
type WidgetInput struct {
	WidgetID string
}

// WidgetQuery fetches a widget state.
type WidgetQuery struct {
	service widgetService
}

// NewWidgetQuery builds the query.
func NewWidgetQuery(service widgetService) *WidgetQuery {
	return &WidgetQuery{service: service}
}

var _ gocommand.Querier[WidgetInput, freeboard.WidgetState] = (*WidgetQuery)(nil)

// Query returns the widget or ErrWidgetNotFound.
func (q *WidgetQuery) Query(_ context.Context, input WidgetInput) (freeboard.WidgetState, error) {
	state, ok := q.service.Widget(input.WidgetID)
	if !ok {
		return freeboard.WidgetState{}, freeboard.ErrWidgetNotFound
	}
	return state, nil
}

// PanesInput carries no data.
type PanesInput struct{}

// PanesQuery lists panes with their widgets and layout.
type PanesQuery struct {
	service widgetService
}

// NewPanesQuery builds the query.
func NewPanesQuery(service widgetService) *PanesQuery {
	return &PanesQuery{service: service}
}

var _ gocommand.Querier[PanesInput, []freeboard.PaneState] = (*PanesQuery)(nil)

// Query lists panes.
func (q *PanesQuery) Query(_ context.Context, _ PanesInput) ([]freeboard.PaneState, error) {
	return q.service.Panes(), nil
}
