package queries

import (
	"context"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// DashboardInput carries no data.
type DashboardInput struct{}

type documentService interface {
	Serialize() freeboard.Document
}

// DashboardQuery returns the serialized dashboard document.
type DashboardQuery struct {
	service documentService
}

// NewDashboardQuery builds the query.
func NewDashboardQuery(service documentService) *DashboardQuery {
	return &DashboardQuery{service: service}
}

var _ gocommand.Querier[DashboardInput, freeboard.Document] = (*DashboardQuery)(nil)

// Query serializes the dashboard.
func (q *DashboardQuery) Query(_ context.Context, _ DashboardInput) (freeboard.Document, error) {
	return q.service.Serialize(), nil
}

// TypesInput selects a plugin kind. An empty kind returns both.
type TypesInput struct {
	Kind freeboard.PluginKind
}

// TypesResult lists registered plugin types.
type TypesResult struct {
	Datasources []freeboard.PluginType `json:"datasources,omitempty" yaml:"datasources,omitempty"`
	Widgets     []freeboard.PluginType `json:"widgets,omitempty" yaml:"widgets,omitempty"`
}

type typesService interface {
	DatasourceTypes() []freeboard.PluginType
	WidgetTypes() []freeboard.PluginType
}

// TypesQuery lists plugin types from the registry.
type TypesQuery struct {
	registry typesService
}

// NewTypesQuery builds the query.
func NewTypesQuery(registry typesService) *TypesQuery {
	return &TypesQuery{registry: registry}
}

var _ gocommand.Querier[TypesInput, TypesResult] = (*TypesQuery)(nil)

// Query lists the requested kinds.
func (q *TypesQuery) Query(_ context.Context, input TypesInput) (TypesResult, error) {
	var result TypesResult
	if input.Kind == "" || input.Kind == freeboard.KindDatasource {
		result.Datasources = q.registry.DatasourceTypes()
	}
	if input.Kind == "" || input.Kind == freeboard.KindWidget {
		result.Widgets = q.registry.WidgetTypes()
	}
	return result, nil
}
