package queries

import (
	"context"

	gocommand "github.com/goliatone/go-command"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

type datasourceService interface {
	Datasources() []freeboard.DatasourceState
	Datasource(name string) (freeboard.DatasourceState, bool)
	DataRepresentation(name, path string) (any, error)
}

// DatasourcesInput carries no data.
type DatasourcesInput struct{}

// DatasourcesQuery lists datasource states.
type DatasourcesQuery struct {
	service datasourceService
}

// NewDatasourcesQuery builds the query.
func NewDatasourcesQuery(service datasourceService) *DatasourcesQuery {
	return &DatasourcesQuery{service: service}
}

var _ gocommand.Querier[DatasourcesInput, []freeboard.DatasourceState] = (*DatasourcesQuery)(nil)

// Query lists datasources in insertion order.
func (q *DatasourcesQuery) Query(_ context.Context, _ DatasourcesInput) ([]freeboard.DatasourceState, error) {
	return q.service.Datasources(), nil
}

// DatasourceInput identifies a datasource and an optional path into its
// latest data (for example `.main.temp` or `["list"][0]`).
type DatasourceInput struct {
	Name string
	Path string
}

// DatasourceResult is a datasource state plus the value at the path.
type DatasourceResult struct {
	State freeboard.DatasourceState `json:"state"`
	Value any                       `json:"value,omitempty"`
}

// DatasourceQuery reads a single datasource.
type DatasourceQuery struct {
	service datasourceService
}

// NewDatasourceQuery builds the query.
func NewDatasourceQuery(service datasourceService) *DatasourceQuery {
	return &DatasourceQuery{service: service}
}

var _ gocommand.Querier[DatasourceInput, DatasourceResult] = (*DatasourceQuery)(nil)

// Query returns the datasource or ErrDatasourceNotFound.
func (q *DatasourceQuery) Query(_ context.Context, input DatasourceInput) (DatasourceResult, error) {
	state, ok := q.service.Datasource(input.Name)
	if !ok {
		return DatasourceResult{}, freeboard.ErrDatasourceNotFound
	}
	result := DatasourceResult{State: state, Value: state.LatestData}
	if input.Path != "" {
		value, err := q.service.DataRepresentation(input.Name, input.Path)
		if err != nil {
			return DatasourceResult{}, err
		}
		result.Value = value
	}
	return result, nil
}
