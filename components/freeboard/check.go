package freeboard

import (
	"errors"
	"fmt"
)

// DocumentProblem is a single finding reported by CheckDocument.
type DocumentProblem struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

func (p DocumentProblem) String() string {
	return p.Path + ": " + p.Message
}

// CheckDocument lints a document against the registry without instantiating
// any plugin. It reports unknown types, settings that fail validation, and
// calculated settings that reference datasources the document does not define.
func CheckDocument(reg PluginRegistry, validator SettingsValidator, evaluator *Evaluator, doc Document) []DocumentProblem {
	if validator == nil {
		validator = NewSchemaValidator()
	}
	if evaluator == nil {
		evaluator = NewEvaluator()
	}
	var problems []DocumentProblem
	add := func(path string, err error) {
		problems = append(problems, DocumentProblem{Path: path, Message: err.Error()})
	}

	names := make(map[string]struct{}, len(doc.Datasources))
	for idx, ds := range doc.Datasources {
		name := ds.Name
		if name == "" {
			name, _ = ds.Settings[nameSetting.Name].(string)
		}
		path := fmt.Sprintf("datasources[%d]", idx)
		if name == "" {
			add(path, ErrMissingName)
			continue
		}
		path = fmt.Sprintf("datasources[%d](%s)", idx, name)
		if _, dup := names[name]; dup {
			add(path, ErrDuplicateDatasource)
		}
		names[name] = struct{}{}
		desc, ok := reg.DatasourcePlugin(ds.Type)
		if !ok {
			add(path, fmt.Errorf("%w: datasource %s", ErrUnknownPluginType, ds.Type))
			continue
		}
		settings := ApplyDefaults(desc, ds.Settings)
		settings[nameSetting.Name] = name
		if err := validator.Validate(desc, settings); err != nil {
			add(path, err)
		}
	}

	for pi, pane := range doc.Panes {
		for wi, w := range pane.Widgets {
			path := fmt.Sprintf("panes[%d].widgets[%d](%s)", pi, wi, w.Type)
			desc, ok := reg.WidgetPlugin(w.Type)
			if !ok {
				add(path, fmt.Errorf("%w: widget %s", ErrUnknownPluginType, w.Type))
				continue
			}
			if err := validator.Validate(desc, ApplyDefaults(desc, w.Settings)); err != nil {
				add(path, err)
			}
			for _, def := range desc.Settings {
				if def.Type != SettingCalculated {
					continue
				}
				raw, ok := w.Settings[def.Name]
				if !ok || raw == nil {
					continue
				}
				expr, err := evaluator.Compile(raw)
				if err != nil {
					if !errors.Is(err, ErrUnsupportedExpression) {
						add(path+"."+def.Name, err)
					}
					continue
				}
				if expr.Literal {
					continue
				}
				for _, dep := range expr.Dependencies {
					if _, known := names[dep]; !known {
						add(path+"."+def.Name, fmt.Errorf("%w: %s", ErrDatasourceNotFound, dep))
					}
				}
			}
		}
	}
	return problems
}
