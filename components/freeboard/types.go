package freeboard

import (
	"context"
	"io"
)

// PluginRegistry stores datasource/widget plugin descriptors keyed by type name.
type PluginRegistry interface {
	RegisterDatasourcePlugin(desc PluginDescriptor) error
	RegisterWidgetPlugin(desc PluginDescriptor) error
	DatasourcePlugin(typeName string) (PluginDescriptor, bool)
	WidgetPlugin(typeName string) (PluginDescriptor, bool)
	DatasourceTypes() []PluginType
	WidgetTypes() []PluginType
}

// RefreshHook notifies transports (REST/WebSocket) about widget changes.
type RefreshHook interface {
	WidgetUpdated(ctx context.Context, event WidgetEvent) error
}

// PluginKind distinguishes the two plugin families.
type PluginKind string

const (
	KindDatasource PluginKind = "datasource"
	KindWidget     PluginKind = "widget"
)

// SettingType enumerates the editor input kinds a setting can declare.
type SettingType string

const (
	SettingText       SettingType = "text"
	SettingNumber     SettingType = "number"
	SettingBoolean    SettingType = "boolean"
	SettingOptionType SettingType = "option"
	SettingArray      SettingType = "array"
	SettingCalculated SettingType = "calculated"
)

// SettingOption is a single choice of an option setting. Value defaults to Name.
type SettingOption struct {
	Name  string `json:"name" yaml:"name"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// OptionValue returns the stored value for the option.
func (o SettingOption) OptionValue() any {
	if o.Value == nil {
		return o.Name
	}
	return o.Value
}

// SettingDefinition declares one configurable value of a plugin.
type SettingDefinition struct {
	Name         string              `json:"name" yaml:"name"`
	DisplayName  string              `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Type         SettingType         `json:"type" yaml:"type"`
	DefaultValue any                 `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Required     bool                `json:"required,omitempty" yaml:"required,omitempty"`
	Description  string              `json:"description,omitempty" yaml:"description,omitempty"`
	Suffix       string              `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Options      []SettingOption     `json:"options,omitempty" yaml:"options,omitempty"`
	Settings     []SettingDefinition `json:"settings,omitempty" yaml:"settings,omitempty"`
	MultiInput   bool                `json:"multi_input,omitempty" yaml:"multi_input,omitempty"`
}

// PluginDescriptor is the registration record of a datasource or widget type.
// Datasource descriptors set NewDatasource, widget descriptors set NewWidget.
type PluginDescriptor struct {
	TypeName        string              `json:"type_name" yaml:"type_name"`
	DisplayName     string              `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description     string              `json:"description,omitempty" yaml:"description,omitempty"`
	ExternalScripts []string            `json:"external_scripts,omitempty" yaml:"external_scripts,omitempty"`
	Settings        []SettingDefinition `json:"settings,omitempty" yaml:"settings,omitempty"`
	FillSize        bool                `json:"fill_size,omitempty" yaml:"fill_size,omitempty"`
	Source          string              `json:"source,omitempty" yaml:"source,omitempty"`

	NewDatasource DatasourceFactory `json:"-" yaml:"-"`
	NewWidget     WidgetFactory     `json:"-" yaml:"-"`
}

// Setting returns the definition named name.
func (d PluginDescriptor) Setting(name string) (SettingDefinition, bool) {
	for _, def := range d.Settings {
		if def.Name == name {
			return def, true
		}
	}
	return SettingDefinition{}, false
}

// PluginType is the listing entry used by editors to offer available types.
type PluginType struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Settings maps setting names to raw values. Calculated settings hold
// expression source text (or a list of sources for multi-input settings).
type Settings map[string]any

// Clone returns a shallow copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// UpdateFunc pushes a new value from a datasource instance into the dashboard.
// It can be called any number of times, from any goroutine.
type UpdateFunc func(data any)

// DatasourceFactory builds a datasource instance. ready may be invoked
// synchronously or later; ctx is cancelled when the instance is disposed.
type DatasourceFactory func(ctx context.Context, settings Settings, ready func(DatasourceInstance), update UpdateFunc)

// WidgetFactory builds a widget instance.
type WidgetFactory func(ctx context.Context, settings Settings, ready func(WidgetInstance))

// DatasourceInstance is a live datasource. UpdateNow may be a no-op.
type DatasourceInstance interface {
	UpdateNow()
}

// WidgetInstance is a live widget. Its behaviour is discovered through the
// optional capability interfaces below.
type WidgetInstance interface{}

// SettingsChangedHandler receives settings edits without recreating the instance.
type SettingsChangedHandler interface {
	OnSettingsChanged(settings Settings)
}

// Disposer releases instance resources.
type Disposer interface {
	OnDispose()
}

// CalculatedValueHandler receives re-evaluated calculated settings.
type CalculatedValueHandler interface {
	OnCalculatedValueChanged(setting string, value any)
}

// HeightReporter reports the widget height in layout blocks.
type HeightReporter interface {
	GetHeight() int
}

// WidgetRenderer writes the widget markup.
type WidgetRenderer interface {
	Render(w io.Writer) error
}

// SizeChangedHandler is notified when the hosting pane changes width.
type SizeChangedHandler interface {
	OnSizeChanged()
}

// WidgetEvent describes changes that transports might care about.
type WidgetEvent struct {
	PaneID   string `json:"pane_id,omitempty"`
	WidgetID string `json:"widget_id,omitempty"`
	Setting  string `json:"setting,omitempty"`
	Value    any    `json:"value,omitempty"`
	Reason   string `json:"reason"`
}

// DatasourceConfig is the serialized form of a datasource.
type DatasourceConfig struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
}

// WidgetConfig is the serialized form of a widget.
type WidgetConfig struct {
	Title    string   `json:"title,omitempty"`
	Type     string   `json:"type"`
	Settings Settings `json:"settings"`
}

// PaneConfig is the serialized form of a pane. Row and Col map a column
// count to a grid position and are passed through untouched.
type PaneConfig struct {
	Title    string         `json:"title,omitempty"`
	Width    int            `json:"width"`
	Row      map[string]int `json:"row,omitempty"`
	Col      map[string]int `json:"col,omitempty"`
	ColWidth int            `json:"col_width"`
	Widgets  []WidgetConfig `json:"widgets"`
}

// Document is the persisted dashboard configuration.
type Document struct {
	Version     int                `json:"version"`
	HeaderImage string             `json:"header_image,omitempty"`
	AllowEdit   *bool              `json:"allow_edit,omitempty"`
	Plugins     []string           `json:"plugins"`
	Panes       []PaneConfig       `json:"panes"`
	Datasources []DatasourceConfig `json:"datasources"`
	Columns     int                `json:"columns,omitempty"`
}
