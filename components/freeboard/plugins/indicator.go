package plugins

import (
	"context"
	"html/template"
	"io"
	"sync"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// IndicatorTypeName is the type name of the indicator light widget.
const IndicatorTypeName = "indicator"

var indicatorTemplate = template.Must(template.New("indicator").Parse(
	`<div class="fb-indicator">` +
		`{{if .Title}}<h2 class="fb-title">{{.Title}}</h2>{{end}}` +
		`<div class="fb-indicator-light {{if .On}}on{{else}}off{{end}}"></div>` +
		`<div class="fb-indicator-text" data-setting="value">{{.Text}}</div>` +
		`</div>`))

// IndicatorDescriptor describes an on/off light driven by a calculated value.
func IndicatorDescriptor(opts Options) freeboard.PluginDescriptor {
	return freeboard.PluginDescriptor{
		TypeName:    IndicatorTypeName,
		DisplayName: "Indicator Light",
		Settings: []freeboard.SettingDefinition{
			{Name: "title", DisplayName: "Title", Type: freeboard.SettingText},
			{Name: "value", DisplayName: "Value", Type: freeboard.SettingCalculated},
			{Name: "on_text", DisplayName: "On Text", Type: freeboard.SettingCalculated},
			{Name: "off_text", DisplayName: "Off Text", Type: freeboard.SettingCalculated},
		},
		NewWidget: func(_ context.Context, settings freeboard.Settings, ready func(freeboard.WidgetInstance)) {
			ready(&indicatorWidget{settings: settings})
		},
	}
}

type indicatorWidget struct {
	mu       sync.Mutex
	settings freeboard.Settings
	on       bool
	onText   string
	offText  string
}

func (i *indicatorWidget) OnSettingsChanged(settings freeboard.Settings) {
	i.mu.Lock()
	i.settings = settings
	i.mu.Unlock()
}

func (i *indicatorWidget) OnCalculatedValueChanged(setting string, value any) {
	i.mu.Lock()
	defer i.mu.Unlock()
	switch setting {
	case "value":
		i.on = truthy(value)
	case "on_text":
		i.onText = displayValue(value)
	case "off_text":
		i.offText = displayValue(value)
	}
}

// On reports the light state.
func (i *indicatorWidget) On() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.on
}

func (i *indicatorWidget) Render(w io.Writer) error {
	i.mu.Lock()
	text := i.offText
	if i.on {
		text = i.onText
	}
	data := map[string]any{
		"Title": stringSetting(i.settings, "title", ""),
		"On":    i.on,
		"Text":  text,
	}
	i.mu.Unlock()
	return indicatorTemplate.Execute(w, data)
}
