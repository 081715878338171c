package plugins

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"sync"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// TextTypeName is the type name of the text widget.
const TextTypeName = "text_widget"

var textTemplate = template.Must(template.New("text").Parse(
	`<div class="fb-text fb-text-{{.Size}}">` +
		`{{if .Title}}<h2 class="fb-title">{{.Title}}</h2>{{end}}` +
		`<div class="fb-value" data-setting="value">{{.Value}}</div>` +
		`{{if .Units}}<span class="fb-units">{{.Units}}</span>{{end}}` +
		`</div>`))

// TextDescriptor describes a widget showing a calculated value as text.
func TextDescriptor(opts Options) freeboard.PluginDescriptor {
	return freeboard.PluginDescriptor{
		TypeName:    TextTypeName,
		DisplayName: "Text",
		Settings: []freeboard.SettingDefinition{
			{Name: "title", DisplayName: "Title", Type: freeboard.SettingText},
			{Name: "size", DisplayName: "Size", Type: freeboard.SettingOptionType, DefaultValue: "regular", Options: []freeboard.SettingOption{
				{Name: "Regular", Value: "regular"},
				{Name: "Big", Value: "big"},
			}},
			{Name: "value", DisplayName: "Value", Type: freeboard.SettingCalculated},
			{Name: "sparkline", DisplayName: "Include Sparkline", Type: freeboard.SettingBoolean},
			{Name: "animate", DisplayName: "Animate Value Changes", Type: freeboard.SettingBoolean, DefaultValue: true},
			{Name: "units", DisplayName: "Units", Type: freeboard.SettingText},
		},
		NewWidget: func(_ context.Context, settings freeboard.Settings, ready func(freeboard.WidgetInstance)) {
			ready(&textWidget{settings: settings})
		},
	}
}

type textWidget struct {
	mu       sync.Mutex
	settings freeboard.Settings
	value    any
}

func (t *textWidget) OnSettingsChanged(settings freeboard.Settings) {
	t.mu.Lock()
	t.settings = settings
	t.mu.Unlock()
}

func (t *textWidget) OnCalculatedValueChanged(setting string, value any) {
	if setting != "value" {
		return
	}
	t.mu.Lock()
	t.value = value
	t.mu.Unlock()
}

func (t *textWidget) GetHeight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	height := 1
	if stringSetting(t.settings, "size", "regular") == "big" {
		height = 2
	}
	if boolSetting(t.settings, "sparkline", false) {
		height++
	}
	return height
}

func (t *textWidget) Render(w io.Writer) error {
	t.mu.Lock()
	data := map[string]any{
		"Title": stringSetting(t.settings, "title", ""),
		"Size":  stringSetting(t.settings, "size", "regular"),
		"Units": stringSetting(t.settings, "units", ""),
		"Value": displayValue(t.value),
	}
	t.mu.Unlock()
	return textTemplate.Execute(w, data)
}

func displayValue(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}
