package plugins

import (
	"context"
	"io"
	"math"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// GaugeTypeName is the type name of the gauge widget.
const GaugeTypeName = "gauge"

// GaugeDescriptor describes a radial gauge rendered with echarts. The value is
// drawn as a percentage of the min/max range.
func GaugeDescriptor(opts Options) freeboard.PluginDescriptor {
	opts = opts.withDefaults()
	return freeboard.PluginDescriptor{
		TypeName:    GaugeTypeName,
		DisplayName: "Radial Gauge",
		Settings: []freeboard.SettingDefinition{
			{Name: "title", DisplayName: "Title", Type: freeboard.SettingText},
			{Name: "value", DisplayName: "Value", Type: freeboard.SettingCalculated},
			{Name: "units", DisplayName: "Units", Type: freeboard.SettingText},
			{Name: "min_value", DisplayName: "Minimum", Type: freeboard.SettingText, DefaultValue: 0},
			{Name: "max_value", DisplayName: "Maximum", Type: freeboard.SettingText, DefaultValue: 100},
		},
		NewWidget: func(_ context.Context, settings freeboard.Settings, ready func(freeboard.WidgetInstance)) {
			ready(&gaugeWidget{settings: settings, cache: opts.Charts})
		},
	}
}

type gaugeWidget struct {
	cache *ChartCache

	mu       sync.Mutex
	settings freeboard.Settings
	value    float64
}

func (g *gaugeWidget) OnSettingsChanged(settings freeboard.Settings) {
	g.mu.Lock()
	g.settings = settings
	g.mu.Unlock()
}

func (g *gaugeWidget) OnCalculatedValueChanged(setting string, value any) {
	if setting != "value" {
		return
	}
	f := floatSetting(freeboard.Settings{"v": value}, "v", 0)
	g.mu.Lock()
	g.value = f
	g.mu.Unlock()
}

func (g *gaugeWidget) GetHeight() int { return 3 }

func (g *gaugeWidget) Render(w io.Writer) error {
	g.mu.Lock()
	title := stringSetting(g.settings, "title", "")
	units := stringSetting(g.settings, "units", "")
	min := floatSetting(g.settings, "min_value", 0)
	max := floatSetting(g.settings, "max_value", 100)
	value := g.value
	g.mu.Unlock()

	key := chartKey(GaugeTypeName, title, units, min, max, value)
	html, err := g.cache.GetOrRender(key, func() (string, error) {
		gauge := charts.NewGauge()
		gauge.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: title}),
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "180px"}),
		)
		gauge.AddSeries(title, []opts.GaugeData{{Name: units, Value: gaugePercent(value, min, max)}})
		return renderChart(gauge)
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, html)
	return err
}

func gaugePercent(value, min, max float64) float64 {
	if max <= min {
		return 0
	}
	pct := (value - min) / (max - min) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return math.Round(pct*10) / 10
}
