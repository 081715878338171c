package plugins

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

// SparklineTypeName is the type name of the sparkline widget.
const SparklineTypeName = "sparkline"

const sparklineHistory = 100

// SparklineDescriptor describes a widget charting the recent history of one
// or more values. A multi-input value produces one line per input.
func SparklineDescriptor(o Options) freeboard.PluginDescriptor {
	o = o.withDefaults()
	return freeboard.PluginDescriptor{
		TypeName:    SparklineTypeName,
		DisplayName: "Sparkline",
		Settings: []freeboard.SettingDefinition{
			{Name: "title", DisplayName: "Title", Type: freeboard.SettingText},
			{Name: "value", DisplayName: "Value", Type: freeboard.SettingCalculated, MultiInput: true},
			{Name: "include_legend", DisplayName: "Include Legend", Type: freeboard.SettingBoolean},
			{Name: "legend", DisplayName: "Legend", Type: freeboard.SettingText, Description: "Comma-separated for multiple sparklines"},
		},
		NewWidget: func(_ context.Context, settings freeboard.Settings, ready func(freeboard.WidgetInstance)) {
			ready(&sparklineWidget{settings: settings, cache: o.Charts})
		},
	}
}

type sparklineWidget struct {
	cache *ChartCache

	mu       sync.Mutex
	settings freeboard.Settings
	series   [][]float64
}

func (s *sparklineWidget) OnSettingsChanged(settings freeboard.Settings) {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// OnCalculatedValueChanged appends a point to every series. An array value
// feeds one series per element.
func (s *sparklineWidget) OnCalculatedValueChanged(setting string, value any) {
	if setting != "value" {
		return
	}
	var points []any
	switch v := value.(type) {
	case []any:
		points = v
	default:
		points = []any{v}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.series) < len(points) {
		s.series = append(s.series, nil)
	}
	for i, p := range points {
		f := floatSetting(freeboard.Settings{"v": p}, "v", 0)
		line := append(s.series[i], f)
		if len(line) > sparklineHistory {
			line = line[len(line)-sparklineHistory:]
		}
		s.series[i] = line
	}
}

func (s *sparklineWidget) GetHeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if boolSetting(s.settings, "include_legend", false) {
		return 3
	}
	return 2
}

func (s *sparklineWidget) Render(w io.Writer) error {
	s.mu.Lock()
	title := stringSetting(s.settings, "title", "")
	showLegend := boolSetting(s.settings, "include_legend", false)
	names := legendNames(stringSetting(s.settings, "legend", ""), len(s.series))
	series := make([][]float64, len(s.series))
	for i, line := range s.series {
		series[i] = append([]float64(nil), line...)
	}
	s.mu.Unlock()

	key := chartKey(SparklineTypeName, title, showLegend, names, series)
	html, err := s.cache.GetOrRender(key, func() (string, error) {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: title}),
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "120px"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(showLegend)}),
		)
		longest := 0
		for _, points := range series {
			if len(points) > longest {
				longest = len(points)
			}
		}
		axis := make([]string, longest)
		for i := range axis {
			axis[i] = strconv.Itoa(i + 1)
		}
		line.SetXAxis(axis)
		for i, points := range series {
			data := make([]opts.LineData, len(points))
			for j, v := range points {
				data[j] = opts.LineData{Value: v}
			}
			line.AddSeries(names[i], data)
		}
		line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
		return renderChart(line)
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, html)
	return err
}

func legendNames(legend string, count int) []string {
	parts := strings.Split(legend, ",")
	names := make([]string, count)
	for i := range names {
		if i < len(parts) && strings.TrimSpace(parts[i]) != "" {
			names[i] = strings.TrimSpace(parts[i])
			continue
		}
		names[i] = "Series " + strconv.Itoa(i+1)
	}
	return names
}
