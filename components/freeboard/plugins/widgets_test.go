package plugins

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

func render(t *testing.T, inst freeboard.WidgetInstance) string {
	t.Helper()
	r, ok := inst.(freeboard.WidgetRenderer)
	require.True(t, ok, "widget should render")
	var sb strings.Builder
	require.NoError(t, r.Render(&sb))
	return sb.String()
}

func height(t *testing.T, inst freeboard.WidgetInstance) int {
	t.Helper()
	h, ok := inst.(freeboard.HeightReporter)
	require.True(t, ok)
	return h.GetHeight()
}

func set(t *testing.T, inst freeboard.WidgetInstance, setting string, value any) {
	t.Helper()
	h, ok := inst.(freeboard.CalculatedValueHandler)
	require.True(t, ok)
	h.OnCalculatedValueChanged(setting, value)
}

func TestTextWidgetRendersValue(t *testing.T) {
	inst := startWidget(t, TextDescriptor(Options{}), freeboard.Settings{"title": "Temp", "units": "°C"})
	set(t, inst, "value", "<21>")
	set(t, inst, "other", "ignored")

	html := render(t, inst)
	assert.Contains(t, html, `<h2 class="fb-title">Temp</h2>`)
	assert.Contains(t, html, "&lt;21&gt;", "values are escaped")
	assert.Contains(t, html, "fb-text-regular")
	assert.NotContains(t, html, "ignored")
	assert.Equal(t, 1, height(t, inst))

	inst.(freeboard.SettingsChangedHandler).OnSettingsChanged(freeboard.Settings{"size": "big", "sparkline": true})
	assert.Equal(t, 3, height(t, inst))
	assert.NotContains(t, render(t, inst), "fb-title")
}

func TestGaugePercent(t *testing.T) {
	cases := []struct {
		value, min, max, want float64
	}{
		{50, 0, 100, 50},
		{-5, 0, 100, 0},
		{150, 0, 100, 100},
		{15, 10, 20, 50},
		{1, 0, 3, 33.3},
		{5, 10, 10, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, gaugePercent(tc.value, tc.min, tc.max), "%v in [%v,%v]", tc.value, tc.min, tc.max)
	}
}

func TestGaugeWidgetRendersThroughCache(t *testing.T) {
	cache := NewChartCache(time.Minute)
	inst := startWidget(t, GaugeDescriptor(Options{Charts: cache, Logger: quietLogger()}), freeboard.Settings{"title": "Load", "units": "%"})
	set(t, inst, "value", int64(42))

	first := render(t, inst)
	second := render(t, inst)
	assert.Equal(t, first, second)
	assert.Contains(t, first, "echarts")
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 3, height(t, inst))

	set(t, inst, "value", "43")
	render(t, inst)
	assert.Equal(t, 2, cache.Len())
}

func TestSparklineWidgetTracksSeries(t *testing.T) {
	inst := startWidget(t, SparklineDescriptor(Options{Logger: quietLogger()}), freeboard.Settings{"legend": "inside, "})
	s := inst.(*sparklineWidget)

	set(t, inst, "value", 1)
	set(t, inst, "value", []any{int64(2), 3.5})
	for i := 0; i < sparklineHistory+10; i++ {
		set(t, inst, "value", []any{i, i})
	}

	s.mu.Lock()
	require.Len(t, s.series, 2)
	assert.Len(t, s.series[0], sparklineHistory)
	assert.Len(t, s.series[1], sparklineHistory)
	assert.Equal(t, float64(sparklineHistory+9), s.series[0][sparklineHistory-1])
	s.mu.Unlock()

	html := render(t, inst)
	assert.Contains(t, html, "inside")
	assert.Contains(t, html, "Series 2")
	assert.Equal(t, 2, height(t, inst))

	inst.(freeboard.SettingsChangedHandler).OnSettingsChanged(freeboard.Settings{"include_legend": true})
	assert.Equal(t, 3, height(t, inst))
}

func TestLegendNames(t *testing.T) {
	assert.Equal(t, []string{"a", "Series 2", "c"}, legendNames("a,,c", 3))
	assert.Equal(t, []string{"Series 1"}, legendNames("", 1))
	assert.Equal(t, []string{"x"}, legendNames(" x , y", 1))
}

func TestIndicatorWidget(t *testing.T) {
	inst := startWidget(t, IndicatorDescriptor(Options{}), freeboard.Settings{"title": "Door"})
	ind := inst.(*indicatorWidget)
	set(t, inst, "on_text", "OPEN")
	set(t, inst, "off_text", "CLOSED")

	assert.False(t, ind.On())
	html := render(t, inst)
	assert.Contains(t, html, "fb-indicator-light off")
	assert.Contains(t, html, "CLOSED")

	set(t, inst, "value", "yes")
	assert.True(t, ind.On())
	html = render(t, inst)
	assert.Contains(t, html, "fb-indicator-light on")
	assert.Contains(t, html, "OPEN")

	set(t, inst, "value", 0)
	assert.False(t, ind.On())
}
