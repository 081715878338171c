package plugins

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// updates collects values pushed by a datasource instance.
type updates struct {
	mu     sync.Mutex
	values []any
	ch     chan any
}

func newUpdates() *updates {
	return &updates{ch: make(chan any, 16)}
}

func (u *updates) push(data any) {
	u.mu.Lock()
	u.values = append(u.values, data)
	u.mu.Unlock()
	select {
	case u.ch <- data:
	default:
	}
}

func (u *updates) next(t *testing.T) any {
	t.Helper()
	select {
	case v := <-u.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for datasource update")
		return nil
	}
}

func startDatasource(t *testing.T, desc freeboard.PluginDescriptor, settings freeboard.Settings) (freeboard.DatasourceInstance, *updates) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	u := newUpdates()
	var inst freeboard.DatasourceInstance
	desc.NewDatasource(ctx, freeboard.ApplyDefaults(desc, settings), func(i freeboard.DatasourceInstance) { inst = i }, u.push)
	require.NotNil(t, inst, "datasource should be ready synchronously")
	if disposer, ok := inst.(freeboard.Disposer); ok {
		t.Cleanup(disposer.OnDispose)
	}
	return inst, u
}

func startWidget(t *testing.T, desc freeboard.PluginDescriptor, settings freeboard.Settings) freeboard.WidgetInstance {
	t.Helper()
	var inst freeboard.WidgetInstance
	desc.NewWidget(context.Background(), freeboard.ApplyDefaults(desc, settings), func(i freeboard.WidgetInstance) { inst = i })
	require.NotNil(t, inst)
	return inst
}

func TestRegisterInstallsBuiltins(t *testing.T) {
	reg := freeboard.NewRegistry()
	require.NoError(t, Register(reg, Options{Logger: quietLogger()}))

	var datasources, widgets []string
	for _, pt := range reg.DatasourceTypes() {
		datasources = append(datasources, pt.Name)
	}
	for _, pt := range reg.WidgetTypes() {
		widgets = append(widgets, pt.Name)
	}
	assert.Equal(t, []string{JSONTypeName, ClockTypeName, MQTTTypeName, RandomTypeName, RedisTypeName}, datasources)
	assert.Equal(t, []string{GaugeTypeName, IndicatorTypeName, SparklineTypeName, TextTypeName}, widgets)

	doc, err := freeboard.DecodeManifest(strings.NewReader("plugins:\n  - kind: datasource\n    type_name: ticker\n    factory: clock\n  - kind: widget\n    type_name: headline\n    factory: text_widget\n"))
	require.NoError(t, err)
	require.NoError(t, reg.LoadManifestDocument(doc), "builtin factories are bound under their type names")
}

func TestHookRegistersBuiltins(t *testing.T) {
	reg := freeboard.NewRegistry()
	require.NoError(t, Hook(Options{Logger: quietLogger()})(reg))
	_, ok := reg.WidgetPlugin(GaugeTypeName)
	assert.True(t, ok)
}

func TestSettingHelpers(t *testing.T) {
	settings := freeboard.Settings{
		"f":     2.5,
		"i":     3,
		"s":     " 4.5 ",
		"bad":   "x",
		"text":  "hello",
		"num":   7,
		"bool":  true,
		"sbool": "false",
	}
	assert.Equal(t, 2.5, floatSetting(settings, "f", 0))
	assert.Equal(t, 3.0, floatSetting(settings, "i", 0))
	assert.Equal(t, 4.5, floatSetting(settings, "s", 0))
	assert.Equal(t, 9.0, floatSetting(settings, "bad", 9))
	assert.Equal(t, 3, intSetting(settings, "i", 0))
	assert.Equal(t, "hello", stringSetting(settings, "text", ""))
	assert.Equal(t, "7", stringSetting(settings, "num", ""))
	assert.Equal(t, "fallback", stringSetting(settings, "missing", "fallback"))
	assert.True(t, boolSetting(settings, "bool", false))
	assert.False(t, boolSetting(settings, "sbool", true))
	assert.True(t, boolSetting(settings, "missing", true))
	assert.Equal(t, 1500*time.Millisecond, seconds(freeboard.Settings{"refresh": 1.5}, "refresh", 5))
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, "on", int64(1), 2, 0.5, map[string]any{}} {
		assert.True(t, truthy(v), "%v should be truthy", v)
	}
	for _, v := range []any{nil, false, "", "0", "FALSE", int64(0), 0, 0.0} {
		assert.False(t, truthy(v), "%v should be falsy", v)
	}
}

func TestPollerTicksAndStops(t *testing.T) {
	ticks := make(chan struct{}, 8)
	p := newPoller(context.Background(), 5*time.Millisecond, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected poller to tick")
	}
	p.close()
	p.close()
}

func TestPollerZeroIntervalDisablesTimer(t *testing.T) {
	ticked := make(chan struct{}, 1)
	p := newPoller(context.Background(), 0, func() {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})
	defer p.close()
	select {
	case <-ticked:
		t.Fatalf("poller without interval must not tick")
	case <-time.After(30 * time.Millisecond):
	}

	p.setInterval(5 * time.Millisecond)
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected ticks after setInterval")
	}
}
