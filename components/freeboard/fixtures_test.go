package freeboard

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type feedSource struct {
	mu        sync.Mutex
	update    UpdateFunc
	settle    func()
	settings  Settings
	refreshes int
	disposed  int
	changes   []Settings
}

func (f *feedSource) UpdateNow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *feedSource) OnDispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed++
}

func (f *feedSource) OnSettingsChanged(settings Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, settings)
}

// push delivers data the way a plugin worker would and waits for the
// dashboard to apply it.
func (f *feedSource) push(data any) {
	f.mu.Lock()
	update, settle := f.update, f.settle
	f.mu.Unlock()
	update(data)
	if settle != nil {
		settle()
	}
}

func (f *feedSource) counts() (refreshes, disposed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes, f.disposed
}

type calculatedValue struct {
	Setting string
	Value   any
}

type recorderWidget struct {
	mu       sync.Mutex
	settings Settings
	values   []calculatedValue
	resized  int
	disposed int
}

func (p *recorderWidget) OnCalculatedValueChanged(setting string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = append(p.values, calculatedValue{Setting: setting, Value: value})
}

func (p *recorderWidget) OnSettingsChanged(settings Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
}

func (p *recorderWidget) OnSizeChanged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resized++
}

func (p *recorderWidget) OnDispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disposed++
}

func (p *recorderWidget) GetHeight() int { return 2 }

func (p *recorderWidget) Render(w io.Writer) error {
	p.mu.Lock()
	label, _ := p.settings["label"].(string)
	p.mu.Unlock()
	_, err := fmt.Fprintf(w, "<span>%s</span>", label)
	return err
}

func (p *recorderWidget) recorded() []calculatedValue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]calculatedValue(nil), p.values...)
}

type lazySource struct {
	disposed int
}

func (l *lazySource) UpdateNow() {}

func (l *lazySource) OnDispose() { l.disposed++ }

type fixtures struct {
	mu        sync.Mutex
	feeds     []*feedSource
	recorders []*recorderWidget
	pending   []func(DatasourceInstance)
	settle    func()
}

func (fx *fixtures) feed(t *testing.T, idx int) *feedSource {
	t.Helper()
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if idx < 0 {
		idx = len(fx.feeds) + idx
	}
	require.True(t, idx >= 0 && idx < len(fx.feeds), "no feed instance at %d (have %d)", idx, len(fx.feeds))
	return fx.feeds[idx]
}

func (fx *fixtures) recorder(t *testing.T, idx int) *recorderWidget {
	t.Helper()
	fx.mu.Lock()
	defer fx.mu.Unlock()
	if idx < 0 {
		idx = len(fx.recorders) + idx
	}
	require.True(t, idx >= 0 && idx < len(fx.recorders), "no recorder instance at %d (have %d)", idx, len(fx.recorders))
	return fx.recorders[idx]
}

func (fx *fixtures) register(t *testing.T, reg *Registry) {
	t.Helper()
	require.NoError(t, reg.RegisterDatasourcePlugin(PluginDescriptor{
		TypeName: "feed",
		Settings: []SettingDefinition{
			{Name: "interval", Type: SettingNumber, DefaultValue: 5},
		},
		NewDatasource: func(_ context.Context, settings Settings, ready func(DatasourceInstance), update UpdateFunc) {
			src := &feedSource{update: update, settings: settings, settle: fx.settle}
			fx.mu.Lock()
			fx.feeds = append(fx.feeds, src)
			fx.mu.Unlock()
			ready(src)
		},
	}))
	require.NoError(t, reg.RegisterDatasourcePlugin(PluginDescriptor{
		TypeName: "lazy",
		NewDatasource: func(_ context.Context, _ Settings, ready func(DatasourceInstance), _ UpdateFunc) {
			fx.mu.Lock()
			fx.pending = append(fx.pending, ready)
			fx.mu.Unlock()
		},
	}))
	require.NoError(t, reg.RegisterWidgetPlugin(PluginDescriptor{
		TypeName: "recorder",
		Settings: []SettingDefinition{
			{Name: "label", Type: SettingText},
			{Name: "value", Type: SettingCalculated},
		},
		NewWidget: fx.newRecorder,
	}))
	require.NoError(t, reg.RegisterWidgetPlugin(PluginDescriptor{
		TypeName: "broken",
		NewWidget: func(context.Context, Settings, func(WidgetInstance)) {
			panic("factory exploded")
		},
	}))
}

func (fx *fixtures) newRecorder(_ context.Context, settings Settings, ready func(WidgetInstance)) {
	p := &recorderWidget{settings: settings}
	fx.mu.Lock()
	fx.recorders = append(fx.recorders, p)
	fx.mu.Unlock()
	ready(p)
}

type recordingTelemetry struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTelemetry) Record(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingTelemetry) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestDashboard(t *testing.T, configure ...func(*Options)) (*Dashboard, *fixtures) {
	t.Helper()
	fx := &fixtures{}
	reg := NewRegistry()
	fx.register(t, reg)
	opts := Options{Registry: reg, Logger: quietLogger()}
	for _, fn := range configure {
		fn(&opts)
	}
	d := NewDashboard(opts)
	t.Cleanup(d.Close)
	fx.settle = func() { settle(t, d) }
	return d, fx
}

// settle blocks until every update posted to d has been applied.
func settle(t *testing.T, d *Dashboard) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
}
