package freeboard

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addRecorderPane(t *testing.T, d *Dashboard, settings Settings) (paneID, widgetID string) {
	t.Helper()
	ctx := context.Background()
	paneID, err := d.AddPane(ctx, PaneConfig{Title: "Weather", Width: 1})
	require.NoError(t, err)
	widgetID, err = d.AddWidget(ctx, paneID, WidgetConfig{Type: "recorder", Settings: settings})
	require.NoError(t, err)
	return paneID, widgetID
}

func TestDatasourceUpdatePropagatesToWidget(t *testing.T) {
	hook := NewBroadcastHook()
	events, cancel := hook.Subscribe()
	defer cancel()
	d, fx := newTestDashboard(t, func(o *Options) { o.RefreshHook = hook })
	ctx := context.Background()

	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	_, widgetID := addRecorderPane(t, d, Settings{"value": `datasources["temp"]`})

	fx.feed(t, 0).push(72)

	values := fx.recorder(t, 0).recorded()
	require.Len(t, values, 1)
	assert.Equal(t, "value", values[0].Setting)
	assert.EqualValues(t, 72, values[0].Value)

	select {
	case event := <-events:
		assert.Equal(t, widgetID, event.WidgetID)
		assert.Equal(t, "value", event.Reason)
		assert.Equal(t, "value", event.Setting)
		assert.EqualValues(t, 72, event.Value)
	default:
		t.Fatalf("expected a widget event to be broadcast")
	}

	state, ok := d.Datasource("temp")
	require.True(t, ok)
	assert.Equal(t, 72, state.LatestData)
	assert.True(t, state.Live)
	assert.False(t, state.LastUpdated.IsZero())
	assert.Equal(t, 72, d.DatasourceData()["temp"])
}

func TestWidgetEvaluatesExistingDataWhenReady(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	fx.feed(t, 0).push(68)

	addRecorderPane(t, d, Settings{"value": `datasources.temp + 1`})

	values := fx.recorder(t, 0).recorded()
	require.Len(t, values, 1)
	assert.EqualValues(t, 69, values[0].Value)
}

func TestRepeatedReferenceFiresOncePerUpdate(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "a", Type: "feed"}))
	_, widgetID := addRecorderPane(t, d, Settings{"value": `datasources.a && datasources.a.v`})

	state, ok := d.Widget(widgetID)
	require.True(t, ok)
	assert.Equal(t, map[string][]string{"a": {"value"}}, state.Dependencies)

	fx.feed(t, 0).push(map[string]any{"v": 5})

	values := fx.recorder(t, 0).recorded()
	require.Len(t, values, 1)
	assert.EqualValues(t, 5, values[0].Value)
}

func TestRenameDropsDataUnderOldName(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	addRecorderPane(t, d, Settings{"value": `datasources["temp"]`})
	feed := fx.feed(t, 0)
	feed.push(72)

	require.NoError(t, d.UpdateDatasource(ctx, "temp", DatasourceConfig{Name: "temperature"}))

	data := d.DatasourceData()
	assert.NotContains(t, data, "temp")
	assert.NotContains(t, data, "temperature")
	_, ok := d.Datasource("temp")
	assert.False(t, ok)
	state, ok := d.Datasource("temperature")
	require.True(t, ok)
	assert.Equal(t, "feed", state.Type)

	feed.push(80)
	assert.Equal(t, 80, d.DatasourceData()["temperature"])
	assert.Len(t, fx.recorder(t, 0).recorded(), 1, "widget bound to the old name must not re-evaluate")

	refreshes, _ := feed.counts()
	assert.Equal(t, 1, refreshes, "settings edits must not recreate the instance")
	require.Len(t, feed.changes, 1)
	assert.NotContains(t, feed.changes[0], "name")
}

func TestRenameRejectsTakenName(t *testing.T) {
	d, _ := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "a", Type: "feed"}))
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "b", Type: "feed"}))

	err := d.UpdateDatasource(ctx, "a", DatasourceConfig{Settings: Settings{"name": "b"}})
	require.ErrorIs(t, err, ErrDuplicateDatasource)
	_, ok := d.Datasource("a")
	assert.True(t, ok)
}

func TestAddDatasourceErrors(t *testing.T) {
	d, _ := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Type: "feed", Settings: Settings{"name": "temp"}}))

	err := d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"})
	require.ErrorIs(t, err, ErrDuplicateDatasource)

	err = d.AddDatasource(ctx, DatasourceConfig{Type: "feed"})
	require.ErrorIs(t, err, ErrMissingName)

	err = d.AddDatasource(ctx, DatasourceConfig{Name: "x", Type: "weather"})
	require.ErrorIs(t, err, ErrUnknownPluginType)

	assert.Len(t, d.Datasources(), 1)
}

func TestValidationFailureLeavesStateUnchanged(t *testing.T) {
	d, _ := newTestDashboard(t)
	ctx := context.Background()

	err := d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed", Settings: Settings{"interval": "soon"}})
	require.ErrorIs(t, err, ErrInvalidSettings)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "interval", verr.Field)
	assert.Empty(t, d.Datasources())

	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed", Settings: Settings{"interval": 10}}))
	err = d.UpdateDatasource(ctx, "temp", DatasourceConfig{Settings: Settings{"interval": "later"}})
	require.ErrorIs(t, err, ErrInvalidSettings)

	state, ok := d.Datasource("temp")
	require.True(t, ok)
	assert.Equal(t, 10, state.Settings["interval"])
}

func TestDatasourceDefaultsApplied(t *testing.T) {
	d, fx := newTestDashboard(t)
	require.NoError(t, d.AddDatasource(context.Background(), DatasourceConfig{Name: "temp", Type: "feed"}))

	state, ok := d.Datasource("temp")
	require.True(t, ok)
	assert.Equal(t, 5, state.Settings["interval"])
	assert.NotContains(t, state.Settings, "name")
	assert.Equal(t, 5, fx.feed(t, 0).settings["interval"])
}

func TestUpdateDatasourceNow(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	require.NoError(t, d.UpdateDatasourceNow(ctx, "temp"))

	refreshes, _ := fx.feed(t, 0).counts()
	assert.Equal(t, 2, refreshes, "ready triggers one refresh, the explicit call another")

	require.ErrorIs(t, d.UpdateDatasourceNow(ctx, "missing"), ErrDatasourceNotFound)
}

func TestRemoveDatasourceDisposesAndIgnoresLateUpdates(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	feed := fx.feed(t, 0)
	feed.push(1)

	require.NoError(t, d.RemoveDatasource(ctx, "temp"))
	_, disposed := feed.counts()
	assert.Equal(t, 1, disposed)
	assert.NotContains(t, d.DatasourceData(), "temp")

	feed.push(2)
	assert.Empty(t, d.DatasourceData())

	require.ErrorIs(t, d.RemoveDatasource(ctx, "temp"), ErrDatasourceNotFound)
}

func TestDisposeIsIdempotent(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	_, widgetID := addRecorderPane(t, d, nil)

	d.loop.Do(func() {
		ds := d.findDatasource("temp")
		ds.dispose()
		ds.dispose()
		w := d.findWidget(widgetID)
		w.dispose()
		w.dispose()
	})

	_, disposed := fx.feed(t, 0).counts()
	assert.Equal(t, 1, disposed)
	assert.Equal(t, 1, fx.recorder(t, 0).disposed)

	d.Clear(context.Background())
	_, disposed = fx.feed(t, 0).counts()
	assert.Equal(t, 1, disposed)
	assert.Equal(t, 1, fx.recorder(t, 0).disposed)
}

func TestStaleReadyIsDiscarded(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "slow", Type: "lazy"}))
	require.Len(t, fx.pending, 1)
	staleReady := fx.pending[0]

	state, _ := d.Datasource("slow")
	assert.False(t, state.Live)

	require.NoError(t, d.UpdateDatasource(ctx, "slow", DatasourceConfig{Type: "feed"}))

	late := &lazySource{}
	staleReady(late)
	settle(t, d)

	assert.Equal(t, 1, late.disposed)
	state, ok := d.Datasource("slow")
	require.True(t, ok)
	assert.Equal(t, "feed", state.Type)
	assert.True(t, state.Live)
}

func TestTypeChangeIgnoresOldInstanceUpdates(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	old := fx.feed(t, 0)

	require.NoError(t, d.UpdateDatasource(ctx, "temp", DatasourceConfig{Type: "lazy"}))
	_, disposed := old.counts()
	assert.Equal(t, 1, disposed)

	old.push(99)
	assert.NotContains(t, d.DatasourceData(), "temp")
}

func TestWidgetLifecycle(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	paneID, widgetID := addRecorderPane(t, d, Settings{"label": "hello"})

	state, ok := d.Widget(widgetID)
	require.True(t, ok)
	assert.True(t, state.Live)
	assert.Equal(t, 2, state.Height)
	assert.Equal(t, paneID, state.PaneID)

	var buf bytes.Buffer
	require.NoError(t, d.RenderWidget(ctx, widgetID, &buf))
	assert.Equal(t, "<span>hello</span>", buf.String())

	require.NoError(t, d.UpdateWidget(ctx, widgetID, WidgetConfig{Title: "Greeting", Settings: Settings{"label": "bye"}}))
	state, _ = d.Widget(widgetID)
	assert.Equal(t, "Greeting", state.Title)
	assert.Len(t, fx.recorders, 1, "same type edits keep the instance")
	buf.Reset()
	require.NoError(t, d.RenderWidget(ctx, widgetID, &buf))
	assert.Equal(t, "<span>bye</span>", buf.String())

	require.NoError(t, d.UpdatePane(ctx, paneID, "Renamed", 2))
	assert.Equal(t, 1, fx.recorder(t, 0).resized)

	require.ErrorIs(t, d.UpdateWidget(ctx, widgetID, WidgetConfig{Type: "hologram"}), ErrUnknownPluginType)
	require.ErrorIs(t, d.RenderWidget(ctx, "missing", &buf), ErrWidgetNotFound)

	require.NoError(t, d.RemovePane(ctx, paneID))
	assert.Equal(t, 1, fx.recorder(t, 0).disposed)
	assert.Empty(t, d.Panes())
	require.ErrorIs(t, d.RemovePane(ctx, paneID), ErrPaneNotFound)
}

func TestAddWidgetErrors(t *testing.T) {
	d, _ := newTestDashboard(t)
	ctx := context.Background()
	_, err := d.AddWidget(ctx, "nope", WidgetConfig{Type: "recorder"})
	require.ErrorIs(t, err, ErrPaneNotFound)

	paneID, err := d.AddPane(ctx, PaneConfig{Width: 1})
	require.NoError(t, err)
	_, err = d.AddWidget(ctx, paneID, WidgetConfig{Type: "hologram"})
	require.ErrorIs(t, err, ErrUnknownPluginType)

	_, err = d.AddPane(ctx, PaneConfig{Widgets: []WidgetConfig{{Type: "recorder"}, {Type: "hologram"}}})
	require.ErrorIs(t, err, ErrUnknownPluginType)
	assert.Len(t, d.Panes(), 1, "a pane with an invalid widget is not added")
}

func TestMoveWidget(t *testing.T) {
	d, _ := newTestDashboard(t)
	ctx := context.Background()
	paneID, first := addRecorderPane(t, d, nil)
	second, err := d.AddWidget(ctx, paneID, WidgetConfig{Type: "recorder"})
	require.NoError(t, err)

	moved, err := d.MoveWidget(ctx, second, -1)
	require.NoError(t, err)
	assert.True(t, moved)

	panes := d.Panes()
	require.Len(t, panes[0].Widgets, 2)
	assert.Equal(t, second, panes[0].Widgets[0].ID)
	assert.Equal(t, first, panes[0].Widgets[1].ID)

	moved, err = d.MoveWidget(ctx, second, -1)
	require.NoError(t, err)
	assert.False(t, moved, "moving past the top is a no-op")

	moved, err = d.MoveWidget(ctx, first, 1)
	require.NoError(t, err)
	assert.False(t, moved, "moving past the bottom is a no-op")

	_, err = d.MoveWidget(ctx, "missing", 1)
	require.ErrorIs(t, err, ErrWidgetNotFound)
}

func TestFactoryPanicIsContained(t *testing.T) {
	telemetry := &recordingTelemetry{}
	d, fx := newTestDashboard(t, func(o *Options) { o.Telemetry = telemetry })
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	paneID, _ := addRecorderPane(t, d, Settings{"value": "datasources.temp"})

	brokenID, err := d.AddWidget(ctx, paneID, WidgetConfig{Type: "broken"})
	require.NoError(t, err)
	state, _ := d.Widget(brokenID)
	assert.False(t, state.Live)
	assert.Equal(t, 1, telemetry.count(EventPluginError))

	fx.feed(t, 0).push(3)
	assert.Len(t, fx.recorder(t, 0).recorded(), 1, "other widgets keep receiving updates")
	assert.Equal(t, 1, telemetry.count(EventDatasourceUpdate))
	assert.Equal(t, 1, telemetry.count(EventWidgetValue))
}

func TestExpressionErrorsAreRecorded(t *testing.T) {
	telemetry := &recordingTelemetry{}
	d, fx := newTestDashboard(t, func(o *Options) { o.Telemetry = telemetry })
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	addRecorderPane(t, d, Settings{"value": "datasources.temp.reading.celsius"})

	fx.feed(t, 0).push(map[string]any{})
	assert.Empty(t, fx.recorder(t, 0).recorded())
	assert.GreaterOrEqual(t, telemetry.count(EventExpressionError), 1)
}

func TestDataRepresentation(t *testing.T) {
	d, fx := newTestDashboard(t)
	require.NoError(t, d.AddDatasource(context.Background(), DatasourceConfig{Name: "weather", Type: "feed"}))
	fx.feed(t, 0).push(map[string]any{"sensor": map[string]any{"temp": 21.5}})

	value, err := d.DataRepresentation("weather", ".sensor.temp")
	require.NoError(t, err)
	assert.Equal(t, 21.5, value)

	_, err = d.DataRepresentation("nope", "")
	require.ErrorIs(t, err, ErrDatasourceNotFound)
}

func TestSerializeRoundTrip(t *testing.T) {
	d, _ := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed", Settings: Settings{"interval": 2}}))
	_, err := d.AddPane(ctx, PaneConfig{
		Title: "Weather",
		Width: 1,
		Row:   map[string]int{"3": 1},
		Col:   map[string]int{"3": 2},
		Widgets: []WidgetConfig{
			{Title: "Now", Type: "recorder", Settings: Settings{"label": "now", "value": "datasources.temp"}},
		},
	})
	require.NoError(t, err)
	d.SetHeaderImage("logo.png")
	d.SetAllowEdit(false)

	doc := d.Serialize()
	assert.Equal(t, DocumentVersion, doc.Version)
	require.NotNil(t, doc.AllowEdit)
	assert.False(t, *doc.AllowEdit)

	var buf bytes.Buffer
	require.NoError(t, d.Save(&buf))
	saved, err := DecodeDocument(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []string{}, saved.Plugins)
	assert.Equal(t, "logo.png", saved.HeaderImage)

	restored, _ := newTestDashboard(t)
	require.NoError(t, restored.Load(ctx, bytes.NewReader(buf.Bytes())))
	assert.Equal(t, saved, restored.Serialize())
	assert.False(t, restored.AllowEdit())

	panes := restored.Panes()
	require.Len(t, panes, 1)
	assert.Equal(t, Position{Row: 1, Col: 2}, panes[0].Position)
}

func TestDeserializeReplacesAndReportsErrors(t *testing.T) {
	telemetry := &recordingTelemetry{}
	d, fx := newTestDashboard(t, func(o *Options) { o.Telemetry = telemetry })
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "old", Type: "feed"}))

	err := d.Deserialize(ctx, Document{
		Datasources: []DatasourceConfig{
			{Name: "temp", Type: "feed"},
			{Name: "temp", Type: "feed"},
		},
		Panes: []PaneConfig{
			{Width: 1, Widgets: []WidgetConfig{{Type: "hologram"}, {Type: "recorder"}}},
		},
	})
	require.ErrorIs(t, err, ErrDuplicateDatasource)

	_, disposed := fx.feed(t, 0).counts()
	assert.Equal(t, 1, disposed, "previous datasources are disposed")
	states := d.Datasources()
	require.Len(t, states, 1)
	assert.Equal(t, "temp", states[0].Name)

	panes := d.Panes()
	require.Len(t, panes, 1)
	require.Len(t, panes[0].Widgets, 2)
	assert.False(t, panes[0].Widgets[0].Live)
	assert.True(t, panes[0].Widgets[1].Live)
	assert.Equal(t, 1, telemetry.count(EventPluginMissing))
}

func TestDeserializeOrdersPanesByRow(t *testing.T) {
	d, _ := newTestDashboard(t)
	err := d.Deserialize(context.Background(), Document{
		Columns: 3,
		Panes: []PaneConfig{
			{Title: "bottom", Row: map[string]int{"3": 9}, Col: map[string]int{"3": 1}},
			{Title: "top", Row: map[string]int{"3": 1}, Col: map[string]int{"3": 1}},
		},
	})
	require.NoError(t, err)
	panes := d.Panes()
	require.Len(t, panes, 2)
	assert.Equal(t, "top", panes[0].Title)
	assert.Equal(t, "bottom", panes[1].Title)
}

func TestExternalScriptsLoadBeforeInstantiation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("function triple(x) { return x * 3; }"))
	}))
	defer srv.Close()

	d, fx := newTestDashboard(t)
	reg := d.Registry().(*Registry)
	require.NoError(t, reg.RegisterWidgetPlugin(PluginDescriptor{
		TypeName:        "scripted",
		ExternalScripts: []string{srv.URL + "/lib.js"},
		Settings:        []SettingDefinition{{Name: "value", Type: SettingCalculated}},
		NewWidget:       fx.newRecorder,
	}))

	paneID, err := d.AddPane(context.Background(), PaneConfig{Width: 1})
	require.NoError(t, err)
	_, err = d.AddWidget(context.Background(), paneID, WidgetConfig{Type: "scripted", Settings: Settings{"value": "triple(3)"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	values := fx.recorder(t, 0).recorded()
	require.Len(t, values, 1)
	assert.EqualValues(t, 9, values[0].Value)
}

func TestAddPluginSource(t *testing.T) {
	d, fx := newTestDashboard(t)
	reg := d.Registry().(*Registry)
	reg.BindWidgetFactory("recorder_factory", fx.newRecorder)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plugins:\n  - kind: widget\n    type_name: remote_recorder\n    factory: recorder_factory\n"))
	}))
	defer srv.Close()

	url := srv.URL + "/plugins.yaml"
	require.NoError(t, d.AddPluginSource(context.Background(), url))
	assert.Equal(t, []string{url}, d.Plugins())

	desc, ok := reg.WidgetPlugin("remote_recorder")
	require.True(t, ok)
	assert.Equal(t, url, desc.Source)

	require.Error(t, d.AddPluginSource(context.Background(), srv.URL+"/missing.yaml\x00"))
}

// workerSource pushes updates from its own goroutine until disposed, and
// OnDispose waits for that goroutine to exit.
type workerSource struct {
	stop chan struct{}
	wg   sync.WaitGroup
}

func (w *workerSource) UpdateNow() {}

func (w *workerSource) OnDispose() {
	close(w.stop)
	w.wg.Wait()
}

type slowWidget struct {
	mu     sync.Mutex
	values int
}

func (s *slowWidget) OnCalculatedValueChanged(string, any) {
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	s.values++
	s.mu.Unlock()
}

func (s *slowWidget) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values
}

func TestRemoveDatasourceWhileWorkerPushes(t *testing.T) {
	d, _ := newTestDashboard(t)
	reg := d.Registry().(*Registry)
	var worker *workerSource
	require.NoError(t, reg.RegisterDatasourcePlugin(PluginDescriptor{
		TypeName: "worker",
		NewDatasource: func(_ context.Context, _ Settings, ready func(DatasourceInstance), update UpdateFunc) {
			src := &workerSource{stop: make(chan struct{})}
			worker = src
			src.wg.Add(1)
			go func() {
				defer src.wg.Done()
				for i := 0; ; i++ {
					select {
					case <-src.stop:
						return
					case <-time.After(time.Millisecond):
					}
					update(i)
				}
			}()
			ready(src)
		},
	}))
	slow := &slowWidget{}
	require.NoError(t, reg.RegisterWidgetPlugin(PluginDescriptor{
		TypeName: "slow",
		Settings: []SettingDefinition{{Name: "value", Type: SettingCalculated}},
		NewWidget: func(_ context.Context, _ Settings, ready func(WidgetInstance)) {
			ready(slow)
		},
	}))

	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "ticks", Type: "worker"}))
	paneID, err := d.AddPane(ctx, PaneConfig{Width: 1})
	require.NoError(t, err)
	_, err = d.AddWidget(ctx, paneID, WidgetConfig{Type: "slow", Settings: Settings{"value": "datasources.ticks"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return slow.count() >= 3 }, 5*time.Second, time.Millisecond)

	removed := make(chan error, 1)
	go func() { removed <- d.RemoveDatasource(ctx, "ticks") }()
	select {
	case err := <-removed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("RemoveDatasource did not return while the worker was pushing updates")
	}
	require.NotNil(t, worker)
	select {
	case <-worker.stop:
	default:
		t.Fatalf("worker was not disposed")
	}
	assert.Empty(t, d.DatasourceData())
}

func TestRenderWidgetDoesNotReevaluateSettings(t *testing.T) {
	hook := NewBroadcastHook()
	events, cancel := hook.Subscribe()
	defer cancel()
	telemetry := &recordingTelemetry{}
	d, fx := newTestDashboard(t, func(o *Options) {
		o.RefreshHook = hook
		o.Telemetry = telemetry
	})
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	_, widgetID := addRecorderPane(t, d, Settings{"label": "now", "value": "datasources.temp"})
	fx.feed(t, 0).push(72)
	<-events

	for i := 0; i < 3; i++ {
		var buf bytes.Buffer
		require.NoError(t, d.RenderWidget(ctx, widgetID, &buf))
		assert.Equal(t, "<span>now</span>", buf.String())
	}

	assert.Len(t, fx.recorder(t, 0).recorded(), 1)
	assert.Equal(t, 1, telemetry.count(EventWidgetValue))
	select {
	case event := <-events:
		t.Fatalf("render broadcast an extra event: %+v", event)
	default:
	}
}

func TestUpdateBeforeReadyIsKept(t *testing.T) {
	d, fx := newTestDashboard(t)
	reg := d.Registry().(*Registry)
	require.NoError(t, reg.RegisterDatasourcePlugin(PluginDescriptor{
		TypeName: "eager",
		NewDatasource: func(_ context.Context, _ Settings, ready func(DatasourceInstance), update UpdateFunc) {
			update(map[string]any{"v": 7})
			ready(&lazySource{})
		},
	}))

	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "boot", Type: "eager"}))
	settle(t, d)

	state, ok := d.Datasource("boot")
	require.True(t, ok)
	assert.True(t, state.Live)
	assert.Equal(t, map[string]any{"v": 7}, state.LatestData)
	assert.Equal(t, map[string]any{"v": 7}, d.DatasourceData()["boot"])

	addRecorderPane(t, d, Settings{"value": "datasources.boot.v"})
	values := fx.recorder(t, 0).recorded()
	require.Len(t, values, 1)
	assert.EqualValues(t, 7, values[0].Value)
}

type panickyWidget struct{}

func (panickyWidget) OnCalculatedValueChanged(string, any) { panic("value handler exploded") }

func TestValueHandlerPanicDoesNotStopOtherWidgets(t *testing.T) {
	telemetry := &recordingTelemetry{}
	d, fx := newTestDashboard(t, func(o *Options) { o.Telemetry = telemetry })
	reg := d.Registry().(*Registry)
	require.NoError(t, reg.RegisterWidgetPlugin(PluginDescriptor{
		TypeName: "panicky",
		Settings: []SettingDefinition{{Name: "value", Type: SettingCalculated}},
		NewWidget: func(_ context.Context, _ Settings, ready func(WidgetInstance)) {
			ready(panickyWidget{})
		},
	}))

	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	paneID, err := d.AddPane(ctx, PaneConfig{Width: 1, Widgets: []WidgetConfig{
		{Type: "panicky", Settings: Settings{"value": "datasources.temp"}},
		{Type: "recorder", Settings: Settings{"value": "datasources.temp"}},
	}})
	require.NoError(t, err)
	require.NotEmpty(t, paneID)

	fx.feed(t, 0).push(3)

	values := fx.recorder(t, 0).recorded()
	require.Len(t, values, 1)
	assert.EqualValues(t, 3, values[0].Value)
	assert.Equal(t, 1, telemetry.count(EventPluginError))
	assert.Equal(t, 3, d.DatasourceData()["temp"])
}

func TestExpressionAssignmentDoesNotLeak(t *testing.T) {
	d, fx := newTestDashboard(t)
	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "temp", Type: "feed"}))
	_, err := d.AddPane(ctx, PaneConfig{Width: 1, Widgets: []WidgetConfig{
		{Type: "recorder", Settings: Settings{"value": "datasources.temp = 0"}},
		{Type: "recorder", Settings: Settings{"value": "datasources.temp"}},
	}})
	require.NoError(t, err)

	fx.feed(t, 0).push(72)

	assert.Equal(t, 72, d.DatasourceData()["temp"])
	state, ok := d.Datasource("temp")
	require.True(t, ok)
	assert.Equal(t, 72, state.LatestData)
	values := fx.recorder(t, 1).recorded()
	require.Len(t, values, 1)
	assert.EqualValues(t, 72, values[0].Value)
}

func TestSecondDatasourceReadyIsIgnored(t *testing.T) {
	d, _ := newTestDashboard(t)
	reg := d.Registry().(*Registry)
	first, second := &feedSource{}, &feedSource{}
	require.NoError(t, reg.RegisterDatasourcePlugin(PluginDescriptor{
		TypeName: "twice",
		NewDatasource: func(_ context.Context, _ Settings, ready func(DatasourceInstance), _ UpdateFunc) {
			ready(first)
			ready(second)
		},
	}))

	ctx := context.Background()
	require.NoError(t, d.AddDatasource(ctx, DatasourceConfig{Name: "dup", Type: "twice"}))
	settle(t, d)
	require.NoError(t, d.UpdateDatasourceNow(ctx, "dup"))

	refreshes, disposed := first.counts()
	assert.Equal(t, 2, refreshes, "the first instance stays live")
	assert.Equal(t, 0, disposed)
	refreshes, disposed = second.counts()
	assert.Equal(t, 0, refreshes)
	assert.Equal(t, 0, disposed)

	require.NoError(t, d.RemoveDatasource(ctx, "dup"))
	_, disposed = first.counts()
	assert.Equal(t, 1, disposed)
	_, disposed = second.counts()
	assert.Equal(t, 0, disposed)
}

func TestSecondWidgetReadyIsIgnored(t *testing.T) {
	d, _ := newTestDashboard(t)
	reg := d.Registry().(*Registry)
	first := &recorderWidget{settings: Settings{"label": "first"}}
	second := &recorderWidget{settings: Settings{"label": "second"}}
	require.NoError(t, reg.RegisterWidgetPlugin(PluginDescriptor{
		TypeName: "twice",
		NewWidget: func(_ context.Context, _ Settings, ready func(WidgetInstance)) {
			ready(first)
			ready(second)
		},
	}))

	ctx := context.Background()
	paneID, err := d.AddPane(ctx, PaneConfig{Width: 1})
	require.NoError(t, err)
	widgetID, err := d.AddWidget(ctx, paneID, WidgetConfig{Type: "twice"})
	require.NoError(t, err)
	settle(t, d)

	var buf bytes.Buffer
	require.NoError(t, d.RenderWidget(ctx, widgetID, &buf))
	assert.Equal(t, "<span>first</span>", buf.String())

	require.NoError(t, d.RemoveWidget(ctx, widgetID))
	assert.Equal(t, 1, first.disposed)
	assert.Equal(t, 0, second.disposed)
}
