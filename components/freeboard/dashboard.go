package freeboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// DocumentVersion is written by Serialize.
const DocumentVersion = 1

const defaultColumns = 3

var (
	// ErrDuplicateDatasource is returned when a datasource name is already taken.
	ErrDuplicateDatasource = errors.New("freeboard: datasource name already exists")
	// ErrDatasourceNotFound is returned for unknown datasource names.
	ErrDatasourceNotFound = errors.New("freeboard: datasource not found")
	// ErrPaneNotFound is returned for unknown pane ids.
	ErrPaneNotFound = errors.New("freeboard: pane not found")
	// ErrWidgetNotFound is returned for unknown widget ids.
	ErrWidgetNotFound = errors.New("freeboard: widget not found")
	// ErrUnknownPluginType is returned when an edit names an unregistered type.
	ErrUnknownPluginType = errors.New("freeboard: unknown plugin type")
	// ErrMissingName is returned when a datasource has no name.
	ErrMissingName = errors.New("freeboard: datasource name is required")
	// ErrNotRenderable is returned when a widget instance cannot render.
	ErrNotRenderable = errors.New("freeboard: widget does not render")
)

// Options configures the dashboard.
type Options struct {
	Registry     PluginRegistry
	Evaluator    *Evaluator
	Loader       ResourceLoader
	PluginLoader PluginSourceLoader
	Validator    SettingsValidator
	RefreshHook  RefreshHook
	Telemetry    Telemetry
	Logger       logrus.FieldLogger
	// Context parents every instance context. Cancelling it cancels all instances.
	Context context.Context
	// Columns is the grid width used to order panes on load.
	Columns int
	Now     func() time.Time
}

// Dashboard is the aggregate root: panes of widgets, uniquely named
// datasources, plugin sources and global metadata. Every mutation runs on
// the dashboard event loop.
//
// Methods block until the loop has applied them and must not be called from
// plugin callbacks, which already run on the loop. Datasource updates are
// applied asynchronously; Wait blocks until the queue drains.
type Dashboard struct {
	registry     PluginRegistry
	evaluator    *Evaluator
	loader       ResourceLoader
	pluginLoader PluginSourceLoader
	validator    SettingsValidator
	refresh      RefreshHook
	telemetry    Telemetry
	logger       logrus.FieldLogger
	ctx          context.Context
	now          func() time.Time
	loop         *EventLoop

	version        int
	headerImage    string
	allowEdit      bool
	columns        int
	plugins        []string
	panes          []*Pane
	datasources    []*Datasource
	datasourceData map[string]any
}

// NewDashboard builds an empty dashboard.
func NewDashboard(opts Options) *Dashboard {
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	evaluator := opts.Evaluator
	if evaluator == nil {
		evaluator = NewEvaluator()
	}
	loader := opts.Loader
	if loader == nil {
		loader = NewCachingLoader(nil)
	}
	pluginLoader := opts.PluginLoader
	if pluginLoader == nil {
		if reg, ok := registry.(*Registry); ok {
			pluginLoader = NewManifestSourceLoader(reg, loader)
		} else {
			pluginLoader = noopPluginSourceLoader{}
		}
	}
	validator := opts.Validator
	if validator == nil {
		validator = NewSchemaValidator()
	}
	refresh := opts.RefreshHook
	if refresh == nil {
		refresh = noopRefreshHook{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger().WithField("component", "freeboard")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	columns := opts.Columns
	if columns <= 0 {
		columns = defaultColumns
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	d := &Dashboard{
		registry:       registry,
		evaluator:      evaluator,
		loader:         loader,
		pluginLoader:   pluginLoader,
		validator:      validator,
		refresh:        refresh,
		telemetry:      normalizeTelemetry(opts.Telemetry),
		logger:         logger,
		ctx:            ctx,
		now:            now,
		version:        DocumentVersion,
		allowEdit:      true,
		columns:        columns,
		datasourceData: map[string]any{},
	}
	d.loop = NewEventLoop(ctx, func(r any) {
		logger.WithField("panic", r).Error("dashboard task panicked")
	})
	return d
}

// Registry returns the plugin registry backing the dashboard.
func (d *Dashboard) Registry() PluginRegistry { return d.registry }

// Evaluator returns the expression evaluator.
func (d *Dashboard) Evaluator() *Evaluator { return d.evaluator }

// Wait blocks until queued events and pending instantiations have drained.
func (d *Dashboard) Wait(ctx context.Context) error {
	return d.loop.Wait(ctx)
}

// AddDatasource validates cfg and creates a live datasource. The name comes
// from cfg.Name or, when empty, the "name" setting.
func (d *Dashboard) AddDatasource(ctx context.Context, cfg DatasourceConfig) error {
	var err error
	d.loop.Do(func() { err = d.addDatasource(cfg, true) })
	return err
}

func (d *Dashboard) addDatasource(cfg DatasourceConfig, validate bool) error {
	name := cfg.Name
	if name == "" {
		name, _ = cfg.Settings[nameSetting.Name].(string)
	}
	if name == "" {
		return ErrMissingName
	}
	if d.findDatasource(name) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateDatasource, name)
	}
	if validate {
		if err := d.validateDatasource(cfg.Type, name, cfg.Settings); err != nil {
			return err
		}
	}
	settings := cfg.Settings.Clone()
	delete(settings, nameSetting.Name)
	ds := newDatasource(d, name, settings)
	d.datasources = append(d.datasources, ds)
	ds.setType(cfg.Type)
	return nil
}

// UpdateDatasource applies an edit to the datasource currently called name.
// A "name" setting renames it. The instance is recreated only when the type
// changes; otherwise it receives the new settings.
func (d *Dashboard) UpdateDatasource(ctx context.Context, name string, cfg DatasourceConfig) error {
	var err error
	d.loop.Do(func() { err = d.updateDatasource(name, cfg) })
	return err
}

func (d *Dashboard) updateDatasource(name string, cfg DatasourceConfig) error {
	ds := d.findDatasource(name)
	if ds == nil {
		return fmt.Errorf("%w: %s", ErrDatasourceNotFound, name)
	}
	typeName := cfg.Type
	if typeName == "" {
		typeName = ds.typeName
	}
	settings := cfg.Settings.Clone()
	newName := cfg.Name
	if n, ok := settings[nameSetting.Name].(string); ok && n != "" {
		newName = n
	}
	if newName == "" {
		newName = ds.name
	}
	if err := d.validateDatasource(typeName, newName, settings); err != nil {
		return err
	}
	if newName != ds.name && d.findDatasource(newName) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateDatasource, newName)
	}
	settings[nameSetting.Name] = newName
	ds.setSettings(settings)
	if typeName != ds.typeName {
		ds.setType(typeName)
	}
	return nil
}

// RemoveDatasource disposes the datasource and drops its latest data.
func (d *Dashboard) RemoveDatasource(ctx context.Context, name string) error {
	var err error
	d.loop.Do(func() {
		for i, ds := range d.datasources {
			if ds.name == name {
				ds.dispose()
				delete(d.datasourceData, name)
				d.datasources = append(d.datasources[:i], d.datasources[i+1:]...)
				return
			}
		}
		err = fmt.Errorf("%w: %s", ErrDatasourceNotFound, name)
	})
	return err
}

// UpdateDatasourceNow asks the datasource instance to refresh.
func (d *Dashboard) UpdateDatasourceNow(ctx context.Context, name string) error {
	var err error
	d.loop.Do(func() {
		ds := d.findDatasource(name)
		if ds == nil {
			err = fmt.Errorf("%w: %s", ErrDatasourceNotFound, name)
			return
		}
		ds.updateNow()
	})
	return err
}

// Datasource returns a snapshot of the named datasource.
func (d *Dashboard) Datasource(name string) (DatasourceState, bool) {
	var (
		state DatasourceState
		found bool
	)
	d.loop.Do(func() {
		if ds := d.findDatasource(name); ds != nil {
			state, found = ds.state(), true
		}
	})
	return state, found
}

// Datasources returns snapshots of every datasource in creation order.
func (d *Dashboard) Datasources() []DatasourceState {
	var out []DatasourceState
	d.loop.Do(func() {
		out = make([]DatasourceState, 0, len(d.datasources))
		for _, ds := range d.datasources {
			out = append(out, ds.state())
		}
	})
	return out
}

// DatasourceData returns the latest value of every datasource keyed by name.
func (d *Dashboard) DatasourceData() map[string]any {
	var out map[string]any
	d.loop.Do(func() {
		out = make(map[string]any, len(d.datasourceData))
		for k, v := range d.datasourceData {
			out[k] = v
		}
	})
	return out
}

// DataRepresentation evaluates a property path such as `.sensor.temp`
// against the latest data of the named datasource.
func (d *Dashboard) DataRepresentation(name, path string) (any, error) {
	var (
		data  any
		found bool
	)
	d.loop.Do(func() {
		if ds := d.findDatasource(name); ds != nil {
			data, found = ds.latestData, true
		}
	})
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrDatasourceNotFound, name)
	}
	return d.evaluator.Query(data, path)
}

// AddPane appends a pane with the widgets of cfg and returns its id.
func (d *Dashboard) AddPane(ctx context.Context, cfg PaneConfig) (string, error) {
	var (
		id  string
		err error
	)
	d.loop.Do(func() {
		for _, wc := range cfg.Widgets {
			if err = d.validateWidget(wc.Type, wc.Settings); err != nil {
				return
			}
		}
		id = d.addPane(cfg).id
	})
	return id, err
}

func (d *Dashboard) addPane(cfg PaneConfig) *Pane {
	pane := newPane(d, cfg)
	d.panes = append(d.panes, pane)
	for _, wc := range cfg.Widgets {
		d.addWidget(pane, wc)
	}
	return pane
}

// UpdatePane changes the pane title and width. Widgets are notified of the
// size change.
func (d *Dashboard) UpdatePane(ctx context.Context, paneID string, title string, width int) error {
	var err error
	d.loop.Do(func() {
		pane := d.findPane(paneID)
		if pane == nil {
			err = fmt.Errorf("%w: %s", ErrPaneNotFound, paneID)
			return
		}
		pane.title = title
		if width > 0 && width != pane.width {
			pane.width = width
			pane.sizeChanged()
		}
	})
	return err
}

// RemovePane disposes the pane and its widgets.
func (d *Dashboard) RemovePane(ctx context.Context, paneID string) error {
	var err error
	d.loop.Do(func() {
		for i, pane := range d.panes {
			if pane.id == paneID {
				pane.dispose()
				d.panes = append(d.panes[:i], d.panes[i+1:]...)
				return
			}
		}
		err = fmt.Errorf("%w: %s", ErrPaneNotFound, paneID)
	})
	return err
}

// Panes returns snapshots of every pane in order.
func (d *Dashboard) Panes() []PaneState {
	var out []PaneState
	d.loop.Do(func() {
		out = make([]PaneState, 0, len(d.panes))
		for _, pane := range d.panes {
			out = append(out, pane.state())
		}
	})
	return out
}

// AddWidget validates cfg, appends a widget to the pane and returns its id.
func (d *Dashboard) AddWidget(ctx context.Context, paneID string, cfg WidgetConfig) (string, error) {
	var (
		id  string
		err error
	)
	d.loop.Do(func() {
		pane := d.findPane(paneID)
		if pane == nil {
			err = fmt.Errorf("%w: %s", ErrPaneNotFound, paneID)
			return
		}
		if err = d.validateWidget(cfg.Type, cfg.Settings); err != nil {
			return
		}
		id = d.addWidget(pane, cfg).id
	})
	return id, err
}

func (d *Dashboard) addWidget(pane *Pane, cfg WidgetConfig) *Widget {
	w := newWidget(pane, cfg.Title, cfg.Settings)
	pane.addWidget(w)
	w.setType(cfg.Type)
	return w
}

// UpdateWidget applies an edit. Settings are replaced wholesale; the instance
// is recreated only when the type changes.
func (d *Dashboard) UpdateWidget(ctx context.Context, widgetID string, cfg WidgetConfig) error {
	var err error
	d.loop.Do(func() {
		w := d.findWidget(widgetID)
		if w == nil {
			err = fmt.Errorf("%w: %s", ErrWidgetNotFound, widgetID)
			return
		}
		typeName := cfg.Type
		if typeName == "" {
			typeName = w.typeName
		}
		if err = d.validateWidget(typeName, cfg.Settings); err != nil {
			return
		}
		w.title = cfg.Title
		if typeName != w.typeName {
			w.settings = cfg.Settings.Clone()
			w.setType(typeName)
			return
		}
		w.setSettings(cfg.Settings)
	})
	return err
}

// RemoveWidget disposes the widget and removes it from its pane.
func (d *Dashboard) RemoveWidget(ctx context.Context, widgetID string) error {
	var err error
	d.loop.Do(func() {
		w := d.findWidget(widgetID)
		if w == nil {
			err = fmt.Errorf("%w: %s", ErrWidgetNotFound, widgetID)
			return
		}
		w.pane.removeWidget(w)
	})
	return err
}

// MoveWidget moves a widget one slot up (delta < 0) or down (delta > 0)
// within its pane. It reports whether the widget moved.
func (d *Dashboard) MoveWidget(ctx context.Context, widgetID string, delta int) (bool, error) {
	var (
		moved bool
		err   error
	)
	d.loop.Do(func() {
		w := d.findWidget(widgetID)
		if w == nil {
			err = fmt.Errorf("%w: %s", ErrWidgetNotFound, widgetID)
			return
		}
		switch {
		case delta < 0:
			moved = w.pane.moveWidgetUp(w)
		case delta > 0:
			moved = w.pane.moveWidgetDown(w)
		}
	})
	return moved, err
}

// Widget returns a snapshot of the widget.
func (d *Dashboard) Widget(widgetID string) (WidgetState, bool) {
	var (
		state WidgetState
		found bool
	)
	d.loop.Do(func() {
		if w := d.findWidget(widgetID); w != nil {
			state, found = w.state(), true
		}
	})
	return state, found
}

// RenderWidget writes the widget markup.
func (d *Dashboard) RenderWidget(ctx context.Context, widgetID string, out io.Writer) error {
	var err error
	d.loop.Do(func() {
		w := d.findWidget(widgetID)
		if w == nil {
			err = fmt.Errorf("%w: %s", ErrWidgetNotFound, widgetID)
			return
		}
		err = w.render(out)
	})
	return err
}

// AddPluginSource records a plugin source URL and loads it.
func (d *Dashboard) AddPluginSource(ctx context.Context, url string) error {
	if err := d.pluginLoader.LoadPluginSource(ctx, url); err != nil {
		return err
	}
	d.loop.Do(func() { d.plugins = appendUnique(d.plugins, url) })
	return nil
}

// Plugins returns the recorded plugin source URLs.
func (d *Dashboard) Plugins() []string {
	var out []string
	d.loop.Do(func() { out = append([]string(nil), d.plugins...) })
	return out
}

// SetHeaderImage sets the header image URL.
func (d *Dashboard) SetHeaderImage(url string) {
	d.loop.Do(func() { d.headerImage = url })
}

// SetAllowEdit toggles edit permission.
func (d *Dashboard) SetAllowEdit(allow bool) {
	d.loop.Do(func() { d.allowEdit = allow })
}

// AllowEdit reports whether the dashboard can be edited.
func (d *Dashboard) AllowEdit() bool {
	var allow bool
	d.loop.Do(func() { allow = d.allowEdit })
	return allow
}

// Clear disposes every datasource and pane, then empties the dashboard.
func (d *Dashboard) Clear(ctx context.Context) {
	d.loop.Do(d.clear)
}

// Close stops the event loop, then disposes every datasource and pane. It also
// releases instances after Options.Context was cancelled.
func (d *Dashboard) Close() {
	d.loop.Close()
	d.clear()
}

func (d *Dashboard) clear() {
	for _, ds := range d.datasources {
		ds.dispose()
	}
	for _, pane := range d.panes {
		pane.dispose()
	}
	d.datasources = nil
	d.panes = nil
	d.plugins = nil
	d.headerImage = ""
	d.allowEdit = true
	d.datasourceData = map[string]any{}
}

// processDatasourceUpdate stores data under the datasource's current name and
// re-evaluates every dependent widget setting.
func (d *Dashboard) processDatasourceUpdate(ds *Datasource, gen uint64, data any) {
	if ds.generation != gen || ds.disposed {
		return
	}
	name := ds.name
	ds.latestData = data
	ds.lastUpdated = d.now()
	ds.lastError = ""
	d.datasourceData[name] = data
	d.record(EventDatasourceUpdate, map[string]any{"type": ds.typeName, "datasource": name})
	for _, pane := range d.panes {
		for _, w := range pane.widgets {
			w.processDatasourceUpdate(name)
		}
	}
}

// instantiate runs fn on the loop once every script is loaded. Without
// scripts fn runs immediately. Script failures are logged and fn still runs.
func (d *Dashboard) instantiate(scripts []string, fn func()) {
	if len(scripts) == 0 {
		fn()
		return
	}
	release := d.loop.Hold()
	go func() {
		defer release()
		for _, url := range scripts {
			data, err := d.loader.Fetch(d.ctx, url)
			if err == nil {
				err = d.evaluator.LoadScript(url, data)
			}
			if err != nil {
				d.logger.WithField("script", url).WithError(err).Warn("external script failed to load")
				d.record(EventResourceError, map[string]any{"url": url})
			}
		}
		d.loop.Post(fn)
	}()
}

// guard runs a plugin hook, turning panics into logged errors so one plugin
// cannot stop propagation to the others.
func (d *Dashboard) guard(log logrus.FieldLogger, phase, typeName string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{"phase": phase, "panic": r}).Warn("plugin hook failed")
			d.record(EventPluginError, map[string]any{"type": typeName, "phase": phase})
		}
	}()
	fn()
}

func (d *Dashboard) record(event string, payload map[string]any) {
	d.telemetry.Record(d.ctx, event, payload)
}

func (d *Dashboard) notify(event WidgetEvent) {
	if err := d.refresh.WidgetUpdated(d.ctx, event); err != nil {
		d.logger.WithField("widget", event.WidgetID).WithError(err).Debug("refresh hook failed")
	}
}

func (d *Dashboard) validateDatasource(typeName, name string, settings Settings) error {
	desc, ok := d.registry.DatasourcePlugin(typeName)
	if !ok {
		return fmt.Errorf("%w: datasource %s", ErrUnknownPluginType, typeName)
	}
	check := ApplyDefaults(desc, settings)
	check[nameSetting.Name] = name
	return d.validator.Validate(desc, check)
}

func (d *Dashboard) validateWidget(typeName string, settings Settings) error {
	desc, ok := d.registry.WidgetPlugin(typeName)
	if !ok {
		return fmt.Errorf("%w: widget %s", ErrUnknownPluginType, typeName)
	}
	return d.validator.Validate(desc, ApplyDefaults(desc, settings))
}

func (d *Dashboard) findDatasource(name string) *Datasource {
	for _, ds := range d.datasources {
		if ds.name == name {
			return ds
		}
	}
	return nil
}

func (d *Dashboard) findPane(id string) *Pane {
	for _, pane := range d.panes {
		if pane.id == id {
			return pane
		}
	}
	return nil
}

func (d *Dashboard) findWidget(id string) *Widget {
	for _, pane := range d.panes {
		for _, w := range pane.widgets {
			if w.id == id {
				return w
			}
		}
	}
	return nil
}

type noopRefreshHook struct{}

func (noopRefreshHook) WidgetUpdated(context.Context, WidgetEvent) error { return nil }
