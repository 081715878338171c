package freeboard

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Widget is a live instance of a widget plugin hosted by a pane.
type Widget struct {
	id   string
	pane *Pane

	title    string
	typeName string
	settings Settings

	instance WidgetInstance
	cancel   context.CancelFunc
	fillSize bool
	height   int

	calculatedSettingScripts       map[string]*Expression
	datasourceRefreshNotifications map[string][]string

	generation uint64
	disposed   bool
}

// WidgetState is a read-only snapshot of a widget.
type WidgetState struct {
	ID           string              `json:"id"`
	PaneID       string              `json:"pane_id"`
	Title        string              `json:"title,omitempty"`
	Type         string              `json:"type"`
	Settings     Settings            `json:"settings"`
	FillSize     bool                `json:"fill_size"`
	Height       int                 `json:"height"`
	Dependencies map[string][]string `json:"dependencies,omitempty"`
	Live         bool                `json:"live"`
}

func newWidget(pane *Pane, title string, settings Settings) *Widget {
	if settings == nil {
		settings = Settings{}
	}
	return &Widget{
		id:                             uuid.NewString(),
		pane:                           pane,
		title:                          title,
		settings:                       settings.Clone(),
		height:                         1,
		calculatedSettingScripts:       map[string]*Expression{},
		datasourceRefreshNotifications: map[string][]string{},
	}
}

// ID returns the widget identity.
func (w *Widget) ID() string { return w.id }

func (w *Widget) dashboard() *Dashboard { return w.pane.dashboard }

func (w *Widget) log() logrus.FieldLogger {
	return w.dashboard().logger.WithFields(logrus.Fields{
		"widget": w.id,
		"type":   w.typeName,
	})
}

// setType disposes the live instance and asynchronously creates one of
// typeName. Once ready the calculated settings are evaluated against the
// current data.
func (w *Widget) setType(typeName string) {
	d := w.dashboard()
	w.disposeInstance()
	w.generation++
	w.disposed = false
	gen := w.generation
	w.typeName = typeName

	desc, ok := d.registry.WidgetPlugin(typeName)
	if !ok || desc.NewWidget == nil {
		w.log().Warn("unknown widget type")
		d.record(EventPluginMissing, map[string]any{"kind": string(KindWidget), "type": typeName})
		return
	}
	w.settings = ApplyDefaults(desc, w.settings)

	d.instantiate(desc.ExternalScripts, func() {
		if w.generation != gen {
			return
		}
		ctx, cancel := context.WithCancel(d.ctx)
		w.cancel = cancel
		ready := func(inst WidgetInstance) {
			d.loop.Post(func() { w.ready(gen, desc, inst, cancel) })
		}
		settings := w.settings.Clone()
		d.guard(w.log(), "factory", typeName, func() {
			desc.NewWidget(ctx, settings, ready)
		})
	})
}

func (w *Widget) ready(gen uint64, desc PluginDescriptor, inst WidgetInstance, cancel context.CancelFunc) {
	if inst == nil {
		return
	}
	if gen != w.generation || w.disposed {
		disposeWidgetInstance(w.dashboard(), w.log(), w.typeName, inst)
		cancel()
		return
	}
	if w.instance != nil {
		// Only the first ready of a generation counts.
		w.log().Warn("widget ready called more than once")
		return
	}
	w.fillSize = desc.FillSize
	w.instance = inst
	w.updateCalculatedSettings()
	w.refreshHeight()
}

// setSettings replaces the settings wholesale, notifies the instance and
// recompiles every calculated setting.
func (w *Widget) setSettings(settings Settings) {
	if settings == nil {
		settings = Settings{}
	}
	w.settings = settings.Clone()
	if handler, ok := w.instance.(SettingsChangedHandler); ok {
		next := w.settings.Clone()
		w.dashboard().guard(w.log(), "settings_changed", w.typeName, func() {
			handler.OnSettingsChanged(next)
		})
	}
	w.updateCalculatedSettings()
	w.refreshHeight()
}

// updateCalculatedSettings rebuilds the compiled expressions and the
// datasource to setting index from scratch, then evaluates each setting once.
func (w *Widget) updateCalculatedSettings() {
	w.calculatedSettingScripts = map[string]*Expression{}
	w.datasourceRefreshNotifications = map[string][]string{}

	desc, ok := w.dashboard().registry.WidgetPlugin(w.typeName)
	if !ok {
		return
	}
	for _, def := range desc.Settings {
		if def.Type != SettingCalculated {
			continue
		}
		raw, ok := w.settings[def.Name]
		if !ok || raw == nil {
			continue
		}
		expr, err := w.dashboard().evaluator.Compile(raw)
		if err != nil {
			w.log().WithField("setting", def.Name).WithError(err).Debug("calculated setting skipped")
			continue
		}
		w.calculatedSettingScripts[def.Name] = expr
		for _, dep := range expr.Dependencies {
			w.datasourceRefreshNotifications[dep] = appendUnique(w.datasourceRefreshNotifications[dep], def.Name)
		}
		w.processCalculatedSetting(def.Name)
	}
}

// processDatasourceUpdate re-evaluates every setting that references name.
func (w *Widget) processDatasourceUpdate(name string) {
	for _, setting := range w.datasourceRefreshNotifications[name] {
		w.processCalculatedSetting(setting)
	}
}

func (w *Widget) processCalculatedSetting(setting string) {
	expr, ok := w.calculatedSettingScripts[setting]
	if !ok {
		return
	}
	d := w.dashboard()
	log := w.log().WithField("setting", setting)
	value, defined, err := expr.Evaluate(d.datasourceData)
	if err != nil {
		log.WithError(err).Debug("calculated setting evaluation failed")
		d.record(EventExpressionError, map[string]any{"type": w.typeName, "widget": w.id, "setting": setting})
		return
	}
	if !defined {
		return
	}
	if handler, ok := w.instance.(CalculatedValueHandler); ok {
		d.guard(log, "value_changed", w.typeName, func() {
			handler.OnCalculatedValueChanged(setting, value)
		})
	}
	d.record(EventWidgetValue, map[string]any{"type": w.typeName, "widget": w.id, "setting": setting})
	d.notify(WidgetEvent{PaneID: w.pane.id, WidgetID: w.id, Setting: setting, Value: value, Reason: "value"})
}

func (w *Widget) refreshHeight() {
	height := 1
	if reporter, ok := w.instance.(HeightReporter); ok {
		w.dashboard().guard(w.log(), "height", w.typeName, func() {
			if h := reporter.GetHeight(); h > 0 {
				height = h
			}
		})
	}
	w.height = height
}

// render writes the instance markup. It never evaluates settings; values
// reach the instance on ready, on settings edits and on datasource updates.
func (w *Widget) render(out io.Writer) error {
	renderer, ok := w.instance.(WidgetRenderer)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRenderable, w.typeName)
	}
	var err error
	w.dashboard().guard(w.log(), "render", w.typeName, func() {
		err = renderer.Render(out)
	})
	return err
}

func (w *Widget) sizeChanged() {
	if handler, ok := w.instance.(SizeChangedHandler); ok {
		w.dashboard().guard(w.log(), "size_changed", w.typeName, handler.OnSizeChanged)
	}
}

// dispose releases the instance. Calling it again is a no-op.
func (w *Widget) dispose() {
	if w.disposed {
		return
	}
	w.disposeInstance()
	w.generation++
	w.disposed = true
}

func (w *Widget) disposeInstance() {
	inst := w.instance
	cancel := w.cancel
	w.instance = nil
	w.cancel = nil
	if inst != nil {
		disposeWidgetInstance(w.dashboard(), w.log(), w.typeName, inst)
	}
	if cancel != nil {
		cancel()
	}
}

func disposeWidgetInstance(d *Dashboard, log logrus.FieldLogger, typeName string, inst WidgetInstance) {
	if disposer, ok := inst.(Disposer); ok {
		d.guard(log, "dispose", typeName, disposer.OnDispose)
	}
}

func (w *Widget) config() WidgetConfig {
	return WidgetConfig{Title: w.title, Type: w.typeName, Settings: w.settings.Clone()}
}

func (w *Widget) state() WidgetState {
	deps := make(map[string][]string, len(w.datasourceRefreshNotifications))
	for name, settings := range w.datasourceRefreshNotifications {
		deps[name] = append([]string(nil), settings...)
	}
	return WidgetState{
		ID:           w.id,
		PaneID:       w.pane.id,
		Title:        w.title,
		Type:         w.typeName,
		Settings:     w.settings.Clone(),
		FillSize:     w.fillSize,
		Height:       w.height,
		Dependencies: deps,
		Live:         w.instance != nil,
	}
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
