package freeboard

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Datasource is a named live instance of a datasource plugin. Its state is
// owned by the dashboard event loop.
type Datasource struct {
	dashboard *Dashboard

	name     string
	typeName string
	settings Settings

	instance DatasourceInstance
	cancel   context.CancelFunc

	latestData  any
	lastUpdated time.Time
	lastError   string

	generation uint64
	disposed   bool
}

// DatasourceState is a read-only snapshot of a datasource.
type DatasourceState struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Settings    Settings  `json:"settings"`
	LatestData  any       `json:"latest_data,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Live        bool      `json:"live"`
}

func newDatasource(d *Dashboard, name string, settings Settings) *Datasource {
	if settings == nil {
		settings = Settings{}
	}
	return &Datasource{dashboard: d, name: name, settings: settings.Clone()}
}

func (ds *Datasource) log() logrus.FieldLogger {
	return ds.dashboard.logger.WithFields(logrus.Fields{
		"datasource": ds.name,
		"type":       ds.typeName,
	})
}

// setType disposes the live instance and builds a new one of typeName. The
// instance may become ready after this returns; ready calls from an older
// generation are discarded.
func (ds *Datasource) setType(typeName string) {
	d := ds.dashboard
	ds.disposeInstance()
	ds.generation++
	ds.disposed = false
	gen := ds.generation
	ds.typeName = typeName

	desc, ok := d.registry.DatasourcePlugin(typeName)
	if !ok || desc.NewDatasource == nil {
		ds.log().Warn("unknown datasource type")
		d.record(EventPluginMissing, map[string]any{"kind": string(KindDatasource), "type": typeName})
		return
	}
	ds.settings = ApplyDefaults(desc, ds.settings)

	d.instantiate(desc.ExternalScripts, func() {
		if ds.generation != gen {
			return
		}
		ctx, cancel := context.WithCancel(d.ctx)
		ds.cancel = cancel
		ready := func(inst DatasourceInstance) {
			d.loop.Post(func() { ds.ready(gen, inst, cancel) })
		}
		update := func(data any) {
			d.loop.Post(func() { d.processDatasourceUpdate(ds, gen, data) })
		}
		settings := ds.instanceSettings()
		d.guard(ds.log(), "factory", typeName, func() {
			desc.NewDatasource(ctx, settings, ready, update)
		})
	})
}

func (ds *Datasource) ready(gen uint64, inst DatasourceInstance, cancel context.CancelFunc) {
	if inst == nil {
		return
	}
	if gen != ds.generation || ds.disposed {
		disposeDatasourceInstance(ds.dashboard, ds.log(), ds.typeName, inst)
		cancel()
		return
	}
	if ds.instance != nil {
		// Only the first ready of a generation counts.
		ds.log().Warn("datasource ready called more than once")
		return
	}
	ds.instance = inst
	ds.dashboard.guard(ds.log(), "update_now", ds.typeName, inst.UpdateNow)
}

// setSettings replaces the settings wholesale. A "name" entry renames the
// datasource and is not kept in the settings. The live instance is notified
// and never recreated.
func (ds *Datasource) setSettings(settings Settings) {
	settings = settings.Clone()
	if raw, ok := settings[nameSetting.Name]; ok {
		if name, ok := raw.(string); ok && name != "" {
			ds.rename(name)
		}
		delete(settings, nameSetting.Name)
	}
	if desc, ok := ds.dashboard.registry.DatasourcePlugin(ds.typeName); ok {
		settings = ApplyDefaults(desc, settings)
		delete(settings, nameSetting.Name)
	}
	ds.settings = settings
	if handler, ok := ds.instance.(SettingsChangedHandler); ok {
		next := ds.instanceSettings()
		ds.dashboard.guard(ds.log(), "settings_changed", ds.typeName, func() {
			handler.OnSettingsChanged(next)
		})
	}
}

// rename moves the datasource to name. Data stored under the old name is
// dropped so expressions referencing it see no value.
func (ds *Datasource) rename(name string) {
	if name == ds.name {
		return
	}
	delete(ds.dashboard.datasourceData, ds.name)
	ds.name = name
}

func (ds *Datasource) updateNow() {
	if ds.instance == nil {
		return
	}
	ds.dashboard.guard(ds.log(), "update_now", ds.typeName, ds.instance.UpdateNow)
}

// dispose releases the instance. Calling it again is a no-op.
func (ds *Datasource) dispose() {
	if ds.disposed {
		return
	}
	ds.disposeInstance()
	ds.generation++
	ds.disposed = true
}

func (ds *Datasource) disposeInstance() {
	inst := ds.instance
	cancel := ds.cancel
	ds.instance = nil
	ds.cancel = nil
	if inst != nil {
		disposeDatasourceInstance(ds.dashboard, ds.log(), ds.typeName, inst)
	}
	if cancel != nil {
		cancel()
	}
}

func disposeDatasourceInstance(d *Dashboard, log logrus.FieldLogger, typeName string, inst DatasourceInstance) {
	if disposer, ok := inst.(Disposer); ok {
		d.guard(log, "dispose", typeName, disposer.OnDispose)
	}
}

func (ds *Datasource) instanceSettings() Settings {
	out := ds.settings.Clone()
	delete(out, nameSetting.Name)
	return out
}

func (ds *Datasource) config() DatasourceConfig {
	return DatasourceConfig{Name: ds.name, Type: ds.typeName, Settings: ds.instanceSettings()}
}

func (ds *Datasource) state() DatasourceState {
	return DatasourceState{
		Name:        ds.name,
		Type:        ds.typeName,
		Settings:    ds.instanceSettings(),
		LatestData:  ds.latestData,
		LastUpdated: ds.lastUpdated,
		LastError:   ds.lastError,
		Live:        ds.instance != nil,
	}
}
