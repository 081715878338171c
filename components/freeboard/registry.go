package freeboard

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// PluginHook lets packages register plugins during init().
type PluginHook func(reg *Registry) error

var (
	globalHookMu sync.Mutex
	globalHooks  []PluginHook
)

// RegisterPluginHook registers a hook executed against new registries.
func RegisterPluginHook(h PluginHook) {
	globalHookMu.Lock()
	defer globalHookMu.Unlock()
	globalHooks = append(globalHooks, h)
}

var (
	errMissingTypeName = errors.New("freeboard: plugin type_name is required")
	errMissingFactory  = errors.New("freeboard: plugin factory is required")
)

// nameSetting is injected at the front of every datasource settings list;
// datasources are the only plugins addressed by name.
var nameSetting = SettingDefinition{
	Name:        "name",
	DisplayName: "Name",
	Type:        SettingText,
	Required:    true,
}

// Registry implements PluginRegistry. Registration is append-only: the last
// registration of a type name wins.
type Registry struct {
	mu          sync.RWMutex
	datasources map[string]PluginDescriptor
	widgets     map[string]PluginDescriptor
	sources     []string
	version     uint64
	watchers    map[int]func(PluginKind)
	nextWatcher int

	datasourceFactories map[string]DatasourceFactory
	widgetFactories     map[string]WidgetFactory
}

// NewRegistry builds an empty registry and applies global hooks.
func NewRegistry() *Registry {
	reg := &Registry{
		datasources:         map[string]PluginDescriptor{},
		widgets:             map[string]PluginDescriptor{},
		watchers:            map[int]func(PluginKind){},
		datasourceFactories: map[string]DatasourceFactory{},
		widgetFactories:     map[string]WidgetFactory{},
	}
	_ = reg.ApplyHooks()
	return reg
}

// ApplyHooks executes registered plugin hooks.
func (r *Registry) ApplyHooks() error {
	globalHookMu.Lock()
	hooks := append([]PluginHook(nil), globalHooks...)
	globalHookMu.Unlock()
	for _, hook := range hooks {
		if err := hook(r); err != nil {
			return err
		}
	}
	return nil
}

// RegisterDatasourcePlugin stores a datasource descriptor and prepends the
// required name setting when it is not already declared.
func (r *Registry) RegisterDatasourcePlugin(desc PluginDescriptor) error {
	if desc.TypeName == "" {
		return errMissingTypeName
	}
	if desc.NewDatasource == nil {
		return fmt.Errorf("%w: datasource %s", errMissingFactory, desc.TypeName)
	}
	desc = normalizeDescriptor(desc)
	if _, ok := desc.Setting(nameSetting.Name); !ok {
		desc.Settings = append([]SettingDefinition{nameSetting}, desc.Settings...)
	}
	r.store(KindDatasource, desc)
	return nil
}

// RegisterWidgetPlugin stores a widget descriptor.
func (r *Registry) RegisterWidgetPlugin(desc PluginDescriptor) error {
	if desc.TypeName == "" {
		return errMissingTypeName
	}
	if desc.NewWidget == nil {
		return fmt.Errorf("%w: widget %s", errMissingFactory, desc.TypeName)
	}
	r.store(KindWidget, normalizeDescriptor(desc))
	return nil
}

func (r *Registry) store(kind PluginKind, desc PluginDescriptor) {
	r.mu.Lock()
	if kind == KindDatasource {
		r.datasources[desc.TypeName] = desc
	} else {
		r.widgets[desc.TypeName] = desc
	}
	r.addSourceLocked(desc.Source)
	r.version++
	watchers := make([]func(PluginKind), 0, len(r.watchers))
	for _, fn := range r.watchers {
		watchers = append(watchers, fn)
	}
	r.mu.Unlock()
	for _, fn := range watchers {
		fn(kind)
	}
}

func (r *Registry) addSourceLocked(source string) {
	if source == "" {
		return
	}
	for _, existing := range r.sources {
		if existing == source {
			return
		}
	}
	r.sources = append(r.sources, source)
}

// DatasourcePlugin fetches a datasource descriptor by type name.
func (r *Registry) DatasourcePlugin(typeName string) (PluginDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.datasources[typeName]
	return desc, ok
}

// WidgetPlugin fetches a widget descriptor by type name.
func (r *Registry) WidgetPlugin(typeName string) (PluginDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.widgets[typeName]
	return desc, ok
}

// DatasourceTypes lists registered datasource types sorted by name.
func (r *Registry) DatasourceTypes() []PluginType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return listTypes(r.datasources)
}

// WidgetTypes lists registered widget types sorted by name.
func (r *Registry) WidgetTypes() []PluginType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return listTypes(r.widgets)
}

// Types lists the registered types of one kind.
func (r *Registry) Types(kind PluginKind) []PluginType {
	if kind == KindDatasource {
		return r.DatasourceTypes()
	}
	return r.WidgetTypes()
}

// Sources returns the plugin source URLs recorded by registrations.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.sources...)
}

// Version increments on every registration. Observers holding a cached type
// list compare versions to know when to recompute it.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Watch calls fn after every registration until cancel is invoked.
func (r *Registry) Watch(fn func(PluginKind)) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextWatcher
	r.nextWatcher++
	r.watchers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers, id)
	}
}

// BindDatasourceFactory makes a datasource factory available to manifests
// under the given key.
func (r *Registry) BindDatasourceFactory(key string, factory DatasourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasourceFactories[key] = factory
}

// BindWidgetFactory makes a widget factory available to manifests.
func (r *Registry) BindWidgetFactory(key string, factory WidgetFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.widgetFactories[key] = factory
}

func (r *Registry) datasourceFactory(key string) (DatasourceFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.datasourceFactories[key]
	return f, ok
}

func (r *Registry) widgetFactory(key string) (WidgetFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.widgetFactories[key]
	return f, ok
}

func normalizeDescriptor(desc PluginDescriptor) PluginDescriptor {
	if desc.DisplayName == "" {
		desc.DisplayName = desc.TypeName
	}
	desc.Settings = append([]SettingDefinition(nil), desc.Settings...)
	desc.ExternalScripts = append([]string(nil), desc.ExternalScripts...)
	return desc
}

func listTypes(descs map[string]PluginDescriptor) []PluginType {
	out := make([]PluginType, 0, len(descs))
	for _, desc := range descs {
		out = append(out, PluginType{Name: desc.TypeName, DisplayName: desc.DisplayName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
