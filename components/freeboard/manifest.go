package freeboard

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	manifestVersionV1 = "1"
	// ManifestVersion exposes the current manifest format version for tooling.
	ManifestVersion = manifestVersionV1
)

// PluginManifestDocument models a YAML/JSON manifest declaring plugin types
// whose factories are bound in code.
type PluginManifestDocument struct {
	Version  string           `json:"version" yaml:"version"`
	Name     string           `json:"name,omitempty" yaml:"name,omitempty"`
	Homepage string           `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Plugins  []ManifestPlugin `json:"plugins" yaml:"plugins"`
	Source   string           `json:"-" yaml:"-"`
}

// ManifestPlugin describes a single plugin entry within a manifest.
type ManifestPlugin struct {
	Kind            PluginKind          `json:"kind" yaml:"kind"`
	TypeName        string              `json:"type_name" yaml:"type_name"`
	DisplayName     string              `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Description     string              `json:"description,omitempty" yaml:"description,omitempty"`
	Factory         string              `json:"factory" yaml:"factory"`
	ExternalScripts []string            `json:"external_scripts,omitempty" yaml:"external_scripts,omitempty"`
	FillSize        bool                `json:"fill_size,omitempty" yaml:"fill_size,omitempty"`
	Settings        []SettingDefinition `json:"settings,omitempty" yaml:"settings,omitempty"`
	Maintainers     []string            `json:"maintainers,omitempty" yaml:"maintainers,omitempty"`
	Tags            []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// LoadManifestFile reads a manifest from disk, registers it against the registry, and returns the document.
func (r *Registry) LoadManifestFile(path string) (*PluginManifestDocument, error) {
	doc, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	if err := r.LoadManifestDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadManifestDocument registers every plugin of a decoded manifest. Factory
// keys resolve against factories bound with BindDatasourceFactory/BindWidgetFactory.
func (r *Registry) LoadManifestDocument(doc *PluginManifestDocument) error {
	if doc == nil {
		return fmt.Errorf("freeboard: manifest document is nil")
	}
	for _, plugin := range doc.Plugins {
		desc := PluginDescriptor{
			TypeName:        plugin.TypeName,
			DisplayName:     plugin.DisplayName,
			Description:     plugin.Description,
			ExternalScripts: plugin.ExternalScripts,
			Settings:        plugin.Settings,
			FillSize:        plugin.FillSize,
			Source:          doc.Source,
		}
		var err error
		switch plugin.Kind {
		case KindDatasource:
			factory, ok := r.datasourceFactory(plugin.Factory)
			if !ok {
				return fmt.Errorf("freeboard: manifest %s: datasource factory %q not bound", doc.Source, plugin.Factory)
			}
			desc.NewDatasource = factory
			err = r.RegisterDatasourcePlugin(desc)
		case KindWidget:
			factory, ok := r.widgetFactory(plugin.Factory)
			if !ok {
				return fmt.Errorf("freeboard: manifest %s: widget factory %q not bound", doc.Source, plugin.Factory)
			}
			desc.NewWidget = factory
			err = r.RegisterWidgetPlugin(desc)
		}
		if err != nil {
			return fmt.Errorf("freeboard: register plugin %s from %s: %w", plugin.TypeName, doc.Source, err)
		}
	}
	return nil
}

// ReadManifest loads a manifest file from disk without registering it.
func ReadManifest(path string) (*PluginManifestDocument, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("freeboard: open manifest %s: %w", path, err)
	}
	defer f.Close()
	doc, err := DecodeManifest(f)
	if err != nil {
		return nil, fmt.Errorf("freeboard: decode manifest %s: %w", path, err)
	}
	doc.Source = path
	return doc, nil
}

// DecodeManifestBytes decodes an in-memory manifest and tags it with source.
func DecodeManifestBytes(source string, data []byte) (*PluginManifestDocument, error) {
	doc, err := DecodeManifest(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	doc.Source = source
	return doc, nil
}

// DecodeManifest reads a manifest from any reader.
func DecodeManifest(r io.Reader) (*PluginManifestDocument, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var doc PluginManifestDocument
	if err := decoder.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("freeboard: manifest is empty")
		}
		return nil, fmt.Errorf("freeboard: parse manifest: %w", err)
	}
	doc.applyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate ensures the manifest satisfies required fields.
func (doc *PluginManifestDocument) Validate() error {
	if doc.Version != manifestVersionV1 {
		return fmt.Errorf("freeboard: unsupported manifest version %q", doc.Version)
	}
	seen := make(map[string]struct{}, len(doc.Plugins))
	for idx, plugin := range doc.Plugins {
		if plugin.TypeName == "" {
			return fmt.Errorf("freeboard: manifest plugin at index %d is missing type_name", idx)
		}
		if plugin.Kind != KindDatasource && plugin.Kind != KindWidget {
			return fmt.Errorf("freeboard: manifest plugin %s has unknown kind %q", plugin.TypeName, plugin.Kind)
		}
		if plugin.Factory == "" {
			return fmt.Errorf("freeboard: manifest plugin %s missing factory", plugin.TypeName)
		}
		key := string(plugin.Kind) + ":" + plugin.TypeName
		if _, exists := seen[key]; exists {
			return fmt.Errorf("freeboard: manifest duplicates %s plugin %s", plugin.Kind, plugin.TypeName)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (doc *PluginManifestDocument) applyDefaults() {
	if doc.Version == "" {
		doc.Version = manifestVersionV1
	}
	for i := range doc.Plugins {
		if doc.Plugins[i].Factory == "" {
			doc.Plugins[i].Factory = doc.Plugins[i].TypeName
		}
	}
}
