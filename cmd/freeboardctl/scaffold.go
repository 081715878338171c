package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ettle/strcase"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-freeboard/components/freeboard"
)

type scaffoldCmd struct {
	Kind         string   `required:"" enum:"datasource,widget" help:"Plugin kind."`
	TypeName     string   `required:"" name:"type-name" help:"Type name recorded in documents (normalized to snake_case)."`
	Factory      string   `help:"Factory key bound in code (defaults to the type name)."`
	DisplayName  string   `name:"display-name" help:"Display name (derived from the type name when empty)."`
	Description  string   `help:"One-line description used in manifests."`
	ManifestPath string   `required:"" name:"manifest" type:"path" help:"Path to the manifest YAML file to update."`
	Setting      []string `help:"Setting definitions as name:type[:required] (repeatable)."`
	Script       []string `help:"External scripts loaded before instantiation (repeatable)."`
	FillSize     bool     `name:"fill-size" help:"Widget fills its pane."`
	Tag          []string `help:"Optional tags to include in the manifest."`
	Maintainer   []string `help:"Maintainers to record in the manifest."`
	Overwrite    bool     `help:"Replace an existing entry with the same kind and type name."`

	out io.Writer
}

func (cmd *scaffoldCmd) Run(_ context.Context, _ *globals) error {
	entry, err := cmd.entry()
	if err != nil {
		return err
	}
	manifestPath, err := filepath.Abs(cmd.ManifestPath)
	if err != nil {
		return fmt.Errorf("freeboardctl: resolve manifest path: %w", err)
	}
	doc, err := loadOrInitManifest(manifestPath)
	if err != nil {
		return err
	}

	replaced := false
	for idx, existing := range doc.Plugins {
		if existing.Kind != entry.Kind || existing.TypeName != entry.TypeName {
			continue
		}
		if !cmd.Overwrite {
			return fmt.Errorf("freeboardctl: manifest already defines %s %s (use --overwrite to replace)", entry.Kind, entry.TypeName)
		}
		doc.Plugins[idx] = entry
		replaced = true
		break
	}
	if !replaced {
		doc.Plugins = append(doc.Plugins, entry)
	}
	sort.SliceStable(doc.Plugins, func(i, j int) bool {
		if doc.Plugins[i].Kind != doc.Plugins[j].Kind {
			return doc.Plugins[i].Kind < doc.Plugins[j].Kind
		}
		return doc.Plugins[i].TypeName < doc.Plugins[j].TypeName
	})
	if err := doc.Validate(); err != nil {
		return err
	}
	if err := writeManifest(manifestPath, doc); err != nil {
		return err
	}

	out := cmd.out
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "✓ Added %s %s to %s (factory %s)\n", entry.Kind, entry.TypeName, manifestPath, entry.Factory)
	return nil
}

func (cmd *scaffoldCmd) entry() (freeboard.ManifestPlugin, error) {
	typeName := strcase.ToSnake(strings.TrimSpace(cmd.TypeName))
	if typeName == "" {
		return freeboard.ManifestPlugin{}, errors.New("freeboardctl: type name is required")
	}
	factory := cmd.Factory
	if factory == "" {
		factory = typeName
	}
	display := cmd.DisplayName
	if display == "" {
		display = displayName(typeName)
	}
	settings := make([]freeboard.SettingDefinition, 0, len(cmd.Setting))
	for _, raw := range cmd.Setting {
		def, err := parseSetting(raw)
		if err != nil {
			return freeboard.ManifestPlugin{}, err
		}
		settings = append(settings, def)
	}
	return freeboard.ManifestPlugin{
		Kind:            freeboard.PluginKind(cmd.Kind),
		TypeName:        typeName,
		DisplayName:     display,
		Description:     cmd.Description,
		Factory:         factory,
		ExternalScripts: cmd.Script,
		FillSize:        cmd.FillSize,
		Settings:        settings,
		Maintainers:     cmd.Maintainer,
		Tags:            cmd.Tag,
	}, nil
}

func parseSetting(raw string) (freeboard.SettingDefinition, error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return freeboard.SettingDefinition{}, fmt.Errorf("freeboardctl: setting %q must look like name:type[:required]", raw)
	}
	kind := freeboard.SettingType(strings.ToLower(parts[1]))
	switch kind {
	case freeboard.SettingText, freeboard.SettingNumber, freeboard.SettingBoolean,
		freeboard.SettingOptionType, freeboard.SettingArray, freeboard.SettingCalculated:
	default:
		return freeboard.SettingDefinition{}, fmt.Errorf("freeboardctl: setting %q has unknown type %q", parts[0], parts[1])
	}
	name := strcase.ToSnake(parts[0])
	def := freeboard.SettingDefinition{
		Name:        name,
		DisplayName: displayName(name),
		Type:        kind,
	}
	if len(parts) == 3 {
		if parts[2] != "required" {
			return freeboard.SettingDefinition{}, fmt.Errorf("freeboardctl: setting %q has unknown flag %q", parts[0], parts[2])
		}
		def.Required = true
	}
	return def, nil
}

func displayName(name string) string {
	return strcase.ToCase(name, strcase.TitleCase, ' ')
}

func loadOrInitManifest(path string) (*freeboard.PluginManifestDocument, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &freeboard.PluginManifestDocument{
				Version: freeboard.ManifestVersion,
				Plugins: []freeboard.ManifestPlugin{},
				Source:  path,
			}, nil
		}
		return nil, fmt.Errorf("freeboardctl: stat manifest: %w", err)
	}
	return freeboard.ReadManifest(path)
}

func writeManifest(path string, doc *freeboard.PluginManifestDocument) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("freeboardctl: mkdir %s: %w", filepath.Dir(path), err)
	}
	file, err := os.Create(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("freeboardctl: create manifest %s: %w", path, err)
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	defer encoder.Close()
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("freeboardctl: write manifest: %w", err)
	}
	return nil
}
