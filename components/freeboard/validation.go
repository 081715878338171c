package freeboard

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidSettings is wrapped by every settings validation failure.
var ErrInvalidSettings = errors.New("freeboard: invalid settings")

// ValidationError names the offending setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("freeboard: setting %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidSettings }

// SettingsValidator checks instance settings against a plugin's definitions.
type SettingsValidator interface {
	Validate(desc PluginDescriptor, settings Settings) error
}

// SchemaValidator applies the editor rules (required, numeric) and then
// validates the settings against a JSON schema derived from the definitions.
type SchemaValidator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewSchemaValidator builds a validator backed by jsonschema v5.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate returns a *ValidationError for the first failing setting.
func (v *SchemaValidator) Validate(desc PluginDescriptor, settings Settings) error {
	for _, def := range desc.Settings {
		value, present := settings[def.Name]
		if def.Required && (!present || value == nil || value == "") {
			return &ValidationError{Field: def.Name, Message: "This is required."}
		}
		if def.Type == SettingNumber && present && value != nil && value != "" && !isNumeric(value) {
			return &ValidationError{Field: def.Name, Message: "Must be a number."}
		}
	}
	schema, err := v.schemaFor(desc)
	if err != nil {
		return err
	}
	payload, err := normalizePayload(settings)
	if err != nil {
		return fmt.Errorf("freeboard: normalize settings for %s: %w", desc.TypeName, err)
	}
	if err := schema.Validate(payload); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := verr
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			return &ValidationError{Field: strings.TrimPrefix(leaf.InstanceLocation, "/"), Message: leaf.Message}
		}
		return fmt.Errorf("freeboard: settings for %s failed validation: %w", desc.TypeName, err)
	}
	return nil
}

func (v *SchemaValidator) schemaFor(desc PluginDescriptor) (*jsonschema.Schema, error) {
	key := desc.TypeName + ":" + definitionsHash(desc.Settings)
	v.mu.RLock()
	schema, ok := v.compiled[key]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}
	data, err := json.Marshal(settingsSchema(desc.Settings))
	if err != nil {
		return nil, fmt.Errorf("freeboard: marshal schema %s: %w", desc.TypeName, err)
	}
	compiler := jsonschema.NewCompiler()
	name := desc.TypeName + ".json"
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("freeboard: load schema %s: %w", desc.TypeName, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("freeboard: compile schema %s: %w", desc.TypeName, err)
	}
	v.mu.Lock()
	v.compiled[key] = compiled
	v.mu.Unlock()
	return compiled, nil
}

// settingsSchema covers the types the editor enforces by construction:
// booleans, option enums and arrays of rows. Text, number and calculated
// values are left open.
func settingsSchema(defs []SettingDefinition) map[string]any {
	props := map[string]any{}
	for _, def := range defs {
		switch def.Type {
		case SettingBoolean:
			props[def.Name] = map[string]any{"type": []string{"boolean", "null"}}
		case SettingOptionType:
			if len(def.Options) == 0 {
				continue
			}
			values := make([]any, 0, len(def.Options)+1)
			for _, opt := range def.Options {
				values = append(values, opt.OptionValue())
			}
			values = append(values, nil)
			props[def.Name] = map[string]any{"enum": values}
		case SettingArray:
			props[def.Name] = map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": "object"},
			}
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func normalizePayload(settings Settings) (map[string]any, error) {
	payload := map[string]any{}
	if len(settings) == 0 {
		return payload, nil
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func isNumeric(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil
	default:
		return false
	}
}

// definitionsHash returns a deterministic hash of a settings definition list.
func definitionsHash(defs []SettingDefinition) string {
	if len(defs) == 0 {
		return "empty"
	}
	b, err := json.Marshal(defs)
	if err != nil {
		return "invalid"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

// ApplyDefaults fills undeclared settings from their default values.
func ApplyDefaults(desc PluginDescriptor, settings Settings) Settings {
	out := settings.Clone()
	for _, def := range desc.Settings {
		if _, ok := out[def.Name]; ok || def.DefaultValue == nil {
			continue
		}
		out[def.Name] = def.DefaultValue
	}
	return out
}
