package freeboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// UnmarshalJSON accepts both the breakpoint maps and the legacy numeric
// row/col, which are stored under the "0" key until the dashboard assigns
// them to its column count.
func (p *PaneConfig) UnmarshalJSON(data []byte) error {
	type paneAlias PaneConfig
	var raw struct {
		paneAlias
		Row json.RawMessage `json:"row,omitempty"`
		Col json.RawMessage `json:"col,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PaneConfig(raw.paneAlias)
	var err error
	if p.Row, err = decodePositions(raw.Row); err != nil {
		return fmt.Errorf("freeboard: pane row: %w", err)
	}
	if p.Col, err = decodePositions(raw.Col); err != nil {
		return fmt.Errorf("freeboard: pane col: %w", err)
	}
	return nil
}

const legacyPositionKey = "0"

func decodePositions(data json.RawMessage) (map[string]int, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		return map[string]int{legacyPositionKey: n}, nil
	}
	var out map[string]int
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeLegacyPositions moves a legacy numeric row/col to the key of the
// current column count.
func normalizeLegacyPositions(cfg PaneConfig, columns int) PaneConfig {
	row, hasRow := cfg.Row[legacyPositionKey]
	col, hasCol := cfg.Col[legacyPositionKey]
	if !hasRow || !hasCol || len(cfg.Row) != 1 || len(cfg.Col) != 1 {
		return cfg
	}
	key := strconv.Itoa(columns)
	cfg.Row = map[string]int{key: row}
	cfg.Col = map[string]int{key: col}
	return cfg
}

// Serialize captures the dashboard configuration.
func (d *Dashboard) Serialize() Document {
	var doc Document
	d.loop.Do(func() { doc = d.serialize() })
	return doc
}

func (d *Dashboard) serialize() Document {
	allow := d.allowEdit
	doc := Document{
		Version:     d.version,
		HeaderImage: d.headerImage,
		AllowEdit:   &allow,
		Plugins:     append([]string{}, d.plugins...),
		Panes:       make([]PaneConfig, 0, len(d.panes)),
		Datasources: make([]DatasourceConfig, 0, len(d.datasources)),
		Columns:     d.columns,
	}
	for _, pane := range d.panes {
		doc.Panes = append(doc.Panes, pane.config())
	}
	for _, ds := range d.datasources {
		doc.Datasources = append(doc.Datasources, ds.config())
	}
	return doc
}

// Deserialize replaces the dashboard with doc. Plugin sources are loaded
// first, then datasources are created, then panes in row order. Entries that
// fail are skipped and reported together.
func (d *Dashboard) Deserialize(ctx context.Context, doc Document) error {
	d.Clear(ctx)

	var errs []error
	for _, url := range doc.Plugins {
		if err := d.pluginLoader.LoadPluginSource(ctx, url); err != nil {
			d.logger.WithField("plugin", url).WithError(err).Warn("plugin source failed to load")
			d.record(EventResourceError, map[string]any{"url": url})
			errs = append(errs, err)
		}
	}

	d.loop.Do(func() {
		d.version = DocumentVersion
		d.headerImage = doc.HeaderImage
		d.allowEdit = doc.AllowEdit == nil || *doc.AllowEdit
		if doc.Columns > 0 {
			d.columns = doc.Columns
		}
		for _, url := range doc.Plugins {
			d.plugins = appendUnique(d.plugins, url)
		}
		for _, cfg := range doc.Datasources {
			if err := d.addDatasource(cfg, false); err != nil {
				errs = append(errs, err)
			}
		}
		panes := make([]PaneConfig, 0, len(doc.Panes))
		for _, cfg := range doc.Panes {
			panes = append(panes, normalizeLegacyPositions(cfg, d.columns))
		}
		for _, cfg := range sortPanesByRow(panes, d.columns) {
			d.addPane(cfg)
		}
	})
	return errors.Join(errs...)
}

// Save writes the serialized dashboard as indented JSON.
func (d *Dashboard) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d.Serialize()); err != nil {
		return fmt.Errorf("freeboard: encode dashboard: %w", err)
	}
	return nil
}

// Load reads a JSON document and deserializes it.
func (d *Dashboard) Load(ctx context.Context, r io.Reader) error {
	doc, err := DecodeDocument(r)
	if err != nil {
		return err
	}
	return d.Deserialize(ctx, doc)
}

// DecodeDocument parses a dashboard document.
func DecodeDocument(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, fmt.Errorf("freeboard: dashboard document is empty")
		}
		return Document{}, fmt.Errorf("freeboard: decode dashboard: %w", err)
	}
	return doc, nil
}
