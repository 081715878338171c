package freeboard

import (
	"math"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// Pane owns an ordered list of widgets plus opaque layout metadata.
type Pane struct {
	id        string
	dashboard *Dashboard

	title    string
	width    int
	colWidth int
	row      map[string]int
	col      map[string]int
	widgets  []*Widget
}

// PaneState is a read-only snapshot of a pane.
type PaneState struct {
	ID               string         `json:"id"`
	Title            string         `json:"title,omitempty"`
	Width            int            `json:"width"`
	ColWidth         int            `json:"col_width"`
	Row              map[string]int `json:"row,omitempty"`
	Col              map[string]int `json:"col,omitempty"`
	Position         Position       `json:"position"`
	CalculatedHeight int            `json:"calculated_height"`
	Widgets          []WidgetState  `json:"widgets"`
}

// Position is a grid cell.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func newPane(d *Dashboard, cfg PaneConfig) *Pane {
	colWidth := cfg.ColWidth
	if colWidth <= 0 {
		colWidth = 1
	}
	return &Pane{
		id:        uuid.NewString(),
		dashboard: d,
		title:     cfg.Title,
		width:     cfg.Width,
		colWidth:  colWidth,
		row:       copyPositions(cfg.Row),
		col:       copyPositions(cfg.Col),
	}
}

// ID returns the pane identity.
func (p *Pane) ID() string { return p.id }

func (p *Pane) addWidget(w *Widget) {
	p.widgets = append(p.widgets, w)
}

func (p *Pane) indexOf(w *Widget) int {
	for i, existing := range p.widgets {
		if existing == w {
			return i
		}
	}
	return -1
}

func (p *Pane) removeWidget(w *Widget) bool {
	idx := p.indexOf(w)
	if idx < 0 {
		return false
	}
	w.dispose()
	p.widgets = append(p.widgets[:idx], p.widgets[idx+1:]...)
	return true
}

func (p *Pane) widgetCanMoveUp(w *Widget) bool {
	return p.indexOf(w) > 0
}

func (p *Pane) widgetCanMoveDown(w *Widget) bool {
	idx := p.indexOf(w)
	return idx >= 0 && idx < len(p.widgets)-1
}

func (p *Pane) moveWidgetUp(w *Widget) bool {
	if !p.widgetCanMoveUp(w) {
		return false
	}
	idx := p.indexOf(w)
	p.widgets[idx-1], p.widgets[idx] = p.widgets[idx], p.widgets[idx-1]
	return true
}

func (p *Pane) moveWidgetDown(w *Widget) bool {
	if !p.widgetCanMoveDown(w) {
		return false
	}
	idx := p.indexOf(w)
	p.widgets[idx+1], p.widgets[idx] = p.widgets[idx], p.widgets[idx+1]
	return true
}

// calculatedHeight converts the summed widget heights to grid rows, with a
// minimum of 4.
func (p *Pane) calculatedHeight() int {
	sum := 0
	for _, w := range p.widgets {
		sum += w.height
	}
	rows := (float64(sum)*6+3)*10 + 20
	return int(math.Max(4, math.Ceil(rows/30)))
}

// positionFor returns the pane position for a grid of columns.
func (p *Pane) positionFor(columns int) Position {
	return PositionForColumns(p.row, p.col, columns)
}

// PositionForColumns resolves a row/col breakpoint map for a grid of columns.
// An exact entry wins. Otherwise a pane placed beyond the last column moves to
// it, and the breakpoint closest to columns is preferred. Without a usable
// breakpoint the pane goes to row 1.
func PositionForColumns(row, col map[string]int, columns int) Position {
	keys := make([]int, 0, len(col))
	for k := range col {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		keys = append(keys, n)
	}
	sort.Ints(keys)

	newColumn := 1
	diff := 1000
	for _, n := range keys {
		k := strconv.Itoa(n)
		switch {
		case n == columns:
			return Position{Row: row[k], Col: col[k]}
		case col[k] > columns:
			newColumn = columns
		default:
			if delta := columns - n; delta < diff {
				newColumn = n
				diff = delta
			}
		}
	}
	k := strconv.Itoa(newColumn)
	r, hasRow := row[k]
	c, hasCol := col[k]
	if hasRow && hasCol {
		return Position{Row: r, Col: c}
	}
	return Position{Row: 1, Col: newColumn}
}

func (p *Pane) sizeChanged() {
	for _, w := range p.widgets {
		w.sizeChanged()
	}
}

// dispose cascades to every widget.
func (p *Pane) dispose() {
	for _, w := range p.widgets {
		w.dispose()
	}
}

func (p *Pane) config() PaneConfig {
	widgets := make([]WidgetConfig, 0, len(p.widgets))
	for _, w := range p.widgets {
		widgets = append(widgets, w.config())
	}
	return PaneConfig{
		Title:    p.title,
		Width:    p.width,
		Row:      copyPositions(p.row),
		Col:      copyPositions(p.col),
		ColWidth: p.colWidth,
		Widgets:  widgets,
	}
}

func (p *Pane) state() PaneState {
	widgets := make([]WidgetState, 0, len(p.widgets))
	for _, w := range p.widgets {
		widgets = append(widgets, w.state())
	}
	return PaneState{
		ID:               p.id,
		Title:            p.title,
		Width:            p.width,
		ColWidth:         p.colWidth,
		Row:              copyPositions(p.row),
		Col:              copyPositions(p.col),
		Position:         p.positionFor(p.dashboard.columns),
		CalculatedHeight: p.calculatedHeight(),
		Widgets:          widgets,
	}
}

func copyPositions(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// sortPanesByRow orders pane configs by their row for columns. The sort is
// stable so equal rows keep document order.
func sortPanesByRow(panes []PaneConfig, columns int) []PaneConfig {
	out := append([]PaneConfig(nil), panes...)
	sort.SliceStable(out, func(i, j int) bool {
		return PositionForColumns(out[i].Row, out[i].Col, columns).Row <
			PositionForColumns(out[j].Row, out[j].Col, columns).Row
	})
	return out
}
