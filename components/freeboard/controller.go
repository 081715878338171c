package freeboard

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"io"

	template "github.com/goliatone/go-template"
)

//go:embed templates/*.html templates/**/*.html
var embeddedTemplates embed.FS

// Renderer describes the template renderer contract needed by the controller.
type Renderer interface {
	Render(name string, data any, out ...io.Writer) (string, error)
}

// NewTemplateRenderer creates a go-template renderer backed by the embedded templates.
func NewTemplateRenderer() (Renderer, error) {
	return template.NewRenderer(
		template.WithFS(embeddedTemplates),
		template.WithBaseDir("templates"),
		template.WithExtension(".html"),
	)
}

// DashboardView is the read side of a dashboard consumed by the controller.
type DashboardView interface {
	Serialize() Document
	Panes() []PaneState
	Datasources() []DatasourceState
	RenderWidget(ctx context.Context, widgetID string, out io.Writer) error
}

// ControllerOptions configures the HTML controller.
type ControllerOptions struct {
	Dashboard DashboardView
	Renderer  Renderer
	Template  string
	Title     string
	StreamURL string
}

// Controller renders the dashboard overview page.
type Controller struct {
	dashboard DashboardView
	renderer  Renderer
	template  string
	title     string
	streamURL string
}

// NewController wires the dashboard into a controller.
func NewController(opts ControllerOptions) *Controller {
	tpl := opts.Template
	if tpl == "" {
		tpl = "dashboard.html"
	}
	title := opts.Title
	if title == "" {
		title = "freeboard"
	}
	return &Controller{
		dashboard: opts.Dashboard,
		renderer:  opts.Renderer,
		template:  tpl,
		title:     title,
		streamURL: opts.StreamURL,
	}
}

type paneView struct {
	ID       string
	Title    string
	ColWidth int
	Widgets  []widgetView
}

type widgetView struct {
	ID    string
	Type  string
	Title string
	HTML  string
}

// RenderTemplate writes the overview page to out.
func (c *Controller) RenderTemplate(ctx context.Context, out io.Writer) error {
	if c.renderer == nil {
		return errors.New("freeboard: controller renderer not configured")
	}
	if c.dashboard == nil {
		return errors.New("freeboard: controller dashboard not configured")
	}
	_, err := c.renderer.Render(c.template, c.payload(ctx), out)
	return err
}

func (c *Controller) payload(ctx context.Context) map[string]any {
	doc := c.dashboard.Serialize()
	panes := c.dashboard.Panes()
	views := make([]paneView, 0, len(panes))
	for _, pane := range panes {
		view := paneView{ID: pane.ID, Title: pane.Title, ColWidth: pane.ColWidth}
		for _, w := range pane.Widgets {
			var buf bytes.Buffer
			html := ""
			if err := c.dashboard.RenderWidget(ctx, w.ID, &buf); err == nil {
				html = buf.String()
			}
			view.Widgets = append(view.Widgets, widgetView{ID: w.ID, Type: w.Type, Title: w.Title, HTML: html})
		}
		views = append(views, view)
	}
	return map[string]any{
		"title":        c.title,
		"header_image": doc.HeaderImage,
		"allow_edit":   doc.AllowEdit == nil || *doc.AllowEdit,
		"columns":      doc.Columns,
		"plugins":      doc.Plugins,
		"panes":        views,
		"datasources":  c.dashboard.Datasources(),
		"stream_url":   c.streamURL,
	}
}

// RenderWidget writes a single widget fragment to out.
func (c *Controller) RenderWidget(ctx context.Context, widgetID string, out io.Writer) error {
	if c.dashboard == nil {
		return errors.New("freeboard: controller dashboard not configured")
	}
	return c.dashboard.RenderWidget(ctx, widgetID, out)
}
