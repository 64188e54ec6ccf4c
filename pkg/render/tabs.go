// Package render turns wizard state into HTML fragments. The tab bar shows one
// tab per visible step with its error marker, plus previous/next links that
// carry the active step in the `step` query parameter.
package render

import (
	"context"
	"embed"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/render/template"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

//go:embed templates/*.tpl
var templatesFS embed.FS

const tabsTemplate = "templates/tabs"

// ContentTypeHTML is the content type of rendered fragments.
const ContentTypeHTML = "text/html; charset=utf-8"

// TabsView is the data needed to draw the step bar.
type TabsView struct {
	Form   string
	Title  string
	Steps  []wizard.StepDescriptor
	Errors []form.FieldError
	// BaseURL is the location the step links point at; its query is kept.
	BaseURL string
}

// Option configures a TabsRenderer.
type Option func(*TabsRenderer)

// WithTheme exposes theme tokens and CSS variables to the template.
func WithTheme(cfg *theme.RendererConfig) Option {
	return func(r *TabsRenderer) {
		r.theme = cfg
	}
}

// WithEngine swaps the template engine, for example to override the markup.
func WithEngine(engine template.Renderer) Option {
	return func(r *TabsRenderer) {
		if engine != nil {
			r.engine = engine
		}
	}
}

// TabsRenderer renders the step bar.
type TabsRenderer struct {
	engine template.Renderer
	theme  *theme.RendererConfig
}

// NewTabsRenderer builds a renderer over the embedded templates.
func NewTabsRenderer(opts ...Option) (*TabsRenderer, error) {
	r := &TabsRenderer{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.engine == nil {
		engine, err := template.New(template.WithFS(templatesFS))
		if err != nil {
			return nil, fmt.Errorf("render: %w", err)
		}
		r.engine = engine
	}
	return r, nil
}

func (r *TabsRenderer) Name() string { return "tabs" }

func (r *TabsRenderer) ContentType() string { return ContentTypeHTML }

// Render draws view. Hidden steps are left out.
func (r *TabsRenderer) Render(ctx context.Context, view TabsView) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.viewData(view)
	if err != nil {
		return nil, err
	}
	out, err := r.engine.RenderTemplate(tabsTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("render: tabs: %w", err)
	}
	return []byte(out), nil
}

// RenderSession draws the step bar of a live session, including the errors
// currently displayed by its steps.
func (r *TabsRenderer) RenderSession(ctx context.Context, session *wizard.Session, baseURL string) ([]byte, error) {
	var errs []form.FieldError
	steps := session.Steps()
	for _, step := range steps {
		if !step.Visible {
			continue
		}
		if unit, ok := session.Unit(step.Name); ok {
			errs = append(errs, unit.Errors().Flatten(step.Name)...)
		}
	}
	title := session.Definition().Form.Title
	if title == "" {
		title = session.Definition().Form.Name
	}
	return r.Render(ctx, TabsView{
		Form:    string(session.FormType()),
		Title:   title,
		Steps:   steps,
		Errors:  errs,
		BaseURL: baseURL,
	})
}

func (r *TabsRenderer) viewData(view TabsView) (map[string]any, error) {
	base, err := url.Parse(view.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("render: base url: %w", err)
	}

	active, count := 0, 0
	steps := make([]any, 0, len(view.Steps))
	for _, step := range view.Steps {
		if !step.Visible {
			continue
		}
		count++
		if step.Active {
			active = step.Index
		}
		steps = append(steps, map[string]any{
			"name":      step.Name,
			"label":     step.Label,
			"index":     step.Index,
			"active":    step.Active,
			"has_error": step.HasError,
			"href":      stepHref(base, step.Index),
		})
	}

	errs := make([]any, 0, len(view.Errors))
	for _, fe := range view.Errors {
		errs = append(errs, map[string]any{"step": fe.Step, "path": fe.Path, "message": fe.Message})
	}

	data := map[string]any{
		"form":   view.Form,
		"title":  view.Title,
		"steps":  steps,
		"errors": errs,
		"theme":  themeData(r.theme),
	}
	if active > 1 {
		data["previous"] = stepHref(base, active-1)
	}
	if active > 0 && active < count {
		data["next"] = stepHref(base, active+1)
	}
	return data, nil
}

func stepHref(base *url.URL, index int) string {
	u := *base
	query := u.Query()
	query.Set(wizard.StepQueryKey, strconv.Itoa(index))
	u.RawQuery = query.Encode()
	return u.String()
}

func themeData(cfg *theme.RendererConfig) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	return map[string]any{
		"name":           cfg.Theme,
		"variant":        cfg.Variant,
		"css_vars_style": cssVarsStyle(cfg.CSSVars),
	}
}

func cssVarsStyle(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		name := strings.TrimSpace(key)
		value := strings.TrimSpace(vars[key])
		if name == "" || value == "" {
			continue
		}
		if !strings.HasPrefix(name, "--") {
			name = "--" + name
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString(";")
	}
	return b.String()
}
