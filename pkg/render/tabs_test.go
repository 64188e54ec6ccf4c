package render

import (
	"context"
	"strings"
	"testing"

	theme "github.com/goliatone/go-theme"

	"github.com/goliatone/go-formwizard/pkg/form"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

func TestTabsRendererRendersVisibleSteps(t *testing.T) {
	renderer, err := NewTabsRenderer(WithTheme(&theme.RendererConfig{
		Theme:   "acme",
		Variant: "dark",
		CSSVars: map[string]string{"--brand": "#123456"},
	}))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	out, err := renderer.Render(context.Background(), TabsView{
		Form:  "event",
		Title: "Event",
		Steps: []wizard.StepDescriptor{
			{Name: "basic", Label: "Basic", Index: 1, Visible: true},
			{Name: "time", Label: "Time", Index: 2, Visible: true, Active: true, HasError: true},
			{Name: "location", Label: "Location", Index: 3, Visible: true},
			{Name: "participants", Label: "Participants"},
		},
		Errors:  []form.FieldError{{Step: "time", Path: "end", Message: "End must be after the start"}},
		BaseURL: "/wizard",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	html := string(out)

	for _, want := range []string{
		`data-theme="acme"`,
		`data-variant="dark"`,
		`style="--brand: #123456;"`,
		`<a href="/wizard?step=1">1. Basic</a>`,
		`class="fw-step fw-step--active fw-step--error" data-step="time"`,
		`<a href="/wizard?step=2" aria-current="step">2. Time</a>`,
		`href="/wizard?step=1" rel="prev"`,
		`href="/wizard?step=3" rel="next"`,
		`data-path="end">End must be after the start</li>`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected output to contain %q\n%s", want, html)
		}
	}
	if strings.Contains(html, "Participants") {
		t.Fatalf("hidden steps must not be rendered\n%s", html)
	}
	if renderer.ContentType() != ContentTypeHTML {
		t.Fatalf("unexpected content type %q", renderer.ContentType())
	}
}

func TestTabsRendererEscapesLabels(t *testing.T) {
	renderer, err := NewTabsRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := renderer.Render(context.Background(), TabsView{
		Steps: []wizard.StepDescriptor{{Name: "x", Label: "<b>Bold</b>", Index: 1, Visible: true, Active: true}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(string(out), "<b>Bold</b>") {
		t.Fatalf("label must be escaped\n%s", out)
	}
	if strings.Contains(string(out), `rel="next"`) || strings.Contains(string(out), `rel="prev"`) {
		t.Fatalf("a single step has no previous or next link\n%s", out)
	}
}
