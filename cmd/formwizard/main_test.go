package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/pkg/api"
	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/events"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("formwizard %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestCheckSchemaBuiltInForms(t *testing.T) {
	out := execute(t, "check-schema")
	for _, name := range []string{"ok  event", "ok  close-event"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %q in output:\n%s", name, out)
		}
	}
}

func TestDraftsListEmpty(t *testing.T) {
	out := execute(t, "drafts", "ls", "event")
	if !strings.Contains(out, "No drafts.") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	storage, closer, err := openStorage(ctx, config.StorageConfig{Backend: config.BackendMemory})
	if err != nil || closer != nil {
		t.Fatalf("memory storage: %v (closer %v)", err, closer != nil)
	}
	if _, ok := storage.(*draft.MemoryStorage); !ok {
		t.Fatalf("expected memory storage, got %T", storage)
	}

	storage, _, err = openStorage(ctx, config.StorageConfig{Backend: config.BackendFile, Path: t.TempDir()})
	if err != nil {
		t.Fatalf("file storage: %v", err)
	}
	if _, ok := storage.(draft.Watcher); !ok {
		t.Fatalf("file storage should support watching, got %T", storage)
	}

	if _, _, err := openStorage(ctx, config.StorageConfig{Backend: "redis"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if !logger.Enabled(context.Background(), slog.LevelWarn) {
		t.Fatalf("warn should be enabled")
	}
}

func TestCloseReportSeedsCloseWizard(t *testing.T) {
	ctx := context.Background()
	backend := api.NewMemory()
	id := backend.Seed(map[string]any{"name": "Beach cleanup"})

	report, err := closeReport(ctx, backend, id)
	if err != nil || report != nil {
		t.Fatalf("open event should have no report, got %v (%v)", report, err)
	}
	if _, err := closeReport(ctx, backend, "missing"); !api.IsNotFound(err) {
		t.Fatalf("expected not found for a missing event, got %v", err)
	}

	stored := map[string]any{"participant_count": float64(14), "summary": "<p>Went well</p>", "volunteer_hours": float64(28)}
	if _, err := backend.CloseEvent(ctx, id, stored); err != nil {
		t.Fatalf("close: %v", err)
	}
	report, err = closeReport(ctx, backend, id)
	if err != nil {
		t.Fatalf("close report: %v", err)
	}

	def, err := events.CloseEventDefinition()
	if err != nil {
		t.Fatalf("definition: %v", err)
	}
	session, err := wizard.NewSession(ctx, def, draft.NewStore(nil), id, wizard.WithServerData(report))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	defer session.Close()

	values := session.Values()
	for path, want := range map[string]any{
		"participant_count": float64(14),
		"summary":           "<p>Went well</p>",
		"volunteer_hours":   float64(28),
		"hours_method":      events.HoursTotal,
	} {
		if diff := cmp.Diff(want, values[path]); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", path, diff)
		}
	}
}
