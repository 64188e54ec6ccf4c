// Package httpapi exposes the draft store over HTTP so a browser client can
// persist wizard drafts, follow changes made elsewhere over a websocket and
// preview the step bar of a draft.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/render"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

const (
	maxBodyBytes     = 1 << 20
	watchBufferSize  = 16
	messageTypeReady = "ready"
	messageTypeDraft = "change"
)

// Message is what the watch endpoint sends.
type Message struct {
	Type         string        `json:"type"`
	SubscriberID string        `json:"subscriber_id,omitempty"`
	Change       *draft.Change `json:"change,omitempty"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithRegistry enables the step preview for the registered wizards.
func WithRegistry(registry *wizard.Registry) Option {
	return func(h *Handler) {
		h.registry = registry
	}
}

// WithRenderer overrides the step bar renderer.
func WithRenderer(renderer *render.TabsRenderer) Option {
	return func(h *Handler) {
		if renderer != nil {
			h.renderer = renderer
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOriginPatterns sets the origins allowed to open the watch websocket.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) {
		h.origins = append([]string(nil), patterns...)
	}
}

// Handler serves the draft routes.
type Handler struct {
	store    *draft.Store
	registry *wizard.Registry
	renderer *render.TabsRenderer
	logger   *slog.Logger
	origins  []string
}

// NewHandler builds a handler over store.
func NewHandler(store *draft.Store, opts ...Option) (*Handler, error) {
	if store == nil {
		return nil, errors.New("httpapi: store is nil")
	}
	h := &Handler{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.renderer == nil {
		renderer, err := render.NewTabsRenderer()
		if err != nil {
			return nil, err
		}
		h.renderer = renderer
	}
	return h, nil
}

// Router returns a chi router with every route registered.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/drafts/{formType}", func(r chi.Router) {
		r.Get("/", h.listDrafts)
		r.Get("/watch", h.watch)
		r.Get("/{id}", h.getDraft)
		r.Put("/{id}", h.saveDraft)
		r.Delete("/{id}", h.clearDraft)
	})
	r.Get("/forms/{formType}/{id}/steps", h.previewSteps)
}

func (h *Handler) listDrafts(w http.ResponseWriter, r *http.Request) {
	formType, ok := parseFormType(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"form_type": formType,
		"ids":       h.store.IDs(r.Context(), formType),
	})
}

func (h *Handler) getDraft(w http.ResponseWriter, r *http.Request) {
	formType, ok := parseFormType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	data, err := h.store.Lookup(r.Context(), formType, id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, draft.Change{FormType: formType, ID: id, Data: data})
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	formType, ok := parseFormType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var partial map[string]any
	if err := decodeJSON(w, r, &partial); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "body must be a JSON object: "+err.Error())
		return
	}
	if err := h.store.Save(r.Context(), formType, id, partial); err != nil {
		// The draft is kept in memory; the client can carry on.
		h.logger.Warn("draft saved in memory only", "form_type", string(formType), "id", id, "error", err)
	}
	writeJSON(w, http.StatusOK, draft.Change{FormType: formType, ID: id, Data: h.store.Read(r.Context(), formType, id)})
}

func (h *Handler) clearDraft(w http.ResponseWriter, r *http.Request) {
	formType, ok := parseFormType(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.Clear(r.Context(), formType, id); err != nil {
		h.logger.Warn("draft cleared in memory only", "form_type", string(formType), "id", id, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// watch streams every change to drafts of one form type until the client goes
// away. Slow clients miss changes rather than block writers.
func (h *Handler) watch(w http.ResponseWriter, r *http.Request) {
	formType, ok := parseFormType(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	subscriber := uuid.NewString()
	logger := h.logger.With("subscriber", subscriber, "form_type", string(formType))
	changes := make(chan draft.Change, watchBufferSize)
	unsubscribe := h.store.Subscribe(func(change draft.Change) {
		if change.FormType != formType {
			return
		}
		select {
		case changes <- change:
		default:
			logger.Warn("dropping draft change for slow subscriber", "id", change.ID)
		}
	})
	defer unsubscribe()

	ctx := conn.CloseRead(r.Context())
	if err := wsjson.Write(ctx, conn, Message{Type: messageTypeReady, SubscriberID: subscriber}); err != nil {
		return
	}
	logger.Debug("draft watcher connected")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("draft watcher disconnected")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case change := <-changes:
			if err := wsjson.Write(ctx, conn, Message{Type: messageTypeDraft, Change: &change}); err != nil {
				if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
					logger.Warn("websocket write failed", "error", err)
				}
				return
			}
		}
	}
}

// previewSteps renders the step bar of the stored draft. `step` selects the
// active tab and `validate=1` surfaces every error as a submit attempt would.
func (h *Handler) previewSteps(w http.ResponseWriter, r *http.Request) {
	formType, ok := parseFormType(w, r)
	if !ok {
		return
	}
	if h.registry == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "step preview is not enabled")
		return
	}
	def, err := h.registry.Get(formType)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	opts := []wizard.SessionOption{wizard.WithSessionLogger(h.logger)}
	if n, ok := wizard.ParseStepIndex(r.URL.Query().Get(wizard.StepQueryKey)); ok {
		opts = append(opts, wizard.WithInitialStep(n))
	}
	session, err := wizard.NewSession(r.Context(), def, h.store, chi.URLParam(r, "id"), opts...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SESSION", err.Error())
		return
	}
	defer session.Close()

	if r.URL.Query().Get("validate") == "1" {
		if _, err := session.Validate(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "VALIDATION_ABANDONED", err.Error())
			return
		}
	}

	out, err := h.renderer.RenderSession(r.Context(), session, r.URL.Path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "RENDER", err.Error())
		return
	}
	w.Header().Set("Content-Type", h.renderer.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func parseFormType(w http.ResponseWriter, r *http.Request) (draft.FormType, bool) {
	formType, err := draft.ParseFormType(chi.URLParam(r, "formType"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "UNKNOWN_FORM_TYPE", err.Error())
		return "", false
	}
	return formType, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if m, ok := v.(*map[string]any); ok && *m == nil {
		return errors.New("body is null")
	}
	return nil
}
