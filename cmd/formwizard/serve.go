package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/draft/httpapi"
)

var (
	serveAddr    string
	serveOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the draft API",
	Long: `Serve drafts over HTTP:

  GET|PUT|DELETE /drafts/{form}/{id}   read, merge or clear a draft
  GET /drafts/{form}                    list draft ids
  GET /drafts/{form}/watch              websocket feed of draft changes
  GET /forms/{form}/{id}/steps?step=N   step bar preview of a draft`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides http.addr)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "origin", nil, "Origins allowed to open the watch websocket")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	logger := current.logger.With("component", "http")

	addr := current.cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	handler, err := httpapi.NewHandler(current.store,
		httpapi.WithRegistry(current.registry),
		httpapi.WithLogger(logger),
		httpapi.WithOriginPatterns(serveOrigins...),
	)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	handler.RegisterRoutes(r)

	// Shared storages report writes made by other processes.
	if watcher, ok := current.storage.(draft.Watcher); ok {
		go func() {
			if err := current.store.Follow(ctx, watcher); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("draft follow stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving drafts", "addr", addr, "storage", current.cfg.Storage.Backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
