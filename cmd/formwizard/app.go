package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-formwizard/internal/config"
	"github.com/goliatone/go-formwizard/pkg/api"
	"github.com/goliatone/go-formwizard/pkg/draft"
	"github.com/goliatone/go-formwizard/pkg/events"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	storage  draft.Storage
	store    *draft.Store
	client   api.Client
	registry *wizard.Registry
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	storage, closer, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.storage = storage
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	a.store = draft.NewStore(storage,
		draft.WithRootKey(cfg.Storage.Root),
		draft.WithLogger(logger.With("component", "draft")),
	)

	if cfg.API.BaseURL == "" {
		logger.Debug("no api.base_url configured, using the in-process backend")
		a.client = api.NewMemory()
	} else {
		client, err := api.NewRESTClient(cfg.API.BaseURL,
			api.WithTimeout(cfg.API.Timeout),
			api.WithLogger(logger.With("component", "api")),
		)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		a.client = client
	}

	a.registry, err = events.Registry(a.client)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

// openStorage builds the configured backend and, when it holds resources, the
// function releasing them.
func openStorage(ctx context.Context, cfg config.StorageConfig) (draft.Storage, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return draft.NewMemoryStorage(), nil, nil
	case config.BackendFile:
		storage, err := draft.NewFileStorage(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return storage, nil, nil
	case config.BackendSQLite:
		storage, err := draft.OpenSQLiteStorage(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return storage, func(context.Context) error { return storage.Close() }, nil
	case config.BackendPostgres:
		storage, err := draft.ConnectPostgresStorage(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return storage, storage.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// sessionOptions are shared by every interactive command.
func (a *app) sessionOptions(extra ...wizard.SessionOption) []wizard.SessionOption {
	opts := []wizard.SessionOption{
		wizard.WithSessionLogger(a.logger.With("component", "wizard")),
		wizard.WithDebounceOptions(draft.WithWindow(a.cfg.Wizard.Debounce)),
	}
	return append(opts, extra...)
}

func (a *app) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
