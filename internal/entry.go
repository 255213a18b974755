// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ithil/pensieve/internal/api"
	"github.com/ithil/pensieve/internal/collection"
	"github.com/ithil/pensieve/internal/index"
	"github.com/ithil/pensieve/internal/mcpserver"
	"github.com/ithil/pensieve/internal/noteservice"
	"github.com/ithil/pensieve/internal/port"
	"github.com/ithil/pensieve/internal/sse"
	"github.com/ithil/pensieve/internal/template"
	"github.com/ithil/pensieve/internal/vcs"
)

// Env is an opened collection together with its index and collaborators.
type Env struct {
	Config     *Config
	Logger     *slog.Logger
	Collection *collection.Collection
	Ports      *port.Registry
	DB         *index.DB
	Service    *noteservice.Service
	version    string
}

// Close releases the index.
func (e *Env) Close() error {
	return e.DB.Close()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Open loads the collection named by the configuration, drains its ports,
// opens the index and brings it up to date.
func Open(ctx context.Context, opts ...Option) (*Env, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	cfgPath, err := collection.FindConfig(cfg.Collection.Path)
	if err != nil {
		return nil, fmt.Errorf("find collection: %w", err)
	}
	collCfg, err := collection.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load collection config: %w", err)
	}

	registry, err := port.Load(cfg.Ports.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("load ports: %w", err)
	}

	collOpts := []collection.Option{
		collection.WithLogger(logger),
		collection.WithPortDrainer(registry),
	}
	if collCfg.UseGit {
		if vcs.Available() {
			git := vcs.NewGit(filepath.Dir(cfgPath))
			if cfg.Collection.GitAuthor != "" {
				git = git.WithAuthor(cfg.Collection.GitAuthor)
			}
			collOpts = append(collOpts, collection.WithVersionControl(git))
		} else {
			logger.Warn("collection uses git but the git binary is missing")
		}
	}

	c, err := collection.Open(cfg.Collection.Path, collOpts...)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("collection", c.Root()),
		slog.String("sqlite_path", cfg.Index.Path),
		slog.String("ports_dir", cfg.Ports.Dir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite index.
	if dir := filepath.Dir(cfg.Index.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := ctx.Err(); err != nil {
		db.Close()
		return nil, err
	}

	// Run initial sync.
	if err := index.Sync(db, c, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	engine := template.NewEngine(c, logger)
	svc := noteservice.NewService(c, db, engine, registry, logger)

	return &Env{
		Config:     cfg,
		Logger:     logger,
		Collection: c,
		Ports:      registry,
		DB:         db,
		Service:    svc,
		version:    app.version,
	}, nil
}

// Run starts the HTTP server and the filesystem watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	env, err := Open(ctx, opts...)
	if err != nil {
		return err
	}
	defer env.Close()

	cfg, logger := env.Config, env.Logger

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	apiRouter := api.NewRouter(env.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher; it is the only publisher of note events.
	g.Go(func() error {
		return index.Watch(gCtx, env.DB, env.Collection, logger, func(ev index.Event) {
			change := sse.NoteChange{Action: string(ev.Kind), Path: ev.Path}
			if ev.Note != nil {
				change.Kind = string(ev.Note.Kind())
				change.Stack = ev.Note.Stack()
			}
			broker.PublishNoteChange(change)
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown requested")

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// another writer is configured.
func ServeMCP(ctx context.Context, opts ...Option) error {
	env, err := Open(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...)...)
	if err != nil {
		return err
	}
	defer env.Close()

	env.Logger.Info("MCP server starting on stdio")
	return mcpserver.New(env.Service, env.version).ServeStdio()
}
