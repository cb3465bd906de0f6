// Package app wires configuration, logging, the credential store and the chat
// listeners together and runs them until the process is told to stop.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/linechat/internal/config"
	"github.com/Tyrowin/linechat/internal/credentials"
	"github.com/Tyrowin/linechat/internal/logging"
	"github.com/Tyrowin/linechat/internal/server"
)

const (
	dbConnectAttempts = 3
	dbConnectInterval = 5 * time.Second
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *server.Registry
	chat     *server.Server
	http     *http.Server

	ready    chan struct{}
	addr     net.Addr
	httpAddr net.Addr
}

// Option customizes an App.
type Option func(*options)

type options struct {
	logger logging.Logger
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New builds the application. A database that cannot be reached or migrated
// is a fatal error.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.New(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	}

	hasher, err := credentials.NewHasher(cfg.Hash.Algorithm, cfg.Hash.Iterations)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	repo, db, err := openRepository(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}

	store := credentials.NewStore(repo, hasher)
	registry := server.NewRegistry()
	broadcaster := server.NewBroadcaster(registry, logger.With("component", "broadcaster"))
	handler := server.NewHandler(cfg, registry, broadcaster, store, logger.With("component", "handler"))
	chat := server.NewServer(cfg, handler, logger.With("component", "listener"))

	a := &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: registry,
		chat:     chat,
		ready:    make(chan struct{}),
	}

	if cfg.WebSocketAddr != "" {
		ws := server.NewWebSocketHandler(chat, cfg, logger.With("component", "websocket"))
		a.http = server.CreateServer(cfg.WebSocketAddr, server.SetupRoutes(ws, registry))
	}

	return a, nil
}

func openRepository(ctx context.Context, dsn string, logger logging.Logger) (credentials.Repository, *sql.DB, error) {
	if dsn == "memory" {
		logger.Warn(ctx, "using in-memory credential store; accounts are lost on exit")
		return credentials.NewMemoryRepository(), nil, nil
	}

	db, err := credentials.OpenPostgres(ctx, dsn, dbConnectAttempts, dbConnectInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("db init error: %w", err)
	}
	if err := credentials.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	logger.Info(ctx, "connected to credential database")
	return credentials.NewPostgresRepository(db), db, nil
}

// Run serves until ctx is cancelled, then shuts everything down within the
// configured timeout. Binding a listener is the only startup failure.
func (a *App) Run(ctx context.Context) error {
	defer a.closeDB(ctx)

	ln, err := net.Listen("tcp", a.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.config.Addr, err)
	}

	var httpLn net.Listener
	if a.http != nil {
		httpLn, err = net.Listen("tcp", a.http.Addr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen on %s: %w", a.http.Addr, err)
		}
	}

	a.addr = ln.Addr()
	if httpLn != nil {
		a.httpAddr = httpLn.Addr()
	}
	close(a.ready)

	a.logger.Info(ctx, "starting chat server",
		"addr", ln.Addr().String(), "websocket", a.config.WebSocketAddr, "hash", a.config.Hash.Algorithm)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := a.chat.Serve(egCtx, ln); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return err
		}
		return nil
	})

	if httpLn != nil {
		eg.Go(func() error {
			a.logger.Info(egCtx, "websocket endpoint listening", "addr", httpLn.Addr().String())
			if err := a.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		return a.shutdown()
	})

	err = eg.Wait()
	a.logger.Info(context.Background(), "chat server stopped")
	return err
}

// Ready is closed once Run has bound its listeners.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr is the bound chat address. Valid after Ready.
func (a *App) Addr() net.Addr { return a.addr }

// HTTPAddr is the bound WebSocket/HTTP address, or nil when disabled.
// Valid after Ready.
func (a *App) HTTPAddr() net.Addr { return a.httpAddr }

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.http != nil {
		if err := server.ShutdownServer(ctx, a.http, a.config.ShutdownTimeout, a.logger); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.chat.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeDB(ctx context.Context) {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error(ctx, "error closing database", "error", err)
	}
}
