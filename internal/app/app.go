// Package app wires configuration into the running service components.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	internalnats "github.com/wehubfusion/Ariadne/internal/nats"
	"github.com/wehubfusion/Ariadne/pkg/concurrency"
	"github.com/wehubfusion/Ariadne/pkg/config"
	"github.com/wehubfusion/Ariadne/pkg/contacts"
	"github.com/wehubfusion/Ariadne/pkg/fielddefs"
	"github.com/wehubfusion/Ariadne/pkg/language"
	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/mappers/builtin"
	"github.com/wehubfusion/Ariadne/pkg/mappers/script"
	"github.com/wehubfusion/Ariadne/pkg/metadata"
	"github.com/wehubfusion/Ariadne/pkg/process"
	"github.com/wehubfusion/Ariadne/pkg/process/portal"
	"github.com/wehubfusion/Ariadne/pkg/storage"
	"github.com/wehubfusion/Ariadne/pkg/themes"
	"github.com/wehubfusion/Ariadne/pkg/transport"
	"github.com/wehubfusion/Ariadne/pkg/viewdefs"
	"go.uber.org/zap"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// App holds the wired service components.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      storage.DocumentStore
	Fields     *fielddefs.StoreProvider
	Registries *mappers.Registries
	Runner     *mappers.Runner
	ViewDefs   *viewdefs.Provider
	Languages  *language.Store
	Themes     *themes.Selector
	Resolver   *metadata.Resolver
	Processes  *process.Service
	Transport  *transport.Server

	db *sql.DB
}

// Option customizes wiring.
type Option func(*options)

type options struct {
	store     storage.DocumentStore
	db        *sql.DB
	sentryHub *sentry.Hub
	limiter   *concurrency.Limiter
	noDB      bool
}

// WithStore uses store instead of the configured storage backend.
func WithStore(store storage.DocumentStore) Option {
	return func(o *options) { o.store = store }
}

// WithDB uses db for contacts instead of opening the configured database.
// The caller keeps ownership of db.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// WithSentryHub reports unexpected process errors to hub.
func WithSentryHub(hub *sentry.Hub) Option {
	return func(o *options) { o.sentryHub = hub }
}

// WithoutDatabase skips the contacts database and the process service that
// depends on it. Used by commands that only map records or read definitions.
func WithoutDatabase() Option {
	return func(o *options) { o.noDB = true }
}

// WithLimiter bounds transport concurrency with limiter.
func WithLimiter(limiter *concurrency.Limiter) Option {
	return func(o *options) { o.limiter = limiter }
}

// New builds every component from cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: logger}

	store := o.store
	if store == nil {
		var err error
		if store, err = OpenStore(cfg.Storage, logger); err != nil {
			return nil, err
		}
	}
	a.Store = store

	fields, err := fielddefs.NewStoreProvider(store,
		fielddefs.WithTTL(cfg.Storage.VardefTTL),
		fielddefs.WithLogger(logger.Named("fielddefs")))
	if err != nil {
		return nil, err
	}
	a.Fields = fields

	a.Registries = mappers.NewRegistries()
	if err := builtin.Register(a.Registries, cfg.Mappers.Transforms); err != nil {
		return nil, fmt.Errorf("failed to register built-in mappers: %w", err)
	}
	if err := script.Register(a.Registries, cfg.Mappers.Scripts, logger.Named("script")); err != nil {
		return nil, fmt.Errorf("failed to register script mappers: %w", err)
	}
	a.Runner = mappers.NewRunnerFromRegistries(fields, a.Registries, logger.Named("mappers"))

	if a.ViewDefs, err = viewdefs.NewProvider(store, fields, logger.Named("viewdefs")); err != nil {
		return nil, err
	}

	a.Languages = language.NewStore(store, logger.Named("language"))
	if a.Themes, err = themes.LoadSelector(ctx, store, cfg.Themes); err != nil {
		return nil, fmt.Errorf("failed to load themes: %w", err)
	}

	a.Resolver, err = metadata.NewResolver(metadata.Loaders{
		Navigation:  metadata.StaticNavigation{Tree: cfg.Navigation},
		Configs:     metadata.StaticConfigs(cfg.SystemConfigs()),
		Preferences: metadata.StaticPreferences(cfg.Preferences),
		Languages:   a.Languages,
		ThemeImages: themes.NewImageLoader(a.Themes),
	}, nil, logger.Named("metadata"))
	if err != nil {
		return nil, err
	}

	if !o.noDB {
		if err := a.wireProcesses(ctx, o); err != nil {
			a.Close()
			return nil, err
		}
	}

	services := transport.Services{
		Mapper:   a.Runner,
		ViewDefs: a.ViewDefs,
		Metadata: a.Resolver,
	}
	if a.Processes != nil {
		services.Processes = a.Processes
	}
	a.Transport, err = transport.NewServer(transport.Config{
		SubjectPrefix: cfg.Service.SubjectPrefix,
		QueueGroup:    cfg.Service.QueueGroup,
	}, services, o.limiter, logger.Named("transport"))
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) wireProcesses(ctx context.Context, o options) error {
	cfg := a.Config
	db := o.db
	if db == nil {
		var err error
		if db, err = OpenDB(ctx, cfg.Database); err != nil {
			return err
		}
		a.db = db
	}
	repo, err := contacts.NewSQLStore(db)
	if err != nil {
		return err
	}

	var serviceOpts []process.Option
	if o.sentryHub != nil {
		serviceOpts = append(serviceOpts, process.WithSentry(o.sentryHub))
	}
	a.Processes = process.NewService(a.Logger.Named("process"), serviceOpts...)

	portalHandler, err := portal.NewHandler(portal.Config{
		AOP:      cfg.AOP,
		Timeout:  cfg.Portal.Timeout,
		Language: cfg.System.DefaultLanguage,
	}, repo,
		portal.WithCircuitBreaker(concurrency.NewCircuitBreaker(cfg.Portal.BreakerThreshold, cfg.Portal.BreakerReset)),
		portal.WithTranslator(a.Languages),
		portal.WithLogger(a.Logger.Named("portal")))
	if err != nil {
		return err
	}
	return a.Processes.Register(portalHandler)
}

// OpenStore opens the configured document storage backend.
func OpenStore(cfg config.StorageConfig, logger *zap.Logger) (storage.DocumentStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case config.StorageAzure:
		return storage.NewAzureBlobClient(cfg.AzureConnectionString, cfg.AzureContainer, logger.Named("storage"))
	case config.StorageFile, "":
		return storage.NewFileStore(cfg.Dir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// OpenDB opens and pings the contacts database.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.EnsureSchema {
		if err := contacts.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Serve connects to NATS, subscribes the transport and blocks until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	natsCfg := internalnats.DefaultConnectionConfig(a.Config.NATS.URL)
	natsCfg.Name = a.Config.Service.Name
	natsCfg.Token = a.Config.NATS.Token
	natsCfg.Username = a.Config.NATS.Username
	natsCfg.Password = a.Config.NATS.Password
	if a.Config.NATS.MaxReconnects != 0 {
		natsCfg.MaxReconnects = a.Config.NATS.MaxReconnects
	}
	if a.Config.NATS.ReconnectWait > 0 {
		natsCfg.ReconnectWait = a.Config.NATS.ReconnectWait
	}
	if a.Config.NATS.Timeout > 0 {
		natsCfg.Timeout = a.Config.NATS.Timeout
	}

	conn, err := internalnats.Connect(ctx, natsCfg, a.Logger.Named("nats"))
	if err != nil {
		return err
	}

	if err := a.Transport.Start(conn); err != nil {
		conn.Close()
		return err
	}
	a.Logger.Info("Serving", zap.Strings("subjects", a.Transport.Subjects()))

	<-ctx.Done()
	a.Logger.Info("Shutting down")

	stopErr := a.Transport.Stop()
	closeErr := internalnats.Close(conn)
	return errors.Join(stopErr, closeErr)
}

// Close releases resources the app opened.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
