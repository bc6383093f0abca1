package app

import (
	"fmt"
	"log"

	"sitekeeper/internal/config"
	"sitekeeper/internal/files"
	"sitekeeper/internal/probe"
	"sitekeeper/internal/rpc"
	"sitekeeper/internal/session"
	"sitekeeper/internal/sso"
	"sitekeeper/internal/store"
	"sitekeeper/pkg/database"
)

// Application coordinates all session-layer components.
// ARCHITECTURAL DISCOVERY: Clean dependency injection with strict
// initialization order: Store → Client → Prober → Files → Session
type Application struct {
	config         *config.Config
	siteStore      *store.Store
	client         *rpc.Client
	cache          *probe.Cache
	prober         *probe.Prober
	downloads      *files.Queue
	fileManager    *files.Manager
	sessionManager *session.Manager
}

// NewApplication creates an application instance with all components wired
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Durable site store (foundation layer)
	dbConfig := &database.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  4,
		ConnMaxLifetime: cfg.Database.Timeout * 10,
		ConnMaxIdleTime: cfg.Database.Timeout,
	}
	siteStore, err := store.New(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize site store: %w", err)
	}

	// STEP 2: RPC client with best-effort connectivity checking
	checker := rpc.InterfaceChecker{}
	client := rpc.NewClient(cfg.Client.RequestTimeout, checker)

	// STEP 3: Capability prober sharing the process-lifetime cache
	cache := probe.NewCache()
	prober := probe.NewProber(client, cache, cfg.Services.Extended)

	// STEP 4: File cache with background download queue
	downloads := files.NewQueue(cfg.Files.DownloadTimeout)
	fileManager := files.NewManager(cfg.Files.CacheRoot, files.DiskStore{}, downloads, checker)

	// STEP 5: Session manager owning the site lifecycle
	launches := sso.NewLaunchStore(siteStore)
	sessionConfig := session.Config{
		DefaultService:  cfg.Services.Default,
		ExtendedService: cfg.Services.Extended,
		ConnectTimeout:  cfg.Client.ConnectTimeout,
	}
	sessionManager := session.NewManager(siteStore, client, prober, client, cache, launches, fileManager, sessionConfig)

	// STEP 6: Wire the auth-failure callback back into the client.
	// FUNCTIONAL DISCOVERY: Registered after construction to break the
	// client/manager dependency cycle
	client.SetInvalidator(sessionManager)

	return &Application{
		config:         cfg,
		siteStore:      siteStore,
		client:         client,
		cache:          cache,
		prober:         prober,
		downloads:      downloads,
		fileManager:    fileManager,
		sessionManager: sessionManager,
	}, nil
}

// Sessions returns the session manager
func (app *Application) Sessions() *session.Manager {
	return app.sessionManager
}

// Files returns the file cache manager
func (app *Application) Files() *files.Manager {
	return app.fileManager
}

// Store returns the durable site store
func (app *Application) Store() *store.Store {
	return app.siteStore
}

// Close shuts components down in reverse dependency order
func (app *Application) Close() error {
	app.downloads.Close()

	if err := app.siteStore.Close(); err != nil {
		log.Printf("Site store shutdown error: %v", err)
		return err
	}
	return nil
}
