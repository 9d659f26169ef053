package app

import (
	"context"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/handlers"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
	"github.com/ternarybob/responsum/internal/services/embeddings"
	"github.com/ternarybob/responsum/internal/services/events"
	"github.com/ternarybob/responsum/internal/services/ingest"
	"github.com/ternarybob/responsum/internal/services/llm"
	"github.com/ternarybob/responsum/internal/services/llm/local"
	"github.com/ternarybob/responsum/internal/services/pdf"
	"github.com/ternarybob/responsum/internal/services/resolver"
	"github.com/ternarybob/responsum/internal/services/retrieval"
	"github.com/ternarybob/responsum/internal/services/scheduler"
	"github.com/ternarybob/responsum/internal/services/transform"
	"github.com/ternarybob/responsum/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Query pipeline
	EventService      interfaces.EventService
	EmbeddingService  interfaces.EmbeddingService
	Coordinator       *embeddings.Coordinator
	RetrievalProvider interfaces.RetrievalProvider
	Registry          interfaces.BackendRegistry
	Resolver          interfaces.QueryResolver

	// Document pipeline
	TransformService interfaces.TransformService
	PDFExtractor     interfaces.PDFExtractor
	PDFService       interfaces.PDFService
	IngestService    interfaces.IngestService

	// Background maintenance
	SchedulerService interfaces.SchedulerService

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	WSHandler       *handlers.WebSocketHandler
	QueryHandler    *handlers.QueryHandler
	ModelsHandler   *handlers.ModelsHandler
	DocumentHandler *handlers.DocumentHandler
	SearchHandler   *handlers.SearchHandler
	IngestHandler   *handlers.IngestHandler
	StatusHandler   *handlers.StatusHandler

	wsWriter *handlers.WebSocketWriter
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event service comes first so every later component can publish to it
	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
	}

	// WebSocket handler is created early so the activity stream covers
	// service startup
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.StorageManager, app.Logger, &app.Config.WebSocket)

	wsWriter, err := handlers.NewWebSocketWriter(app.WSHandler, arbormodels.WriterConfiguration{
		TimeFormat: "15:04:05",
	}, &app.Config.WebSocket)
	if err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to create WebSocket log writer - activity stream disabled")
	} else {
		app.wsWriter = wsWriter
		app.WSHandler.SetLogWriter(wsWriter)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	// Start WebSocket background tasks for connected clients
	app.WSHandler.StartStatusBroadcaster()

	logger.Info().
		Str("default_backend", models.ParseBackendRef(cfg.Query.DefaultBackend).String()).
		Bool("embeddings_available", app.EmbeddingService.IsAvailable(context.Background())).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Load variables from files (e.g. API keys, secrets)
	// This must happen before config replacement so that loaded variables can be used
	if err := a.StorageManager.LoadVariablesFromFiles(context.Background(), a.Config.Variables.Dir); err != nil {
		// Log warning but don't fail startup (consistent with other loaders)
		a.Logger.Warn().Err(err).Msg("Failed to load variables from files")
	}

	// Load variables from .env file (takes precedence over TOML variables)
	// This allows API keys to be stored in .env files for security
	if err := a.StorageManager.LoadEnvFile(context.Background(), ".env"); err != nil {
		// Log warning but don't fail startup (consistent with other loaders)
		a.Logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	// Phase 2: Perform {key-name} replacement in config after storage initialization
	// This replaces any {key-name} references in config values with actual KV store values
	// Must happen BEFORE the LLM and mailbox services read their credentials
	ctx := context.Background()
	kvMap, err := a.StorageManager.KeyValueStorage().GetAll(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
	} else if len(kvMap) > 0 {
		if err := common.ReplaceInStruct(a.Config, kvMap, a.Logger); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to replace key references in config")
		} else {
			a.Logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
		}
	} else {
		a.Logger.Debug().Msg("No key/value pairs found, skipping config replacement")
	}

	return nil
}

// initServices initializes all business services in dependency order
func (a *App) initServices() error {
	// Kill llama-server processes orphaned by a previous run before any
	// managed server binds its port
	if err := local.CleanupOrphanedProcesses(nil, a.Logger); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to clean up orphaned llama-server processes")
	}

	// 1. Embedding server. Startup failure is not fatal: ingest stores
	// chunks without vectors and the backfill picks them up once the
	// server is available.
	var embedServer *local.EmbedServer
	if a.Config.Local.EmbedModel == "" {
		a.Logger.Warn().Msg("No embedding model configured - semantic retrieval disabled")
	} else {
		modelPath := filepath.Join(a.Config.Local.ModelDir, a.Config.Local.EmbedModel)
		server, err := local.NewEmbedServer(
			a.Config.Local.LlamaDir,
			modelPath,
			a.Config.Local.EmbedPort,
			a.Config.Local.ThreadCount,
			a.Config.Local.GPULayers,
			a.Logger,
		)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to start embedding server - semantic retrieval disabled")
			a.Logger.Info().Msg("To enable retrieval, install llama-server and place the embedding model under local.model_dir")
		} else {
			embedServer = server
		}
	}

	a.EmbeddingService = embeddings.NewService(
		embedServer,
		a.Config.Local.EmbedModel,
		a.Config.Local.EmbedDim,
		a.Logger,
	)

	// 2. Embedding backfill coordinator, driven by trigger events
	a.Coordinator = embeddings.NewCoordinator(
		a.EmbeddingService,
		a.StorageManager.ChunkStorage(),
		a.EventService,
		a.Logger,
	)
	if err := a.Coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start embedding coordinator: %w", err)
	}

	// 3. Retrieval provider over stored chunks
	a.RetrievalProvider = retrieval.NewProvider(
		a.StorageManager.ChunkStorage(),
		a.EmbeddingService,
		&a.Config.Retrieval,
		a.Logger,
	)

	// 4. Generation backends. The hosted provider is shared by every
	// hosted backend the registry constructs; local backends get their
	// own llama-server on first use.
	hosted := llm.NewHostedProvider(a.Config, a.StorageManager.KeyValueStorage(), a.Logger)

	defaultRef := models.ParseBackendRef(a.Config.Query.DefaultBackend)
	if defaultRef.Kind == models.BackendHosted {
		if err := hosted.VerifyDefaultKey(context.Background()); err != nil {
			return fmt.Errorf("default backend is unusable: %w", err)
		}
	}

	a.Registry = llm.NewRegistry(a.Config, hosted, a.Logger)
	a.Logger.Debug().
		Int("backends", len(a.Registry.List())).
		Str("default", defaultRef.String()).
		Msg("Backend registry initialized")

	// 5. Query resolver
	a.Resolver = resolver.NewService(
		a.RetrievalProvider,
		a.Registry,
		a.EventService,
		&a.Config.Query,
		a.Logger,
	)

	// 6. Document pipeline services
	a.TransformService = transform.NewService(a.Logger)
	a.PDFExtractor = pdf.NewExtractor(a.Logger)
	a.PDFService = pdf.NewService(a.Logger)

	a.IngestService = ingest.NewService(
		a.StorageManager,
		a.EmbeddingService,
		a.PDFExtractor,
		a.TransformService,
		a.EventService,
		a.Config,
		a.Logger,
	)
	a.Logger.Debug().
		Str("input_dir", a.Config.Ingest.InputDir).
		Bool("mailbox_enabled", a.Config.Mailbox.Enabled).
		Msg("Ingest service initialized")

	// 7. Maintenance scheduler
	if err := a.initScheduler(); err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	return nil
}

// initScheduler registers the background maintenance jobs and starts
// the scheduler
func (a *App) initScheduler() error {
	schedulerService := scheduler.NewService(a.Logger)
	a.SchedulerService = schedulerService

	if !a.Config.Scheduler.Enabled {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	err := schedulerService.RegisterJob(
		"badger-gc",
		a.Config.Scheduler.GCSchedule,
		"Badger value-log garbage collection",
		func() error {
			if err := a.StorageManager.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				return err
			}
			return nil
		},
	)
	if err != nil {
		return err
	}

	err = schedulerService.RegisterJob(
		"ingest-scan",
		a.Config.Scheduler.IngestSchedule,
		"Scan the input directory for new documents",
		func() error {
			_, err := a.IngestService.ScanInputDir(context.Background())
			return err
		},
	)
	if err != nil {
		return err
	}

	err = schedulerService.RegisterJob(
		"embedding-backfill",
		a.Config.Scheduler.EmbedSchedule,
		"Embed chunks stored while the embedding server was down",
		func() error {
			return a.EventService.PublishSync(context.Background(), interfaces.Event{
				Type: interfaces.EventEmbeddingTriggered,
				Payload: map[string]interface{}{
					"source": "scheduler",
				},
			})
		},
	)
	if err != nil {
		return err
	}

	if a.Config.Mailbox.Enabled {
		err = schedulerService.RegisterJob(
			"mailbox-poll",
			a.Config.Mailbox.Schedule,
			"Poll the IMAP mailbox for new documents",
			func() error {
				_, err := a.IngestService.PollMailbox(context.Background())
				return err
			},
		)
		if err != nil {
			return err
		}
	}

	return schedulerService.Start()
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	// WSHandler already initialized in New() so the activity stream
	// covers service startup
	a.APIHandler = handlers.NewAPIHandler(a.StorageManager, a.Registry)

	a.QueryHandler = handlers.NewQueryHandler(a.Resolver, a.Logger)

	a.ModelsHandler = handlers.NewModelsHandler(a.Registry, a.Config.Query.DefaultBackend, a.Logger)

	a.DocumentHandler = handlers.NewDocumentHandler(
		a.IngestService,
		a.TransformService,
		a.PDFService,
		a.StorageManager,
		a.EventService,
		a.Logger,
	)

	a.SearchHandler = handlers.NewSearchHandler(a.RetrievalProvider, a.Logger)

	a.IngestHandler = handlers.NewIngestHandler(a.IngestService, a.Logger)

	a.StatusHandler = handlers.NewStatusHandler(a.StorageManager, a.IngestService, a.SchedulerService, a.Logger)

	a.Logger.Debug().Msg("HTTP handlers initialized")
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop scheduled jobs first so nothing new enters the pipeline
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Drain the WebSocket log stream
	if a.wsWriter != nil {
		if err := a.wsWriter.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close WebSocket log writer")
		}
	}

	// Stop every constructed generation backend (local llama-servers)
	if a.Registry != nil {
		if err := a.Registry.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close backend registry")
		}
	}

	// Stop the embedding server
	if a.EmbeddingService != nil {
		if err := a.EmbeddingService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close embedding service")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
