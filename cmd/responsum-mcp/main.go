package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/services/embeddings"
	"github.com/ternarybob/responsum/internal/services/llm"
	"github.com/ternarybob/responsum/internal/services/llm/local"
	"github.com/ternarybob/responsum/internal/services/resolver"
	"github.com/ternarybob/responsum/internal/services/retrieval"
	"github.com/ternarybob/responsum/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("RESPONSUM_CONFIG")
	if configPath == "" {
		configPath = "responsum.toml"
	}

	// Phase 1: Load config without KV replacement (storage not initialized yet)
	config, err := common.LoadFromFile(nil, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Initialize storage
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Phase 2: seed the key/value store and resolve {key-name} references
	// so the hosted backends can read their API keys
	ctx := context.Background()
	if err := storageManager.LoadVariablesFromFiles(ctx, config.Variables.Dir); err != nil {
		logger.Warn().Err(err).Msg("Failed to load variables from files")
	}
	if err := storageManager.LoadEnvFile(ctx, ".env"); err != nil {
		logger.Warn().Err(err).Msg("Failed to load .env file")
	}
	if kvMap, err := storageManager.KeyValueStorage().GetAll(ctx); err == nil && len(kvMap) > 0 {
		if err := common.ReplaceInStruct(config, kvMap, logger); err != nil {
			logger.Warn().Err(err).Msg("Failed to replace key references in config")
		}
	}

	// The storage lock guarantees no other instance is running, so any
	// llama-server found here was orphaned by a previous run
	if err := local.CleanupOrphanedProcesses(nil, logger); err != nil {
		logger.Warn().Err(err).Msg("Failed to clean up orphaned llama-server processes")
	}

	// Embedding server is optional here: without it the ask tool answers
	// without document context and search_chunks reports unavailable
	var embedServer *local.EmbedServer
	if config.Local.EmbedModel != "" {
		modelPath := filepath.Join(config.Local.ModelDir, config.Local.EmbedModel)
		embedServer, err = local.NewEmbedServer(
			config.Local.LlamaDir,
			modelPath,
			config.Local.EmbedPort,
			config.Local.ThreadCount,
			config.Local.GPULayers,
			logger,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Embedding server unavailable - tools run without semantic retrieval")
		}
	}

	embeddingService := embeddings.NewService(embedServer, config.Local.EmbedModel, config.Local.EmbedDim, logger)
	defer embeddingService.Close()

	// Initialize retrieval over stored chunks
	retrievalProvider := retrieval.NewProvider(
		storageManager.ChunkStorage(),
		embeddingService,
		&config.Retrieval,
		logger,
	)

	// Initialize generation backends
	hosted := llm.NewHostedProvider(config, storageManager.KeyValueStorage(), logger)
	registry := llm.NewRegistry(config, hosted, logger)
	defer registry.Close()

	// Resolver without an event service: MCP sessions have no activity stream
	resolverService := resolver.NewService(retrievalProvider, registry, nil, &config.Query, logger)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"responsum",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register query tools
	mcpServer.AddTool(createAskTool(), handleAsk(resolverService, logger))
	mcpServer.AddTool(createSearchChunksTool(), handleSearchChunks(retrievalProvider, logger))

	// Register document tools
	mcpServer.AddTool(createGetDocumentTool(), handleGetDocument(storageManager.DocumentStorage(), logger))
	mcpServer.AddTool(createListDocumentsTool(), handleListDocuments(storageManager.DocumentStorage(), logger))

	// Register status tool
	mcpServer.AddTool(createIndexStatusTool(), handleIndexStatus(storageManager.DocumentStorage(), registry, logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
