package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// handleAsk implements the ask tool
func handleAsk(resolverService interfaces.QueryResolver, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse question parameter (required)
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: question parameter is required"),
				},
			}, nil
		}

		// Parse result_count (0 lets the resolver apply its configured default)
		resultCount := request.GetInt("result_count", 0)

		// Parse backend identifier (empty selects the default hosted backend)
		ref := models.ParseBackendRef(request.GetString("backend", ""))

		// Resolve the question. Pipeline failures come back inside the
		// answer body; only an unknown backend reference is an error here.
		answer, err := resolverService.Resolve(ctx, question, resultCount, ref)
		if err != nil {
			logger.Error().Err(err).Str("backend", ref.String()).Msg("Resolve failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Query error: %v", err)),
				},
			}, nil
		}

		// Format answer as markdown
		markdown := formatAnswer(question, ref, answer)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleSearchChunks implements the search_chunks tool
func handleSearchChunks(retrieval interfaces.RetrievalProvider, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse query parameter (required)
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: query parameter is required"),
				},
			}, nil
		}

		// Parse limit (default: 10; the retrieval source enforces the
		// configured maximum)
		limit := request.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}

		source, err := retrieval.Source(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("Search unavailable: vector store is not ready")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Semantic search unavailable: %v", err)),
				},
			}, nil
		}

		chunks, err := source.Search(ctx, query, limit)
		if err != nil {
			logger.Error().Err(err).Msg("Search failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Search error: %v", err)),
				},
			}, nil
		}

		// Format results as markdown
		markdown := formatChunkResults(query, chunks)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleGetDocument implements the get_document tool
func handleGetDocument(documents interfaces.DocumentStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse document_id parameter (required)
		docID, err := request.RequireString("document_id")
		if err != nil || docID == "" {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent("Error: document_id parameter is required"),
				},
			}, nil
		}

		// Retrieve document
		doc, err := documents.GetDocument(docID)
		if err != nil {
			logger.Error().Err(err).Str("doc_id", docID).Msg("GetDocument failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Document not found: %v", err)),
				},
			}, nil
		}

		// Format as markdown
		markdown := formatDocument(doc)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleListDocuments implements the list_documents tool
func handleListDocuments(documents interfaces.DocumentStorage, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// Parse limit (default: 20)
		limit := request.GetInt("limit", 20)

		// Parse source_type filter
		sourceType := request.GetString("source_type", "")

		docs, err := documents.ListDocuments(&interfaces.ListOptions{
			SourceType: sourceType,
			Limit:      limit,
		})
		if err != nil {
			logger.Error().Err(err).Msg("List documents failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("List error: %v", err)),
				},
			}, nil
		}

		// Format results as markdown
		markdown := formatDocumentList(docs, limit)
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}

// handleIndexStatus implements the index_status tool
func handleIndexStatus(documents interfaces.DocumentStorage, registry interfaces.BackendRegistry, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := documents.GetStats()
		if err != nil {
			logger.Error().Err(err).Msg("GetStats failed")
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(fmt.Sprintf("Status error: %v", err)),
				},
			}, nil
		}

		// Format as markdown
		markdown := formatIndexStatus(stats, registry.List())
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.NewTextContent(markdown),
			},
		}, nil
	}
}
