package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createAskTool returns the ask tool definition
func createAskTool() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Answer a question using retrieval-augmented generation over the indexed documents"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithNumber("result_count",
			mcp.Description("Number of context chunks to retrieve (default: 3)"),
		),
		mcp.WithString("backend",
			mcp.Description("Generation backend: 'hosted' (default), a hosted model name, or a local identifier like 'local-gpt2'"),
		),
	)
}

// createSearchChunksTool returns the search_chunks tool definition
func createSearchChunksTool() mcp.Tool {
	return mcp.NewTool("search_chunks",
		mcp.WithDescription("Semantic search over indexed document chunks, returning ranked matches without generation"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query text"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum chunks to return (default: 10)"),
		),
	)
}

// createGetDocumentTool returns the get_document tool definition
func createGetDocumentTool() mcp.Tool {
	return mcp.NewTool("get_document",
		mcp.WithDescription("Retrieve a single indexed document by its unique ID"),
		mcp.WithString("document_id",
			mcp.Required(),
			mcp.Description("Document ID (format: doc_{uuid})"),
		),
	)
}

// createListDocumentsTool returns the list_documents tool definition
func createListDocumentsTool() mcp.Tool {
	return mcp.NewTool("list_documents",
		mcp.WithDescription("List indexed documents, optionally filtered by source type"),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 20)"),
		),
		mcp.WithString("source_type",
			mcp.Description("Filter: file, url, mailbox, github, api"),
		),
	)
}

// createIndexStatusTool returns the index_status tool definition
func createIndexStatusTool() mcp.Tool {
	return mcp.NewTool("index_status",
		mcp.WithDescription("Report index statistics and available generation backends"),
	)
}
