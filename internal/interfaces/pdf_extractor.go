// -----------------------------------------------------------------------
// PDF Extractor Interface - Extract text content from PDF documents
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
)

// PDFPageContent represents extracted content from a single PDF page
type PDFPageContent struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// PDFMetadata contains metadata about a PDF document
type PDFMetadata struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Creator     string `json:"creator,omitempty"`
	Producer    string `json:"producer,omitempty"`
	PageCount   int    `json:"page_count"`
	FileSize    int64  `json:"file_size"`
	IsEncrypted bool   `json:"is_encrypted"`
}

// PDFExtractionResult contains the complete extraction result
type PDFExtractionResult struct {
	Metadata PDFMetadata      `json:"metadata"`
	Pages    []PDFPageContent `json:"pages"`
	FullText string           `json:"full_text"`
}

// PDFExtractor defines the interface for extracting content from PDF documents.
// The path argument is a filesystem path to the PDF file.
type PDFExtractor interface {
	// ExtractText extracts all text content from a PDF file.
	// Returns the full text content concatenated from all pages.
	ExtractText(ctx context.Context, path string) (string, error)

	// ExtractPages extracts text content by page from a PDF.
	// Returns a slice of PDFPageContent with page numbers and text.
	ExtractPages(ctx context.Context, path string) ([]PDFPageContent, error)

	// ExtractWithMetadata performs full extraction including metadata, pages, and text.
	ExtractWithMetadata(ctx context.Context, path string) (*PDFExtractionResult, error)

	// GetMetadata retrieves PDF metadata without extracting text content.
	GetMetadata(ctx context.Context, path string) (*PDFMetadata, error)
}
