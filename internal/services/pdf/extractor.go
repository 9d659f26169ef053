package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
)

// pageFilePattern matches the page number in pdfcpu's extracted content
// file names regardless of the surrounding prefix.
var pageFilePattern = regexp.MustCompile(`page_(\d+)`)

// pdfStringPattern matches literal strings in a PDF content stream
var pdfStringPattern = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)

// Extractor implements interfaces.PDFExtractor using pdfcpu
type Extractor struct {
	logger  arbor.ILogger
	tempDir string
}

var _ interfaces.PDFExtractor = (*Extractor)(nil)

// NewExtractor creates a new PDF extractor
func NewExtractor(logger arbor.ILogger) *Extractor {
	tempDir := filepath.Join(os.TempDir(), "responsum-pdf")
	os.MkdirAll(tempDir, 0755)

	return &Extractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// ExtractText extracts all text content from a PDF file, pages joined
// with blank lines.
func (e *Extractor) ExtractText(ctx context.Context, path string) (string, error) {
	pages, err := e.ExtractPages(ctx, path)
	if err != nil {
		return "", err
	}

	var parts []string
	for _, page := range pages {
		if page.Text != "" {
			parts = append(parts, page.Text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// ExtractPages extracts text content by page. pdfcpu has no direct text
// extraction, so page content streams are extracted and the string
// operands harvested from them.
func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]interfaces.PDFPageContent, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp(e.tempDir, "pages_")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction directory: %w", err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("Failed to extract PDF content")
		pages := make([]interfaces.PDFPageContent, 0, pageCount)
		for pageNum := 1; pageNum <= pageCount; pageNum++ {
			pages = append(pages, interfaces.PDFPageContent{PageNumber: pageNum})
		}
		return pages, nil
	}

	pageTexts := make(map[int]string)
	entries, _ := os.ReadDir(outDir)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pageFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		pageNum, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = textFromContentStream(string(content))
	}

	pages := make([]interfaces.PDFPageContent, 0, pageCount)
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pages = append(pages, interfaces.PDFPageContent{
			PageNumber: pageNum,
			Text:       pageTexts[pageNum],
		})
	}

	return pages, nil
}

// ExtractWithMetadata performs full extraction including metadata,
// pages, and concatenated text.
func (e *Extractor) ExtractWithMetadata(ctx context.Context, path string) (*interfaces.PDFExtractionResult, error) {
	metadata, err := e.GetMetadata(ctx, path)
	if err != nil {
		return nil, err
	}

	pages, err := e.ExtractPages(ctx, path)
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, page := range pages {
		if page.Text != "" {
			parts = append(parts, page.Text)
		}
	}

	return &interfaces.PDFExtractionResult{
		Metadata: *metadata,
		Pages:    pages,
		FullText: strings.Join(parts, "\n\n"),
	}, nil
}

// GetMetadata retrieves PDF metadata without extracting text content
func (e *Extractor) GetMetadata(ctx context.Context, path string) (*interfaces.PDFMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	metadata := &interfaces.PDFMetadata{
		PageCount:   pdfCtx.PageCount,
		FileSize:    info.Size(),
		IsEncrypted: pdfCtx.Encrypt != nil,
	}

	e.logger.Debug().
		Str("path", path).
		Int("page_count", metadata.PageCount).
		Int64("file_size", metadata.FileSize).
		Bool("encrypted", metadata.IsEncrypted).
		Msg("Extracted PDF metadata")

	return metadata, nil
}

// textFromContentStream harvests the string operands of text-showing
// operators from a decompressed content stream. Lines without Tj or TJ
// carry no text and are skipped.
func textFromContentStream(stream string) string {
	var b strings.Builder
	for _, line := range strings.Split(stream, "\n") {
		if !strings.Contains(line, "Tj") && !strings.Contains(line, "TJ") {
			continue
		}
		matches := pdfStringPattern.FindAllStringSubmatch(line, -1)
		if len(matches) == 0 {
			continue
		}
		for _, match := range matches {
			b.WriteString(unescapePDFString(match[1]))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// unescapePDFString decodes the escape sequences allowed in PDF literal
// strings, including octal codes.
func unescapePDFString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			break
		}
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case '(', ')', '\\':
			b.WriteByte(s[i])
		case '\n':
			// Escaped newline continues the string
		default:
			if s[i] >= '0' && s[i] <= '7' {
				value := 0
				digits := 0
				for i < len(s) && digits < 3 && s[i] >= '0' && s[i] <= '7' {
					value = value*8 + int(s[i]-'0')
					i++
					digits++
				}
				i--
				b.WriteByte(byte(value))
			} else {
				b.WriteByte(s[i])
			}
		}
	}
	return b.String()
}
