package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

const lastRunKeyPrefix = "ingest_last_run_"

// supportedExtensions lists the file types the directory scanner picks up
var supportedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
}

// Service turns external content into stored, embedded chunks. Every
// source funnels through the same normalize, chunk, embed, save path so
// retrieval sees one corpus no matter where documents came from.
type Service struct {
	documents interfaces.DocumentStorage
	chunks    interfaces.ChunkStorage
	kv        interfaces.KeyValueStorage
	embedding interfaces.EmbeddingService
	pdf       interfaces.PDFExtractor
	transform interfaces.TransformService
	fetcher   *Fetcher
	mailbox   *Mailbox
	github    *GitHubSource
	events    interfaces.EventService
	config    *common.IngestConfig
	logger    arbor.ILogger

	mu       sync.Mutex
	lastRuns map[string]*models.IngestRun
}

var _ interfaces.IngestService = (*Service)(nil)

// NewService creates the ingest service and its source clients
func NewService(
	storage interfaces.StorageManager,
	embedding interfaces.EmbeddingService,
	pdf interfaces.PDFExtractor,
	transform interfaces.TransformService,
	events interfaces.EventService,
	cfg *common.Config,
	logger arbor.ILogger,
) *Service {
	return &Service{
		documents: storage.DocumentStorage(),
		chunks:    storage.ChunkStorage(),
		kv:        storage.KeyValueStorage(),
		embedding: embedding,
		pdf:       pdf,
		transform: transform,
		fetcher:   NewFetcher(&cfg.Fetch, logger),
		mailbox:   NewMailbox(&cfg.Mailbox, logger),
		github:    NewGitHubSource(&cfg.GitHub, logger),
		events:    events,
		config:    &cfg.Ingest,
		logger:    logger,
		lastRuns:  make(map[string]*models.IngestRun),
	}
}

// extraction is the normalized content pulled out of any source
type extraction struct {
	Title    string
	Markdown string
	Text     string
	Metadata map[string]interface{}
}

// IngestFile implements interfaces.IngestService
func (s *Service) IngestFile(ctx context.Context, path string) (*models.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if s.config.MaxFileSize > 0 && info.Size() > int64(s.config.MaxFileSize) {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", s.config.MaxFileSize)
	}

	extracted, err := s.extractFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return nil, fmt.Errorf("file has no extractable text")
	}

	doc := &models.Document{
		SourceType:      models.SourceTypeFile,
		SourceID:        path,
		SourceLabel:     filepath.Base(path),
		Title:           extracted.Title,
		ContentMarkdown: extracted.Markdown,
		ContentText:     extracted.Text,
		Metadata:        extracted.Metadata,
	}
	return s.ingestDocument(ctx, doc)
}

// IngestText implements interfaces.IngestService
func (s *Service) IngestText(ctx context.Context, title, text, sourceLabel string) (*models.Document, error) {
	meta, body := parseFrontMatter(text)

	if title == "" {
		title = frontMatterTitle(meta)
	}
	if title == "" {
		title = markdownTitle(body)
	}
	if sourceLabel == "" {
		sourceLabel = title
	}
	if sourceLabel == "" {
		return nil, fmt.Errorf("a title or source label is required")
	}
	if title == "" {
		title = sourceLabel
	}

	plain := markdownToText(body)
	if strings.TrimSpace(plain) == "" {
		return nil, fmt.Errorf("document has no content")
	}

	doc := &models.Document{
		SourceType:      models.SourceTypeAPI,
		SourceID:        sourceLabel,
		SourceLabel:     sourceLabel,
		Title:           title,
		ContentMarkdown: strings.TrimSpace(body),
		ContentText:     plain,
		Metadata:        meta,
	}
	return s.ingestDocument(ctx, doc)
}

// IngestURL implements interfaces.IngestService
func (s *Service) IngestURL(ctx context.Context, rawURL string) (*models.Document, error) {
	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	// Relative links in the page resolve against the source host
	host := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		host = parsed.Host
	}

	extracted, err := extractHTML(s.transform, page.HTML, host)
	if err != nil {
		return nil, fmt.Errorf("failed to extract page content: %w", err)
	}

	plain := markdownToText(extracted.Markdown)
	if strings.TrimSpace(plain) == "" {
		return nil, fmt.Errorf("page has no extractable content")
	}

	doc := &models.Document{
		SourceType:      models.SourceTypeURL,
		SourceID:        rawURL,
		SourceLabel:     rawURL,
		Title:           extracted.Title,
		ContentMarkdown: extracted.Markdown,
		ContentText:     plain,
		Metadata:        extracted.Metadata,
		URL:             rawURL,
	}
	return s.ingestDocument(ctx, doc)
}

// ScanInputDir implements interfaces.IngestService
func (s *Service) ScanInputDir(ctx context.Context) (*models.IngestRun, error) {
	run := s.newRun(models.IngestSourceDirectory)

	// All logs for a run aggregate under its run ID
	runLogger := s.logger.WithCorrelationId(run.ID)

	inputDir := s.config.InputDir
	if _, err := os.Stat(inputDir); os.IsNotExist(err) {
		runLogger.Debug().Str("dir", inputDir).Msg("Input directory does not exist, nothing to ingest")
		return s.finishRun(ctx, run), nil
	}

	s.publishEvent(ctx, interfaces.EventIngestStarted, map[string]interface{}{
		"run_id":    run.ID,
		"source":    run.Source,
		"timestamp": time.Now(),
	})

	processedDir := s.config.ProcessedDir
	if processedDir == "" {
		processedDir = filepath.Join(inputDir, "processed")
	}

	var paths []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == inputDir {
				return nil
			}
			if strings.HasPrefix(d.Name(), ".") || filepath.Clean(path) == filepath.Clean(processedDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		run.Failures++
		run.LastError = err.Error()
		return s.finishRun(ctx, run), fmt.Errorf("failed to scan %s: %w", inputDir, err)
	}

	runLogger.Info().
		Str("dir", inputDir).
		Int("files", len(paths)).
		Msg("Scanning input directory")

	for _, path := range paths {
		if ctx.Err() != nil {
			run.LastError = ctx.Err().Error()
			break
		}
		run.FilesSeen++

		doc, err := s.IngestFile(ctx, path)
		if err != nil {
			runLogger.Warn().Err(err).Str("file", path).Msg("Failed to ingest file")
			run.Failures++
			run.LastError = err.Error()
			continue
		}
		run.Documents++
		run.Chunks += doc.ChunkCount

		// Failed files stay in place for inspection and retry
		if err := moveToProcessed(path, processedDir); err != nil {
			runLogger.Warn().Err(err).Str("file", path).Msg("Failed to move ingested file")
		}

		s.publishEvent(ctx, interfaces.EventIngestProgress, map[string]interface{}{
			"run_id":    run.ID,
			"source":    run.Source,
			"file":      filepath.Base(path),
			"documents": run.Documents,
			"chunks":    run.Chunks,
			"failures":  run.Failures,
		})
	}

	return s.finishRun(ctx, run), nil
}

// PollMailbox implements interfaces.IngestService
func (s *Service) PollMailbox(ctx context.Context) (*models.IngestRun, error) {
	if !s.mailbox.Configured() {
		return nil, fmt.Errorf("mailbox ingestion is not configured")
	}

	run := s.newRun(models.IngestSourceMailbox)
	s.publishEvent(ctx, interfaces.EventIngestStarted, map[string]interface{}{
		"run_id":    run.ID,
		"source":    run.Source,
		"timestamp": time.Now(),
	})

	handlerFailures := 0
	_, failed, pollErr := s.mailbox.Poll(ctx, func(msg MailMessage) error {
		run.FilesSeen++

		title := strings.TrimSpace(msg.Subject)
		if title == "" {
			title = "Message from " + msg.From
		}

		doc, err := s.ingestDocument(ctx, &models.Document{
			SourceType:      models.SourceTypeMailbox,
			SourceID:        fmt.Sprintf("%s/%d", s.mailbox.config.Username, msg.UID),
			SourceLabel:     title,
			Title:           title,
			ContentMarkdown: msg.Body,
			ContentText:     msg.Body,
			Metadata: map[string]interface{}{
				"from": msg.From,
				"date": msg.Date.Format(time.RFC3339),
			},
		})
		if err != nil {
			handlerFailures++
			run.Failures++
			run.LastError = err.Error()
			return err
		}

		run.Documents++
		run.Chunks += doc.ChunkCount
		s.publishEvent(ctx, interfaces.EventIngestProgress, map[string]interface{}{
			"run_id":    run.ID,
			"source":    run.Source,
			"file":      title,
			"documents": run.Documents,
			"chunks":    run.Chunks,
			"failures":  run.Failures,
		})
		return nil
	})

	// Unreadable messages the handler never saw still count as failures
	run.Failures += failed - handlerFailures
	if pollErr != nil {
		run.LastError = pollErr.Error()
		return s.finishRun(ctx, run), fmt.Errorf("mailbox poll failed: %w", pollErr)
	}

	return s.finishRun(ctx, run), nil
}

// SyncGitHub implements interfaces.IngestService
func (s *Service) SyncGitHub(ctx context.Context) (*models.IngestRun, error) {
	if !s.github.Configured() {
		return nil, fmt.Errorf("github ingestion is not configured")
	}

	run := s.newRun(models.IngestSourceGitHub)
	runLogger := s.logger.WithCorrelationId(run.ID)
	s.publishEvent(ctx, interfaces.EventIngestStarted, map[string]interface{}{
		"run_id":    run.ID,
		"source":    run.Source,
		"timestamp": time.Now(),
	})

	docs, err := s.github.FetchMarkdownFiles(ctx)
	if err != nil {
		run.Failures++
		run.LastError = err.Error()
		return s.finishRun(ctx, run), fmt.Errorf("github sync failed: %w", err)
	}

	for _, repoDoc := range docs {
		if ctx.Err() != nil {
			run.LastError = ctx.Err().Error()
			break
		}
		run.FilesSeen++

		name := strings.TrimSuffix(repoDoc.Name, filepath.Ext(repoDoc.Name))
		extracted := extractMarkdownContent(repoDoc.Content, name)
		if strings.TrimSpace(extracted.Text) == "" {
			runLogger.Debug().Str("path", repoDoc.Path).Msg("Skipping empty file")
			continue
		}

		stored, err := s.ingestDocument(ctx, &models.Document{
			SourceType:      models.SourceTypeGitHub,
			SourceID:        fmt.Sprintf("%s/%s/%s", s.github.config.Owner, s.github.config.Repo, repoDoc.Path),
			SourceLabel:     repoDoc.Name,
			Title:           extracted.Title,
			ContentMarkdown: extracted.Markdown,
			ContentText:     extracted.Text,
			Metadata:        extracted.Metadata,
			URL:             repoDoc.URL,
		})
		if err != nil {
			runLogger.Warn().Err(err).Str("path", repoDoc.Path).Msg("Failed to ingest file")
			run.Failures++
			run.LastError = err.Error()
			continue
		}

		run.Documents++
		run.Chunks += stored.ChunkCount
		s.publishEvent(ctx, interfaces.EventIngestProgress, map[string]interface{}{
			"run_id":    run.ID,
			"source":    run.Source,
			"file":      repoDoc.Name,
			"documents": run.Documents,
			"chunks":    run.Chunks,
			"failures":  run.Failures,
		})
	}

	return s.finishRun(ctx, run), nil
}

// LastRun implements interfaces.IngestService
func (s *Service) LastRun(source string) (*models.IngestRun, bool) {
	s.mu.Lock()
	run, ok := s.lastRuns[source]
	s.mu.Unlock()
	if ok {
		return run, true
	}

	// Fall back to the persisted record so status survives restarts
	data, err := s.kv.Get(context.Background(), lastRunKeyPrefix+source)
	if err != nil {
		return nil, false
	}
	var stored models.IngestRun
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, false
	}

	s.mu.Lock()
	s.lastRuns[source] = &stored
	s.mu.Unlock()
	return &stored, true
}

// ingestDocument chunks, embeds, and stores a normalized document. A
// document from the same source replaces its previous version and keeps
// a stable ID.
func (s *Service) ingestDocument(ctx context.Context, doc *models.Document) (*models.Document, error) {
	now := time.Now()

	if existing, err := s.documents.GetDocumentBySource(doc.SourceType, doc.SourceID); err == nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		if err := s.chunks.DeleteChunksByDocument(doc.ID); err != nil {
			return nil, fmt.Errorf("failed to clear old chunks: %w", err)
		}
	} else {
		doc.ID = common.NewDocumentID()
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	pieces := ChunkText(doc.ContentText, s.config.ChunkSize, s.config.ChunkOverlap)

	embeddable := s.embedding != nil && s.embedding.IsAvailable(ctx)
	if !embeddable {
		s.logger.Warn().Str("document", doc.ID).Msg("Embeddings unavailable, chunks stored without vectors")
	}

	chunks := make([]*models.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunk := &models.Chunk{
			ID:          common.NewChunkID(),
			DocumentID:  doc.ID,
			Index:       i,
			Text:        text,
			SourceLabel: doc.SourceLabel,
			CreatedAt:   now,
		}
		if embeddable {
			vector, err := s.embedding.GenerateEmbedding(ctx, text)
			if err != nil {
				s.logger.Warn().Err(err).Str("chunk", chunk.ID).Msg("Failed to embed chunk")
			} else {
				chunk.Embedding = vector
			}
		}
		chunks = append(chunks, chunk)
	}

	if err := s.chunks.SaveChunks(chunks); err != nil {
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}

	doc.ChunkCount = len(chunks)
	if err := s.documents.SaveDocument(doc); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	s.logger.Info().
		Str("document", doc.ID).
		Str("source", doc.SourceLabel).
		Int("chunks", len(chunks)).
		Msg("Document indexed")

	s.publishEvent(ctx, interfaces.EventDocumentIndexed, map[string]interface{}{
		"document_id": doc.ID,
		"title":       doc.Title,
		"source":      doc.SourceLabel,
		"chunks":      len(chunks),
		"timestamp":   time.Now(),
	})

	return doc, nil
}

// extractFile normalizes one on-disk file by extension
func (s *Service) extractFile(ctx context.Context, path string) (*extraction, error) {
	ext := strings.ToLower(filepath.Ext(path))
	base := filepath.Base(path)

	if ext == ".pdf" {
		if s.pdf == nil {
			return nil, fmt.Errorf("pdf extraction is not available")
		}
		text, err := s.pdf.ExtractText(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to extract pdf: %w", err)
		}
		return &extraction{
			Title:    strings.TrimSuffix(base, ext),
			Markdown: text,
			Text:     text,
		}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(raw)

	switch ext {
	case ".md", ".markdown":
		return extractMarkdownContent(content, strings.TrimSuffix(base, ext)), nil
	case ".txt":
		text := strings.TrimSpace(content)
		return &extraction{
			Title:    strings.TrimSuffix(base, ext),
			Markdown: text,
			Text:     text,
		}, nil
	case ".html", ".htm":
		page, err := extractHTML(s.transform, content, "")
		if err != nil {
			return nil, fmt.Errorf("failed to extract html: %w", err)
		}
		return &extraction{
			Title:    page.Title,
			Markdown: page.Markdown,
			Text:     markdownToText(page.Markdown),
			Metadata: page.Metadata,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

// extractMarkdownContent parses front matter and derives a title from it,
// the first heading, or the fallback name, in that order
func extractMarkdownContent(content, fallbackTitle string) *extraction {
	meta, body := parseFrontMatter(content)

	title := frontMatterTitle(meta)
	if title == "" {
		title = markdownTitle(body)
	}
	if title == "" {
		title = fallbackTitle
	}

	return &extraction{
		Title:    title,
		Markdown: strings.TrimSpace(body),
		Text:     markdownToText(body),
		Metadata: meta,
	}
}

func moveToProcessed(path, processedDir string) error {
	if err := os.MkdirAll(processedDir, 0755); err != nil {
		return fmt.Errorf("failed to create processed directory: %w", err)
	}
	target := filepath.Join(processedDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}

func (s *Service) newRun(source string) *models.IngestRun {
	return &models.IngestRun{
		ID:        common.NewRunID(),
		Source:    source,
		StartedAt: time.Now(),
	}
}

// finishRun records the run in memory and the KV store, then announces it
func (s *Service) finishRun(ctx context.Context, run *models.IngestRun) *models.IngestRun {
	run.CompletedAt = time.Now()

	s.mu.Lock()
	s.lastRuns[run.Source] = run
	s.mu.Unlock()

	runLogger := s.logger.WithCorrelationId(run.ID)

	if data, err := json.Marshal(run); err == nil {
		if err := s.kv.Set(ctx, lastRunKeyPrefix+run.Source, string(data), "Last ingest run for "+run.Source); err != nil {
			runLogger.Warn().Err(err).Msg("Failed to persist ingest run")
		}
	}

	runLogger.Info().
		Str("run", run.ID).
		Str("source", run.Source).
		Int("files", run.FilesSeen).
		Int("documents", run.Documents).
		Int("chunks", run.Chunks).
		Int("failures", run.Failures).
		Int64("duration_ms", run.CompletedAt.Sub(run.StartedAt).Milliseconds()).
		Msg("Ingest run completed")

	s.publishEvent(ctx, interfaces.EventIngestCompleted, map[string]interface{}{
		"run_id":    run.ID,
		"source":    run.Source,
		"documents": run.Documents,
		"chunks":    run.Chunks,
		"failures":  run.Failures,
		"timestamp": time.Now(),
	})

	return run
}

func (s *Service) publishEvent(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload})
}
