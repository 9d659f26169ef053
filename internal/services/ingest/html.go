package ingest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/responsum/internal/interfaces"
)

// pageExtraction is the normalized result of processing an HTML page
type pageExtraction struct {
	Title    string
	Markdown string
	Metadata map[string]interface{}
}

// extractHTML parses an HTML page, prunes boilerplate, and converts the
// main content to markdown. baseURL resolves relative links.
func extractHTML(transform interfaces.TransformService, htmlContent, baseURL string) (*pageExtraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := htmlTitle(doc)
	metadata := htmlMetadata(doc)

	doc.Find("script, style, noscript, nav, header, footer, aside").Remove()

	content := doc.Find("main, article, [role=main]").First()
	if content.Length() == 0 {
		content = doc.Find("body")
	}
	if content.Length() == 0 {
		content = doc.Selection
	}

	contentHTML, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize content: %w", err)
	}

	markdown, err := transform.HTMLToMarkdown(contentHTML, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to convert content to markdown: %w", err)
	}

	return &pageExtraction{
		Title:    title,
		Markdown: strings.TrimSpace(markdown),
		Metadata: metadata,
	}, nil
}

// htmlTitle walks the usual sources in order of reliability
func htmlTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, ok := doc.Find("meta[property='og:title']").Attr("content"); ok {
		if trimmed := strings.TrimSpace(ogTitle); trimmed != "" {
			return trimmed
		}
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return "Untitled"
}

func htmlMetadata(doc *goquery.Document) map[string]interface{} {
	metadata := make(map[string]interface{})

	if description, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		if trimmed := strings.TrimSpace(description); trimmed != "" {
			metadata["description"] = trimmed
		}
	}
	if lang, ok := doc.Find("html").Attr("lang"); ok && lang != "" {
		metadata["language"] = lang
	}
	if canonical, ok := doc.Find("link[rel='canonical']").Attr("href"); ok && canonical != "" {
		metadata["canonical_url"] = canonical
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}
