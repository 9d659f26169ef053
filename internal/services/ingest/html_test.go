package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/services/transform"
)

const samplePage = `<!DOCTYPE html>
<html lang="en">
<head>
<title>Cache Servers</title>
<meta name="description" content="Ports used by cache servers">
<script>console.log("tracking");</script>
</head>
<body>
<nav><a href="/home">Home</a></nav>
<main>
<h1>Cache Servers</h1>
<p>Redis listens on <strong>6379</strong>.</p>
</main>
<footer>Copyright</footer>
</body>
</html>`

func TestExtractHTML(t *testing.T) {
	svc := transform.NewService(arbor.NewLogger())

	page, err := extractHTML(svc, samplePage, "")
	require.NoError(t, err)

	assert.Equal(t, "Cache Servers", page.Title)
	assert.Contains(t, page.Markdown, "Redis listens on")
	assert.Contains(t, page.Markdown, "6379")
	assert.NotContains(t, page.Markdown, "tracking")
	assert.NotContains(t, page.Markdown, "Copyright")
	assert.NotContains(t, page.Markdown, "Home")
	assert.Equal(t, "Ports used by cache servers", page.Metadata["description"])
	assert.Equal(t, "en", page.Metadata["language"])
}

func TestExtractHTMLTitleFallbacks(t *testing.T) {
	svc := transform.NewService(arbor.NewLogger())

	page, err := extractHTML(svc, `<html><head><meta property="og:title" content="OG Title"></head><body><p>x</p></body></html>`, "")
	require.NoError(t, err)
	assert.Equal(t, "OG Title", page.Title)

	page, err = extractHTML(svc, `<html><body><h1>Heading Title</h1></body></html>`, "")
	require.NoError(t, err)
	assert.Equal(t, "Heading Title", page.Title)

	page, err = extractHTML(svc, `<html><body><p>nothing</p></body></html>`, "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", page.Title)
}

func TestExtractHTMLNoMainFallsBackToBody(t *testing.T) {
	svc := transform.NewService(arbor.NewLogger())

	page, err := extractHTML(svc, `<html><body><p>Plain body content.</p></body></html>`, "")
	require.NoError(t, err)
	assert.Contains(t, page.Markdown, "Plain body content.")
}
