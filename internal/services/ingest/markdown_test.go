package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontMatter(t *testing.T) {
	content := "---\ntitle: Redis Setup\ntags:\n  - cache\n  - ops\n---\n\n# Heading\n\nBody text."

	meta, body := parseFrontMatter(content)

	require.NotNil(t, meta)
	assert.Equal(t, "Redis Setup", meta["title"])
	assert.Contains(t, body, "# Heading")
	assert.Contains(t, body, "Body text.")
	assert.NotContains(t, body, "tags:")
}

func TestParseFrontMatterAbsent(t *testing.T) {
	content := "# Just Markdown\n\nNo front matter here."

	meta, body := parseFrontMatter(content)

	assert.Nil(t, meta)
	assert.Equal(t, content, body)
}

func TestParseFrontMatterUnterminated(t *testing.T) {
	content := "---\ntitle: Broken\nNo closing delimiter."

	meta, body := parseFrontMatter(content)

	assert.Nil(t, meta)
	assert.Equal(t, content, body)
}

func TestParseFrontMatterInvalidYAML(t *testing.T) {
	content := "---\nnot yaml at all\n---\nBody."

	meta, body := parseFrontMatter(content)

	assert.Nil(t, meta)
	assert.Equal(t, content, body)
}

func TestFrontMatterTitle(t *testing.T) {
	assert.Equal(t, "Redis Setup", frontMatterTitle(map[string]interface{}{"title": "Redis Setup"}))
	assert.Empty(t, frontMatterTitle(map[string]interface{}{"title": 42}))
	assert.Empty(t, frontMatterTitle(nil))
}

func TestMarkdownTitle(t *testing.T) {
	assert.Equal(t, "Setup Guide", markdownTitle("# Setup Guide\n\nSome text."))
	assert.Equal(t, "Second Level", markdownTitle("## Second Level\n\nText."))
	assert.Empty(t, markdownTitle("Plain paragraph without headings."))
}

func TestMarkdownToText(t *testing.T) {
	markdown := "# Ports\n\nRedis uses **6379** and Memcached uses *11211*.\n\n- first\n- second\n"

	text := markdownToText(markdown)

	assert.Contains(t, text, "Ports")
	assert.Contains(t, text, "Redis uses 6379 and Memcached uses 11211.")
	assert.Contains(t, text, "first")
	assert.Contains(t, text, "second")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "#")
}

func TestMarkdownToTextKeepsCode(t *testing.T) {
	markdown := "Run this:\n\n```sh\nredis-server --port 6379\n```\n"

	text := markdownToText(markdown)

	assert.Contains(t, text, "redis-server --port 6379")
	assert.NotContains(t, text, "```")
}

func TestMarkdownToTextKeepsLinkText(t *testing.T) {
	text := markdownToText("See the [install guide](https://example.com/install) for details.")

	assert.Contains(t, text, "install guide")
	assert.NotContains(t, text, "https://example.com/install")
}
