package pdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestConvertMarkdownToPDF(t *testing.T) {
	service := NewService(arbor.NewLogger())

	tests := []struct {
		name     string
		markdown string
		title    string
	}{
		{
			name:     "Basic Markdown",
			markdown: "# Title\n\nSome paragraph text.\n\n- Item 1\n- Item 2",
			title:    "Test Document",
		},
		{
			name:     "Empty Markdown",
			markdown: "",
			title:    "Empty Doc",
		},
		{
			name:     "Code Block",
			markdown: "# Header\n\nSome text.\n\n```go\nfunc main() {}\n```",
			title:    "Code Doc",
		},
		{
			name:     "Bold and Italic",
			markdown: "Normal **Bold** *Italic* ***BoldItalic***",
			title:    "Styling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pdfBytes, err := service.ConvertMarkdownToPDF(tt.markdown, tt.title)
			require.NoError(t, err)
			require.NotEmpty(t, pdfBytes)

			// Basic PDF header check
			assert.Equal(t, "%PDF", string(pdfBytes[:4]))
		})
	}
}

func TestConvertMarkdownToPDFStripsFrontmatter(t *testing.T) {
	service := NewService(arbor.NewLogger())

	markdown := "---\ntitle: Hidden\n---\n# Visible Heading\n\nBody."
	pdfBytes, err := service.ConvertMarkdownToPDF(markdown, "Doc")

	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}

func TestStripFrontmatter(t *testing.T) {
	assert.Equal(t, "# Body", stripFrontmatter("---\ntitle: X\n---\n# Body"))
	assert.Equal(t, "# No front matter", stripFrontmatter("# No front matter"))
	assert.Equal(t, "---\nunterminated", stripFrontmatter("---\nunterminated"))
}

func TestTextFromContentStream(t *testing.T) {
	stream := "BT\n/F1 12 Tf\n(Hello World) Tj\nET\nBT\n[(Spl) -20 (it)] TJ\nET"

	text := textFromContentStream(stream)

	assert.Contains(t, text, "Hello World")
	assert.Contains(t, text, "Split")
}

func TestTextFromContentStreamIgnoresNonText(t *testing.T) {
	stream := "q\n1 0 0 1 50 700 cm\n/Im1 Do\nQ"

	assert.Empty(t, textFromContentStream(stream))
}

func TestUnescapePDFString(t *testing.T) {
	assert.Equal(t, "(parens)", unescapePDFString(`\(parens\)`))
	assert.Equal(t, "back\\slash", unescapePDFString(`back\\slash`))
	assert.Equal(t, "line\nbreak", unescapePDFString(`line\nbreak`))
	assert.Equal(t, "A", unescapePDFString(`\101`))
	assert.Equal(t, "plain", unescapePDFString("plain"))
}
