package ingest

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// markdownParser is shared across extractions; goldmark parsers are
// safe for concurrent use.
var markdownParser = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
)

var blankRunPattern = regexp.MustCompile(`\n{3,}`)

// parseFrontMatter splits a leading YAML front matter block from the
// markdown body. Returns nil metadata when no block is present or the
// block does not parse.
func parseFrontMatter(content string) (map[string]interface{}, string) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, content
	}

	end := strings.Index(content[4:], "\n---")
	if end == -1 {
		return nil, content
	}

	block := content[4 : 4+end]
	body := content[4+end+4:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	meta := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil || len(meta) == 0 {
		return nil, content
	}

	return meta, strings.TrimLeft(body, "\n")
}

// frontMatterTitle pulls a title string out of parsed front matter
func frontMatterTitle(meta map[string]interface{}) string {
	if meta == nil {
		return ""
	}
	if title, ok := meta["title"].(string); ok {
		return strings.TrimSpace(title)
	}
	return ""
}

// markdownTitle returns the text of the first heading in the document,
// or an empty string when there is none.
func markdownTitle(markdown string) string {
	source := []byte(markdown)
	doc := markdownParser.Parser().Parse(gtext.NewReader(source))

	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || title != "" {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			title = headingText(heading, source)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(title)
}

func headingText(heading *ast.Heading, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(heading, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if textNode, ok := n.(*ast.Text); ok {
				b.Write(textNode.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// markdownToText flattens markdown into plain text for chunking and
// embedding. Block structure becomes blank lines; inline markup is
// dropped while its text is kept.
func markdownToText(markdown string) string {
	source := []byte(markdown)
	doc := markdownParser.Parser().Parse(gtext.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.Kind() {
			case ast.KindParagraph, ast.KindHeading, ast.KindBlockquote, ast.KindList:
				b.WriteString("\n\n")
			case ast.KindListItem:
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindText:
			textNode := n.(*ast.Text)
			b.Write(textNode.Segment.Value(source))
			if textNode.SoftLineBreak() || textNode.HardLineBreak() {
				b.WriteByte('\n')
			}
		case ast.KindFencedCodeBlock:
			writeCodeLines(&b, source, n.(*ast.FencedCodeBlock).Lines())
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case ast.KindCodeBlock:
			writeCodeLines(&b, source, n.(*ast.CodeBlock).Lines())
			b.WriteString("\n")
			return ast.WalkSkipChildren, nil
		case ast.KindAutoLink:
			link := n.(*ast.AutoLink)
			b.Write(link.URL(source))
		}
		return ast.WalkContinue, nil
	})

	text := blankRunPattern.ReplaceAllString(b.String(), "\n\n")
	return strings.TrimSpace(text)
}

func writeCodeLines(b *strings.Builder, source []byte, lines *gtext.Segments) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(source))
	}
}
