package conv

import (
	"html"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// A single list item is how people write one-line notes; more is a dump.
const maxListItems = 1

var (
	extensions  = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags   = mdhtml.CommonFlags
	stripPolicy = bluemonday.StrictPolicy()
)

// MarkupStats counts the block structures found by the markdown parser.
type MarkupStats struct {
	Headings    int
	ListItems   int
	CodeBlocks  int
	Tables      int
	BlockQuotes int
	Rules       int
}

func Analyze(text string) MarkupStats {
	var st MarkupStats
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(text))

	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if !entering {
			return ast.GoToNext
		}
		switch node.(type) {
		case *ast.Heading:
			st.Headings++
		case *ast.ListItem:
			st.ListItems++
		case *ast.CodeBlock:
			st.CodeBlocks++
		case *ast.Table:
			st.Tables++
		case *ast.BlockQuote:
			st.BlockQuotes++
		case *ast.HorizontalRule:
			st.Rules++
		}
		return ast.GoToNext
	})
	return st
}

// IsMarkdownDump reports whether text is structured markdown (headings,
// fenced code, tables, lists) rather than a sentence with inline emphasis.
func IsMarkdownDump(text string) bool {
	st := Analyze(text)
	return st.Headings > 0 || st.CodeBlocks > 0 || st.Tables > 0 ||
		st.BlockQuotes > 0 || st.Rules > 0 || st.ListItems > maxListItems
}

// HasHTML reports whether text carries HTML markup. Bare angle brackets such
// as generics (List<String>) are not markup unless tags are closed.
func HasHTML(text string) bool {
	if !strings.Contains(text, "<") {
		return false
	}
	if !strings.Contains(text, "</") && !strings.Contains(text, "/>") && !strings.Contains(text, "<!") {
		return false
	}
	return html.UnescapeString(stripPolicy.Sanitize(text)) != text
}

// StripMarkup renders markdown and removes every tag, leaving plain text
// with collapsed whitespace.
func StripMarkup(text string) string {
	p := parser.NewWithExtensions(extensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: htmlFlags})
	rendered := markdown.Render(p.Parse([]byte(text)), renderer)
	plain := html.UnescapeString(stripPolicy.Sanitize(string(rendered)))
	return strings.Join(strings.Fields(plain), " ")
}
