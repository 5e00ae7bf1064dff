package chunker

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Markdown splits markdown documents at H1 and H2 boundaries. Each fragment
// carries its header hierarchy ("# Title > ## Section") in metadata so
// retrieval keeps section context. Content before the first header becomes
// its own preamble fragment; coverage of the input is exact.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown creates a markdown splitter configured with a goldmark parser.
func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Markdown{parser: md}
}

func (m *Markdown) Name() string { return "markdown" }

func (m *Markdown) Split(input string) ([]rag.Fragment, error) {
	if input == "" {
		return nil, nil
	}
	source := []byte(input)

	reader := text.NewReader(source)
	doc := m.parser.Parser().Parse(reader)

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	// No headers: the whole document is one fragment.
	if len(tree.Items) == 0 {
		return []rag.Fragment{{
			Index:       0,
			Text:        input,
			StartOffset: 0,
			EndOffset:   len(input),
			Metadata:    map[string]any{"strategy": m.Name(), "header_path": ""},
		}}, nil
	}

	var sections []mdSection
	collectSections(doc, source, tree.Items, nil, &sections)

	// Section starts bound the fragments; anything before the first header
	// is the preamble.
	var frags []rag.Fragment
	emit := func(start, end int, path string) {
		if start >= end {
			return
		}
		frags = append(frags, rag.Fragment{
			Index:       len(frags),
			Text:        input[start:end],
			StartOffset: start,
			EndOffset:   end,
			Metadata:    map[string]any{"strategy": m.Name(), "header_path": path},
		})
	}

	if len(sections) > 0 && sections[0].start > 0 {
		emit(0, sections[0].start, "")
	}
	for i, sec := range sections {
		end := len(input)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		emit(sec.start, end, sec.path)
	}

	return frags, nil
}

type mdSection struct {
	start int // byte offset of the heading line
	path  string
}

// collectSections walks TOC items in document order, recording each
// heading's line-start offset and hierarchy path.
func collectSections(doc ast.Node, source []byte, items toc.Items, ancestors []string, out *[]mdSection) {
	for _, item := range items {
		currentPath := append(ancestors, string(item.Title))

		headerNode := findHeaderByID(doc, string(item.ID))
		if headerNode != nil && headerNode.Lines().Len() > 0 {
			// Lines() starts at the heading text; back up to the start of
			// the line so the "#" markers stay inside the fragment.
			off := headerNode.Lines().At(0).Start
			for off > 0 && source[off-1] != '\n' {
				off--
			}
			*out = append(*out, mdSection{start: off, path: formatHeaderPath(currentPath)})
		}

		if len(item.Items) > 0 {
			collectSections(doc, source, item.Items, currentPath, out)
		}
	}
}

// formatHeaderPath builds a header hierarchy string.
// Example: ["Installation", "Prerequisites"] -> "# Installation > ## Prerequisites"
func formatHeaderPath(path []string) string {
	var parts []string
	for i, segment := range path {
		parts = append(parts, fmt.Sprintf("%s %s", strings.Repeat("#", i+1), segment))
	}
	return strings.Join(parts, " > ")
}

// findHeaderByID locates a heading node by its auto-generated ID.
func findHeaderByID(node ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering && n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			headingID, ok := heading.AttributeString("id")
			if ok && string(headingID.([]byte)) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}
