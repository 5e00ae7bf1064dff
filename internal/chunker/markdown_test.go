package chunker

import (
	"strings"
	"testing"
)

// TestMarkdown_SplitsAtHeaders verifies H1/H2 boundaries and header path
// metadata.
func TestMarkdown_SplitsAtHeaders(t *testing.T) {
	input := `# Getting Started

Introduction text here.

## Installation

Install steps here.

## Configuration

Config details here.
`

	splitter := NewMarkdown()
	frags, err := splitter.Split(input)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(frags) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(frags))
	}

	expectedPaths := []string{
		"# Getting Started",
		"# Getting Started > ## Installation",
		"# Getting Started > ## Configuration",
	}
	for i, want := range expectedPaths {
		got, _ := frags[i].Metadata["header_path"].(string)
		if got != want {
			t.Errorf("fragment %d header_path: expected %q, got %q", i, want, got)
		}
	}

	if !strings.Contains(frags[1].Text, "Install steps here") {
		t.Errorf("fragment 1 missing expected content")
	}
	if !strings.HasPrefix(frags[1].Text, "## Installation") {
		t.Errorf("fragment 1 should start at its heading line, got %q", frags[1].Text[:20])
	}
}

// TestMarkdown_FullCoverage verifies concatenating fragments reproduces the
// document, including any preamble before the first header.
func TestMarkdown_FullCoverage(t *testing.T) {
	input := "preamble before any header\n\n# One\n\nbody one\n\n## Sub\n\nsub body\n\n# Two\n\nbody two\n"

	splitter := NewMarkdown()
	frags, err := splitter.Split(input)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	var b strings.Builder
	for _, f := range frags {
		if input[f.StartOffset:f.EndOffset] != f.Text {
			t.Errorf("offsets do not reproduce fragment %d", f.Index)
		}
		b.WriteString(f.Text)
	}
	if b.String() != input {
		t.Errorf("coverage broken:\n got %q\nwant %q", b.String(), input)
	}

	if path, _ := frags[0].Metadata["header_path"].(string); path != "" {
		t.Errorf("preamble fragment should have empty header path, got %q", path)
	}
}

// TestMarkdown_NoHeaders verifies a header-free document becomes a single
// fragment.
func TestMarkdown_NoHeaders(t *testing.T) {
	input := "Just plain text.\n\nNo headers at all.\n"

	splitter := NewMarkdown()
	frags, err := splitter.Split(input)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	if frags[0].Text != input {
		t.Errorf("fragment should contain the whole document")
	}
}

// TestMarkdown_H3NotABoundary verifies only H1/H2 split; deeper headings
// stay inside their parent fragment.
func TestMarkdown_H3NotABoundary(t *testing.T) {
	input := "# API\n\noverview\n\n## Methods\n\nbody\n\n### Details\n\nfine print\n"

	splitter := NewMarkdown()
	frags, err := splitter.Split(input)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(frags) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(frags))
	}
	if !strings.Contains(frags[1].Text, "### Details") {
		t.Errorf("H3 subsection should remain inside the H2 fragment")
	}
}
