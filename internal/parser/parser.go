// Package parser extracts clean UTF-8 text from uploaded files. The
// extracted text is what gets chunked, so normalisation happens exactly
// once, here.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// supportedExtensions maps file extensions to a parse mode. Markdown and
// plain text share the same extraction today; the split exists so the
// chunker can pick a strategy from the extension.
var supportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

// Supported reports whether a filename's extension can be parsed.
func Supported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// IsMarkdown reports whether a filename should be chunked as markdown.
func IsMarkdown(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".md" || ext == ".markdown"
}

// Parse extracts text from raw file bytes. It rejects unsupported
// extensions and invalid UTF-8, strips a leading BOM and normalises CRLF
// line endings.
func Parse(filename string, raw []byte) (string, error) {
	if !Supported(filename) {
		return "", fmt.Errorf("%w: unsupported file type %q", rag.ErrInvalidRequest, filepath.Ext(filename))
	}

	if len(raw) >= len(utf8BOM) && string(raw[:len(utf8BOM)]) == string(utf8BOM) {
		raw = raw[len(utf8BOM):]
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: file %s is not valid UTF-8", rag.ErrInvalidRequest, filename)
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	return text, nil
}
