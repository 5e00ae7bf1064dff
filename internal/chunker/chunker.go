// Package chunker splits extracted document text into ordered, overlapping
// fragments. Every strategy guarantees full coverage of the input (no
// characters silently dropped), deterministic output, and byte offsets that
// trace each fragment back to its source span.
package chunker

import (
	"fmt"
	"regexp"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Default chunking parameters, in characters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Splitter is the capability interface all chunking strategies implement.
// Fragments come back with Index, Text, offsets and strategy metadata set;
// the orchestrator assigns IDs and document ownership.
type Splitter interface {
	Name() string
	Split(text string) ([]rag.Fragment, error)
}

// New selects a strategy by name. Unknown strategies fail with
// rag.ErrConfiguration.
func New(strategy string, size, overlap int) (Splitter, error) {
	switch strategy {
	case "fixed", "":
		return NewFixed(size, overlap)
	case "sentence":
		return NewSentence(size, overlap)
	case "paragraph":
		return NewParagraph(size, overlap)
	case "markdown":
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", rag.ErrConfiguration, strategy)
	}
}

func validateWindow(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", rag.ErrConfiguration, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
			rag.ErrConfiguration, overlap, size)
	}
	return nil
}

// Fixed produces fixed-length character windows advancing by size-overlap.
// The final fragment may be shorter than size.
type Fixed struct {
	size    int
	overlap int
}

// NewFixed creates a fixed-window splitter. size and overlap are measured
// in characters (runes), so multi-byte input never splits mid-character.
func NewFixed(size, overlap int) (*Fixed, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Fixed{size: size, overlap: overlap}, nil
}

func (f *Fixed) Name() string { return "fixed" }

func (f *Fixed) Split(text string) ([]rag.Fragment, error) {
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	offsets := byteOffsets(text)
	step := f.size - f.overlap

	var frags []rag.Fragment
	for start := 0; start < len(runes); start += step {
		end := start + f.size
		if end > len(runes) {
			end = len(runes)
		}

		frags = append(frags, rag.Fragment{
			Index:       len(frags),
			Text:        string(runes[start:end]),
			StartOffset: offsets[start],
			EndOffset:   offsets[end],
			Metadata:    map[string]any{"strategy": f.Name()},
		})

		if end == len(runes) {
			break
		}
	}

	return frags, nil
}

// byteOffsets maps rune index -> byte offset, with one trailing entry for
// the end of the string.
func byteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))
	return offsets
}

var (
	sentenceEnd  = regexp.MustCompile(`[.!?]+\s+`)
	paragraphGap = regexp.MustCompile(`\n\s*\n`)
)

// Sentence groups whole sentences into fragments of at most size
// characters. A single sentence longer than size is kept whole so no text
// is ever dropped. Boundary strategies do not overlap.
type Sentence struct {
	size int
}

func NewSentence(size, overlap int) (*Sentence, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Sentence{size: size}, nil
}

func (s *Sentence) Name() string { return "sentence" }

func (s *Sentence) Split(text string) ([]rag.Fragment, error) {
	return groupSegments(text, cutPoints(text, sentenceEnd), s.size, s.Name()), nil
}

// Paragraph groups whole paragraphs (blank-line separated) into fragments
// of at most size characters, falling back to oversize fragments for
// paragraphs that exceed the budget on their own.
type Paragraph struct {
	size int
}

func NewParagraph(size, overlap int) (*Paragraph, error) {
	if err := validateWindow(size, overlap); err != nil {
		return nil, err
	}
	return &Paragraph{size: size}, nil
}

func (p *Paragraph) Name() string { return "paragraph" }

func (p *Paragraph) Split(text string) ([]rag.Fragment, error) {
	return groupSegments(text, cutPoints(text, paragraphGap), p.size, p.Name()), nil
}

// cutPoints returns the ascending byte positions that bound contiguous
// segments of text: 0, the end of each separator match, and len(text).
// Separators stay attached to the preceding segment, which is what keeps
// concatenation of all segments equal to the original input.
func cutPoints(text string, sep *regexp.Regexp) []int {
	cuts := []int{0}
	for _, m := range sep.FindAllStringIndex(text, -1) {
		if m[1] < len(text) {
			cuts = append(cuts, m[1])
		}
	}
	return append(cuts, len(text))
}

// groupSegments greedily merges contiguous segments into fragments no
// larger than size where possible. Every byte of text lands in exactly one
// fragment.
func groupSegments(text string, cuts []int, size int, strategy string) []rag.Fragment {
	if text == "" {
		return nil
	}

	var frags []rag.Fragment
	emit := func(start, end int) {
		frags = append(frags, rag.Fragment{
			Index:       len(frags),
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
			Metadata:    map[string]any{"strategy": strategy},
		})
	}

	start := cuts[0]
	for i := 1; i < len(cuts); i++ {
		end := cuts[i]
		if end-start > size && cuts[i-1] > start {
			emit(start, cuts[i-1])
			start = cuts[i-1]
		}
	}
	emit(start, cuts[len(cuts)-1])

	return frags
}
