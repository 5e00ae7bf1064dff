// Package prompt assembles the final LLM messages from a question and its
// supporting context fragments.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// Placeholders recognised in templates.
const (
	PlaceholderContext  = "{context}"
	PlaceholderQuestion = "{question}"
)

// DefaultTemplate instructs the model to answer strictly from the
// retrieved context and admit when the context does not cover the
// question.
var DefaultTemplate = Template{
	System: "You are a helpful assistant. Answer the user's question using only " +
		"the provided context. If the context does not contain enough information " +
		"to answer, say so instead of guessing.",
	User: "Context:\n{context}\n\nQuestion: {question}",
}

// Template is a prompt pair. The user template must reference both
// placeholders; the system template takes none.
type Template struct {
	System string
	User   string
}

// Builder renders templates into concrete prompts.
type Builder struct {
	template Template
}

var placeholderPattern = regexp.MustCompile(`\{[a-zA-Z_]+\}`)

// NewBuilder validates the template and returns a builder. Unknown
// placeholders and missing required ones are configuration errors, caught
// here rather than at query time.
func NewBuilder(tpl Template) (*Builder, error) {
	if tpl.User == "" {
		tpl = DefaultTemplate
	}

	if !strings.Contains(tpl.User, PlaceholderContext) {
		return nil, fmt.Errorf("%w: user template is missing %s", rag.ErrConfiguration, PlaceholderContext)
	}
	if !strings.Contains(tpl.User, PlaceholderQuestion) {
		return nil, fmt.Errorf("%w: user template is missing %s", rag.ErrConfiguration, PlaceholderQuestion)
	}

	for _, text := range []string{tpl.System, tpl.User} {
		for _, ph := range placeholderPattern.FindAllString(text, -1) {
			if ph != PlaceholderContext && ph != PlaceholderQuestion {
				return nil, fmt.Errorf("%w: unknown placeholder %s in template", rag.ErrConfiguration, ph)
			}
		}
	}

	return &Builder{template: tpl}, nil
}

// Prompt is a rendered system and user message pair.
type Prompt struct {
	System string
	User   string
}

// Build renders the template with the question and numbered context
// blocks. Fragments appear in the order given, each prefixed with [n]
// starting at 1 so answers can cite their sources.
func (b *Builder) Build(question string, contexts []rag.RetrievalResult) Prompt {
	return Prompt{
		System: b.template.System,
		User: strings.NewReplacer(
			PlaceholderContext, FormatContext(contexts),
			PlaceholderQuestion, question,
		).Replace(b.template.User),
	}
}

// FormatContext renders fragments as numbered blocks separated by blank
// lines. With no fragments it returns a marker the model can recognise.
func FormatContext(contexts []rag.RetrievalResult) string {
	if len(contexts) == 0 {
		return "(no relevant context found)"
	}

	var sb strings.Builder
	for i, c := range contexts {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, c.Text)
	}
	return sb.String()
}
