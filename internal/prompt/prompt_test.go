package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

func TestBuilder_Default(t *testing.T) {
	b, err := NewBuilder(Template{})
	require.NoError(t, err)

	p := b.Build("what is alpha?", []rag.RetrievalResult{
		{FragmentID: "f1", Text: "alpha is the first letter"},
		{FragmentID: "f2", Text: "beta comes second"},
	})

	assert.Equal(t, DefaultTemplate.System, p.System)
	assert.Contains(t, p.User, "[1] alpha is the first letter")
	assert.Contains(t, p.User, "[2] beta comes second")
	assert.Contains(t, p.User, "Question: what is alpha?")
	assert.NotContains(t, p.User, "{context}")
	assert.NotContains(t, p.User, "{question}")
}

func TestBuilder_CustomTemplate(t *testing.T) {
	b, err := NewBuilder(Template{
		System: "Answer in Spanish.",
		User:   "Docs:\n{context}\nQ: {question}",
	})
	require.NoError(t, err)

	p := b.Build("hola?", []rag.RetrievalResult{{Text: "ctx"}})
	assert.Equal(t, "Answer in Spanish.", p.System)
	assert.Equal(t, "Docs:\n[1] ctx\nQ: hola?", p.User)
}

func TestBuilder_MissingPlaceholder(t *testing.T) {
	_, err := NewBuilder(Template{User: "no context here: {question}"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = NewBuilder(Template{User: "only context: {context}"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestBuilder_UnknownPlaceholder(t *testing.T) {
	_, err := NewBuilder(Template{User: "{context} {question} {tenant}"})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrConfiguration)

	_, err = NewBuilder(Template{
		System: "hello {name}",
		User:   "{context} {question}",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrConfiguration)
}

func TestBuilder_EmptyContext(t *testing.T) {
	b, err := NewBuilder(Template{})
	require.NoError(t, err)

	p := b.Build("q", nil)
	assert.Contains(t, p.User, "(no relevant context found)")
}

func TestFormatContext_Order(t *testing.T) {
	out := FormatContext([]rag.RetrievalResult{
		{Text: "first"},
		{Text: "second"},
		{Text: "third"},
	})
	assert.Equal(t, "[1] first\n\n[2] second\n\n[3] third", out)
}
