// Package compressor fits retrieved fragments into an LLM context window.
// It keeps the highest-scoring fragments whole and drops the rest once the
// token budget is reached.
package compressor

import (
	"fmt"
	"sort"

	"github.com/DavidOlmos03/rag-base/internal/rag"
)

// DefaultMaxTokens is the context budget used when none is configured.
const DefaultMaxTokens = 2000

// Compressor selects which retrieved fragments enter the prompt.
type Compressor struct {
	maxTokens int
}

// New creates a compressor with the given token budget. A non-positive
// budget falls back to DefaultMaxTokens.
func New(maxTokens int) *Compressor {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Compressor{maxTokens: maxTokens}
}

// MaxTokens reports the configured budget.
func (c *Compressor) MaxTokens() int { return c.maxTokens }

// Compress returns the best-scoring fragments whose combined estimated
// token count fits the budget. Fragments are never truncated; selection
// stops at the first fragment that does not fit, so the output is a
// score-ordered prefix. Input order is not modified.
func (c *Compressor) Compress(results []rag.RetrievalResult) []rag.RetrievalResult {
	if len(results) == 0 {
		return []rag.RetrievalResult{}
	}

	sorted := make([]rag.RetrievalResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	selected := make([]rag.RetrievalResult, 0, len(sorted))
	used := 0
	for _, r := range sorted {
		tokens := EstimateTokens(r.Text)
		if used+tokens > c.maxTokens {
			break
		}
		selected = append(selected, r)
		used += tokens
	}
	return selected
}

// EstimateTokens approximates the token count of a text as one token per
// four bytes, rounded up. The estimate errs high for most natural
// language, which keeps the selected set safely inside the real window.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// Describe summarises a compression pass for logging.
func Describe(in, out []rag.RetrievalResult) string {
	used := 0
	for _, r := range out {
		used += EstimateTokens(r.Text)
	}
	return fmt.Sprintf("%d/%d fragments, ~%d tokens", len(out), len(in), used)
}
