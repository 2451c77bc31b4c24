package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/counselai/counsel/internal/retrieval"
	"github.com/counselai/counsel/internal/websearch"
)

const defaultMaxContextTokens = 4000

// composer assembles the context block injected into an agent's system
// prompt, keeping the injected content under a token budget by dropping the
// lowest-scoring chunks first.
type composer struct {
	maxContextTokens int
}

func newComposer(maxContextTokens int) *composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &composer{maxContextTokens: maxContextTokens}
}

// buildEnrichment renders retrieved chunks and web results into prompt
// sections. Returns "" when there is nothing to inject.
func (c *composer) buildEnrichment(chunks []retrieval.ContextChunk, web []websearch.Result) string {
	var sb strings.Builder

	sorted := make([]retrieval.ContextChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	contextHeader := "[Retrieved Context]\n"
	remaining := c.maxContextTokens - estimateTokens(contextHeader)

	var selected []string
	for _, ch := range sorted {
		entry := formatChunk(ch)
		tokens := estimateTokens(entry)
		if tokens > remaining {
			continue
		}
		selected = append(selected, entry)
		remaining -= tokens
	}

	if len(selected) > 0 {
		sb.WriteString(contextHeader)
		for _, entry := range selected {
			sb.WriteString(entry)
		}
	}

	if len(web) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("[Web Research]\n")
		for _, r := range web {
			sb.WriteString(fmt.Sprintf("- %s (%s)\n  %s\n", r.Title, r.URL, r.Snippet))
		}
	}

	return sb.String()
}

func formatChunk(ch retrieval.ContextChunk) string {
	return fmt.Sprintf("(Score: %.2f, Source: %s:%d)\n%s\n\n", ch.Score, ch.DocumentID, ch.ChunkIndex, ch.Text)
}

// estimateTokens uses the rough 4 chars per token heuristic.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
