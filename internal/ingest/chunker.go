package ingest

import (
	"regexp"
	"strings"
)

const (
	defaultChunkSize    = 1200 // bytes per chunk, soft target
	defaultChunkOverlap = 2    // sentences carried into the next chunk
)

var sentenceSplitter = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Chunker splits extracted text into overlapping chunks. Sentences are packed
// until the byte target is reached, then the last overlap sentences are
// repeated at the start of the next chunk so clause boundaries survive
// retrieval. Splitting is deterministic: the same text always yields the same
// chunks in the same order.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker creates a Chunker. Non-positive arguments fall back to defaults.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = defaultChunkOverlap
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Split returns the chunks of text in document order. Empty or
// whitespace-only text yields no chunks. Text after the final sentence
// terminator (signature blocks, headings, trailing lists) is kept as one
// extra sentence so nothing is dropped from the index.
func (c *Chunker) Split(text string) []string {
	matches := sentenceSplitter.FindAllStringIndex(text, -1)

	var sentences []string
	last := 0
	for _, m := range matches {
		if s := strings.TrimSpace(text[m[0]:m[1]]); s != "" {
			sentences = append(sentences, s)
		}
		last = m[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		sentences = append(sentences, tail)
	}
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	i := 0
	for i < len(sentences) {
		end := i + 1
		size := len(sentences[i])
		for end < len(sentences) && size+1+len(sentences[end]) <= c.chunkSize {
			size += 1 + len(sentences[end])
			end++
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		next := end - c.overlap
		if next <= i {
			next = i + 1
		}
		i = next
	}
	return chunks
}
