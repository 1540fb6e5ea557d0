package rag

import (
	"regexp"
	"strings"
)

var paragraphSplit = regexp.MustCompile(`\n\s*\n`)

// countTokens approximates token count from word count. Close enough for
// chunk sizing; retrieval quality does not depend on exact counts.
func countTokens(text string) int {
	return len(strings.Fields(text)) * 4 / 3
}

// chunkText splits text into overlapping chunks of roughly chunkSize tokens,
// preferring paragraph boundaries. The tail of each chunk is repeated at the
// head of the next so retrieval never loses context at a boundary.
func chunkText(text string, chunkSize, overlap int) []string {
	paragraphs := paragraphSplit.Split(text, -1)

	var chunks []string
	var current strings.Builder
	currentTokens := 0

	for _, para := range paragraphs {
		paraTokens := countTokens(para)
		if currentTokens+paraTokens > chunkSize && current.Len() > 0 {
			chunk := strings.TrimSpace(current.String())
			chunks = append(chunks, chunk)

			current.Reset()
			current.WriteString(overlapTail(chunk, overlap))
			current.WriteString("\n\n")
			current.WriteString(para)
			currentTokens = countTokens(current.String())
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}

	if tail := strings.TrimSpace(current.String()); tail != "" {
		chunks = append(chunks, tail)
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// overlapTail returns the last ~overlap tokens of text.
func overlapTail(text string, overlap int) string {
	words := strings.Fields(text)
	n := max(1, overlap*3/4)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[len(words)-n:], " ")
}
