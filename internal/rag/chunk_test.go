package rag

import (
	"strings"
	"testing"
)

func TestChunkTextShortInput(t *testing.T) {
	chunks := chunkText("a short paragraph", 1500, 200)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "a short paragraph" {
		t.Fatalf("chunk = %q", chunks[0])
	}
}

func TestChunkTextSplitsLongInput(t *testing.T) {
	para := strings.Repeat("word ", 300)
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	chunks := chunkText(text, 500, 50)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want multiple", len(chunks))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}

func TestChunkTextOverlap(t *testing.T) {
	para1 := strings.Repeat("alpha ", 300)
	para2 := strings.Repeat("beta ", 300)

	chunks := chunkText(para1+"\n\n"+para2, 400, 100)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	// The second chunk must carry the tail of the first.
	if !strings.Contains(chunks[1], "alpha") {
		t.Fatal("second chunk is missing overlap from the first")
	}
}

func TestOverlapTail(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	tail := overlapTail(text, 4) // ~3 words
	words := strings.Fields(tail)
	if len(words) != 3 || words[len(words)-1] != "ten" {
		t.Fatalf("tail = %q, want last three words", tail)
	}

	if got := overlapTail("just two", 100); got != "just two" {
		t.Fatalf("short text tail = %q, want the whole text", got)
	}
}

func TestCountTokens(t *testing.T) {
	if got := countTokens(""); got != 0 {
		t.Fatalf("empty text tokens = %d, want 0", got)
	}
	if got := countTokens("three plain words"); got != 4 {
		t.Fatalf("tokens = %d, want 4", got)
	}
}
