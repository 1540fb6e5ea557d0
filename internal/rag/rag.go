// Package rag handles document ingestion, chunking, and retrieval for prompt
// context assembly. Keyword scoring is the default retrieval path; semantic
// retrieval over pgvector kicks in when an embedder is configured.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/svap-labs/svap/internal/embedding"
	"github.com/svap-labs/svap/internal/store/postgres"
)

// Store is the document/chunk persistence the RAG layer depends on.
type Store interface {
	UpsertDocument(ctx context.Context, d postgres.Document) error
	ListDocuments(ctx context.Context, docType string) ([]postgres.Document, error)
	UpsertChunk(ctx context.Context, c postgres.Chunk) error
	ListChunks(ctx context.Context, docType string, limit int) ([]postgres.Chunk, error)
	ListChunksWithoutEmbeddings(ctx context.Context, limit int) ([]postgres.Chunk, error)
	UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding pgvector.Vector) error
	SearchChunksByEmbedding(ctx context.Context, query pgvector.Vector, docType string, limit int) ([]postgres.Chunk, error)
}

const (
	defaultChunkSize    = 1500
	defaultChunkOverlap = 200
	defaultMaxChunks    = 10
)

// Ingester stores documents chunked for retrieval.
type Ingester struct {
	store        Store
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

func NewIngester(store Store, logger *slog.Logger) *Ingester {
	return &Ingester{
		store:        store,
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		logger:       logger,
	}
}

// IngestText stores raw text as a document plus its retrieval chunks.
// Returns the document ID and the number of chunks written.
func (in *Ingester) IngestText(ctx context.Context, text, filename, docType string, metadata []byte) (string, int, error) {
	sum := sha256.Sum256([]byte(filename + ":" + head(text, 200)))
	docID := hex.EncodeToString(sum[:])[:16]

	if err := in.store.UpsertDocument(ctx, postgres.Document{
		DocID:    docID,
		Filename: filename,
		DocType:  docType,
		FullText: text,
		Metadata: metadata,
	}); err != nil {
		return "", 0, err
	}

	chunks := chunkText(text, in.chunkSize, in.chunkOverlap)
	for i, chunk := range chunks {
		if err := in.store.UpsertChunk(ctx, postgres.Chunk{
			ChunkID:    fmt.Sprintf("%s_c%04d", docID, i),
			DocID:      docID,
			ChunkIndex: i,
			Text:       chunk,
			TokenCount: countTokens(chunk),
		}); err != nil {
			return "", 0, err
		}
	}

	in.logger.Info("document ingested", "doc_id", docID, "filename", filename, "chunks", len(chunks))
	return docID, len(chunks), nil
}

// IngestFile reads and ingests one file.
func (in *Ingester) IngestFile(ctx context.Context, path, docType string) (string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}
	return in.IngestText(ctx, string(data), filepath.Base(path), docType, nil)
}

// IngestDirectory ingests every .txt, .md, and .json file in a directory.
func (in *Ingester) IngestDirectory(ctx context.Context, dir, docType string) (map[string]int, error) {
	results := make(map[string]int)
	for _, pattern := range []string{"*.txt", "*.md", "*.json"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			_, n, err := in.IngestFile(ctx, path, docType)
			if err != nil {
				return nil, err
			}
			results[filepath.Base(path)] = n
		}
	}
	return results, nil
}

// Retriever assembles prompt context from stored chunks.
type Retriever struct {
	store     Store
	embedder  embedding.Embedder // nil disables semantic retrieval
	maxChunks int
	logger    *slog.Logger
}

func NewRetriever(store Store, embedder embedding.Embedder, logger *slog.Logger) *Retriever {
	return &Retriever{
		store:     store,
		embedder:  embedder,
		maxChunks: defaultMaxChunks,
		logger:    logger,
	}
}

// Retrieve returns the most relevant chunks formatted as a context block, or
// "" when nothing matches.
func (r *Retriever) Retrieve(ctx context.Context, query, docType string) (string, error) {
	chunks, err := r.search(ctx, query, docType, r.maxChunks)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		source := c.Filename
		if source == "" {
			source = "unknown"
		}
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", source, c.Text)
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

func (r *Retriever) search(ctx context.Context, query, docType string, limit int) ([]postgres.Chunk, error) {
	if r.embedder != nil {
		vectors, err := r.embedder.EmbedBatch(ctx, []string{query}, "search_query")
		if err == nil && len(vectors) == 1 {
			return r.store.SearchChunksByEmbedding(ctx, pgvector.NewVector(vectors[0]), docType, limit)
		}
		if err != nil {
			r.logger.Warn("semantic retrieval failed, falling back to keywords", "error", err)
		}
	}
	return r.keywordSearch(ctx, query, docType, limit)
}

// keywordSearch over-fetches chunks and scores them by matched query terms.
func (r *Retriever) keywordSearch(ctx context.Context, query, docType string, limit int) ([]postgres.Chunk, error) {
	keywords := strings.Fields(strings.ToLower(query))
	candidates, err := r.store.ListChunks(ctx, docType, limit*5)
	if err != nil {
		return nil, err
	}

	type scored struct {
		score int
		chunk postgres.Chunk
	}
	var hits []scored
	for _, c := range candidates {
		text := strings.ToLower(c.Text)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{score, c})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]postgres.Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.chunk
	}
	return out, nil
}

// EmbedPending computes and stores embeddings for chunks that have none.
// Returns the number of chunks embedded.
func (r *Retriever) EmbedPending(ctx context.Context, batchLimit int) (int, error) {
	if r.embedder == nil {
		return 0, nil
	}

	chunks, err := r.store.ListChunksWithoutEmbeddings(ctx, batchLimit)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts, "search_document")
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i, c := range chunks {
		if err := r.store.UpdateChunkEmbedding(ctx, c.ChunkID, pgvector.NewVector(vectors[i])); err != nil {
			return i, err
		}
	}
	return len(chunks), nil
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
