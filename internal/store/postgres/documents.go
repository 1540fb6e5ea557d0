package postgres

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
)

// UpsertDocument inserts or replaces a source document.
func (q *Queries) UpsertDocument(ctx context.Context, d Document) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO documents (doc_id, filename, doc_type, full_text, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (doc_id) DO UPDATE SET
		     filename = EXCLUDED.filename,
		     doc_type = EXCLUDED.doc_type,
		     full_text = EXCLUDED.full_text,
		     metadata = EXCLUDED.metadata,
		     created_at = EXCLUDED.created_at`,
		d.DocID, d.Filename, d.DocType, d.FullText, d.Metadata)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", d.DocID, err)
	}
	return nil
}

// ListDocuments returns documents, optionally filtered by type.
func (q *Queries) ListDocuments(ctx context.Context, docType string) ([]Document, error) {
	sql := `SELECT doc_id, COALESCE(filename, ''), COALESCE(doc_type, 'other'), full_text, metadata, created_at
	        FROM documents`
	var args []any
	if docType != "" {
		sql += ` WHERE doc_type = $1`
		args = append(args, docType)
	}
	sql += ` ORDER BY doc_id`

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var items []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.DocID, &d.Filename, &d.DocType, &d.FullText, &d.Metadata, &d.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// UpsertChunk inserts or replaces one retrieval chunk.
func (q *Queries) UpsertChunk(ctx context.Context, c Chunk) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO chunks (chunk_id, doc_id, chunk_index, text, token_count)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (chunk_id) DO UPDATE SET
		     doc_id = EXCLUDED.doc_id,
		     chunk_index = EXCLUDED.chunk_index,
		     text = EXCLUDED.text,
		     token_count = EXCLUDED.token_count`,
		c.ChunkID, c.DocID, c.ChunkIndex, c.Text, c.TokenCount)
	if err != nil {
		return fmt.Errorf("upsert chunk %s: %w", c.ChunkID, err)
	}
	return nil
}

// ListChunks returns chunks joined with document attributes, optionally
// filtered by document type. Used by keyword retrieval, which scores in
// memory after an over-fetch.
func (q *Queries) ListChunks(ctx context.Context, docType string, limit int) ([]Chunk, error) {
	sql := `SELECT c.chunk_id, c.doc_id, c.chunk_index, c.text, COALESCE(c.token_count, 0),
	               COALESCE(d.filename, ''), COALESCE(d.doc_type, 'other')
	        FROM chunks c JOIN documents d ON c.doc_id = d.doc_id`
	args := []any{}
	if docType != "" {
		sql += ` WHERE d.doc_type = $1`
		args = append(args, docType)
	}
	sql += fmt.Sprintf(` ORDER BY c.doc_id, c.chunk_index LIMIT %d`, limit)

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var items []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.ChunkIndex, &c.Text, &c.TokenCount,
			&c.Filename, &c.DocType); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// UpdateChunkEmbedding stores the embedding vector for one chunk.
func (q *Queries) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding pgvector.Vector) error {
	_, err := q.db.Exec(ctx,
		`UPDATE chunks SET embedding = $2 WHERE chunk_id = $1`,
		chunkID, embedding)
	if err != nil {
		return fmt.Errorf("update chunk embedding %s: %w", chunkID, err)
	}
	return nil
}

// ListChunkIDsWithoutEmbeddings returns chunks awaiting embedding.
func (q *Queries) ListChunksWithoutEmbeddings(ctx context.Context, limit int) ([]Chunk, error) {
	rows, err := q.db.Query(ctx,
		`SELECT c.chunk_id, c.doc_id, c.chunk_index, c.text, COALESCE(c.token_count, 0),
		        COALESCE(d.filename, ''), COALESCE(d.doc_type, 'other')
		 FROM chunks c JOIN documents d ON c.doc_id = d.doc_id
		 WHERE c.embedding IS NULL
		 ORDER BY c.doc_id, c.chunk_index
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("list chunks without embeddings: %w", err)
	}
	defer rows.Close()

	var items []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.ChunkIndex, &c.Text, &c.TokenCount,
			&c.Filename, &c.DocType); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// SearchChunksByEmbedding returns the chunks nearest to the query vector by
// cosine distance, optionally filtered by document type.
func (q *Queries) SearchChunksByEmbedding(ctx context.Context, query pgvector.Vector, docType string, limit int) ([]Chunk, error) {
	sql := `SELECT c.chunk_id, c.doc_id, c.chunk_index, c.text, COALESCE(c.token_count, 0),
	               COALESCE(d.filename, ''), COALESCE(d.doc_type, 'other')
	        FROM chunks c JOIN documents d ON c.doc_id = d.doc_id
	        WHERE c.embedding IS NOT NULL`
	args := []any{query}
	if docType != "" {
		sql += ` AND d.doc_type = $2`
		args = append(args, docType)
	}
	sql += fmt.Sprintf(` ORDER BY c.embedding <=> $1 LIMIT %d`, limit)

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks by embedding: %w", err)
	}
	defer rows.Close()

	var items []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.ChunkIndex, &c.Text, &c.TokenCount,
			&c.Filename, &c.DocType); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
