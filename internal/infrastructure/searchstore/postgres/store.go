package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cdco-dev/chantier-assistant/internal/core/domain"
	"github.com/cdco-dev/chantier-assistant/internal/core/ports"
)

// Store persists documents and chunks in PostgreSQL with pgvector, and runs
// the fused and vector-only search functions installed by EnsureSchema.
type Store struct {
	db  *sql.DB
	dim int
}

func NewStore(db *sql.DB, embeddingDim int) *Store {
	if embeddingDim <= 0 {
		embeddingDim = 1536
	}
	return &Store{db: db, dim: embeddingDim}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema installs the extension, tables, indexes and the two search
// functions. Idempotent; an advisory lock serializes api/worker startups.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	ddl := fmt.Sprintf(schemaDDL, s.dim)
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if _, err := tx.ExecContext(ctx, searchFunctionsDDL); err != nil {
		return fmt.Errorf("install search functions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	source TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	extra JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INT NOT NULL,
	content TEXT NOT NULL,
	token_count INT NOT NULL DEFAULT 0,
	page_start INT,
	page_end INT,
	is_toc BOOLEAN NOT NULL DEFAULT FALSE,
	embedding vector(%d),
	content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('french', content)) STORED
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON chunks USING GIN (content_tsv);
CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
	USING hnsw (embedding vector_cosine_ops);
`

// The fused ranking runs entirely store-side: both rankings, the reciprocal
// rank fusion, the similarity floor and the per-document cap.
const searchFunctionsDDL = `
CREATE OR REPLACE FUNCTION hybrid_search(
	query_text TEXT,
	query_embedding vector,
	match_limit INT,
	similarity_threshold DOUBLE PRECISION,
	exclude_toc BOOLEAN,
	rrf_k INT,
	max_per_document INT
) RETURNS TABLE (
	chunk_id TEXT,
	document_id TEXT,
	document_title TEXT,
	document_source TEXT,
	document_url TEXT,
	content TEXT,
	page_start INT,
	page_end INT,
	is_toc BOOLEAN,
	similarity DOUBLE PRECISION,
	rrf_score DOUBLE PRECISION
) LANGUAGE sql STABLE AS $$
WITH semantic AS (
	SELECT c.id,
	       1 - (c.embedding <=> query_embedding) AS similarity,
	       ROW_NUMBER() OVER (ORDER BY c.embedding <=> query_embedding) AS rank
	FROM chunks c
	WHERE NOT (exclude_toc AND c.is_toc)
	ORDER BY c.embedding <=> query_embedding
	LIMIT match_limit * 4
),
lexical AS (
	SELECT c.id,
	       ROW_NUMBER() OVER (
	           ORDER BY ts_rank_cd(c.content_tsv, websearch_to_tsquery('french', query_text)) DESC
	       ) AS rank
	FROM chunks c
	WHERE c.content_tsv @@ websearch_to_tsquery('french', query_text)
	  AND NOT (exclude_toc AND c.is_toc)
	LIMIT match_limit * 4
),
fused AS (
	SELECT COALESCE(s.id, l.id) AS id,
	       s.similarity,
	       COALESCE(1.0 / (rrf_k + s.rank), 0) + COALESCE(1.0 / (rrf_k + l.rank), 0) AS rrf_score
	FROM semantic s
	FULL OUTER JOIN lexical l ON s.id = l.id
),
-- Candidates that matched only the lexical ranking carry a NULL semantic
-- similarity; recompute their cosine similarity here so the threshold judges
-- every candidate on the same scale instead of dropping them outright.
capped AS (
	SELECT c.id, c.document_id,
	       COALESCE(f.similarity, 1 - (c.embedding <=> query_embedding)) AS similarity,
	       f.rrf_score,
	       ROW_NUMBER() OVER (
	           PARTITION BY c.document_id ORDER BY f.rrf_score DESC
	       ) AS doc_rank
	FROM fused f
	JOIN chunks c ON c.id = f.id
	WHERE COALESCE(f.similarity, 1 - (c.embedding <=> query_embedding)) >= similarity_threshold
)
SELECT c.id, c.document_id, d.title, d.source, d.url, c.content,
       c.page_start, c.page_end, c.is_toc, cap.similarity, cap.rrf_score
FROM capped cap
JOIN chunks c ON c.id = cap.id
JOIN documents d ON d.id = c.document_id
WHERE cap.doc_rank <= max_per_document
ORDER BY cap.rrf_score DESC
LIMIT match_limit;
$$;

CREATE OR REPLACE FUNCTION match_chunks(
	query_embedding vector,
	match_limit INT,
	similarity_threshold DOUBLE PRECISION
) RETURNS TABLE (
	chunk_id TEXT,
	document_id TEXT,
	document_title TEXT,
	document_source TEXT,
	document_url TEXT,
	content TEXT,
	page_start INT,
	page_end INT,
	is_toc BOOLEAN,
	similarity DOUBLE PRECISION
) LANGUAGE sql STABLE AS $$
SELECT c.id, c.document_id, d.title, d.source, d.url, c.content,
       c.page_start, c.page_end, c.is_toc,
       1 - (c.embedding <=> query_embedding) AS similarity
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE 1 - (c.embedding <=> query_embedding) >= similarity_threshold
ORDER BY c.embedding <=> query_embedding
LIMIT match_limit;
$$;
`

// FusedSearch runs hybrid_search and returns passages ordered by fused score.
func (s *Store) FusedSearch(ctx context.Context, req ports.FusedSearchRequest) ([]domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, document_id, document_title, document_source, document_url,
       content, page_start, page_end, is_toc, similarity, rrf_score
FROM hybrid_search($1, $2, $3, $4, $5, $6, $7)
`,
		req.QueryText, formatVector(req.QueryEmbedding), req.Limit,
		req.SimilarityThreshold, req.ExcludeBoilerplate, req.RRFK, req.MaxPerDocument,
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer rows.Close()

	return scanPassages(rows, true)
}

// VectorSearch is the degraded path when the fused function is unavailable.
func (s *Store) VectorSearch(ctx context.Context, embedding []float32, limit int, threshold float64) ([]domain.Passage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT chunk_id, document_id, document_title, document_source, document_url,
       content, page_start, page_end, is_toc, similarity
FROM match_chunks($1, $2, $3)
`, formatVector(embedding), limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	return scanPassages(rows, false)
}

func scanPassages(rows *sql.Rows, fused bool) ([]domain.Passage, error) {
	var passages []domain.Passage
	for rows.Next() {
		var p domain.Passage
		var pageStart, pageEnd sql.NullInt64

		dest := []any{
			&p.ChunkID, &p.DocumentID, &p.Title, &p.Source, &p.URL,
			&p.Content, &pageStart, &pageEnd, &p.Boilerplate, &p.Similarity,
		}
		if fused {
			dest = append(dest, &p.FusedScore)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		if pageStart.Valid {
			p.Pages = &domain.PageRange{Start: int(pageStart.Int64), End: int(pageEnd.Int64)}
			if !pageEnd.Valid {
				p.Pages.End = p.Pages.Start
			}
		}
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return passages, nil
}

func (s *Store) InsertDocument(ctx context.Context, doc *domain.Document) error {
	extraJSON, err := json.Marshal(doc.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}
	if doc.Extra == nil {
		extraJSON = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO documents (id, title, source, mime_type, storage_path, url, extra, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.Title, doc.Source, doc.MimeType, doc.Path, doc.URL,
		extraJSON, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, source, mime_type, storage_path, url, extra, status, error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var extraRaw []byte
	var status string

	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Source, &doc.MimeType, &doc.Path, &doc.URL,
		&extraRaw, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	if len(extraRaw) > 0 {
		if err := json.Unmarshal(extraRaw, &doc.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra: %w", err)
		}
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	result, err := s.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document status: rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, "update document status", fmt.Errorf("id %s", id))
	}
	return nil
}

// InsertChunks replaces the document's chunks atomically so re-processing
// never leaves a mix of old and new passages.
func (s *Store) InsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("insert chunks: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chunks tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}

	const insert = `
INSERT INTO chunks (id, document_id, chunk_index, content, token_count, page_start, page_end, is_toc, embedding)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	for i, chunk := range chunks {
		var pageStart, pageEnd any
		if chunk.Pages != nil && chunk.Pages.Valid() {
			pageStart, pageEnd = chunk.Pages.Start, chunk.Pages.End
		}
		chunkID := doc.ID + ":" + strconv.Itoa(chunk.Index)
		if _, err := tx.ExecContext(ctx, insert,
			chunkID, doc.ID, chunk.Index, chunk.Content, chunk.TokenCount,
			pageStart, pageEnd, chunk.IsTOC, formatVector(vectors[i]),
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chunks tx: %w", err)
	}
	return nil
}

func (s *Store) Counts(ctx context.Context) (int, int, error) {
	var documents, chunks int
	err := s.db.QueryRowContext(ctx, `
SELECT (SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)
`).Scan(&documents, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("count documents: %w", err)
	}
	return documents, chunks, nil
}

// formatVector renders the pgvector text literal, e.g. "[0.1,0.2,0.3]".
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*10 + 2)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
