package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docqa/helper"
	"github.com/siherrmann/docqa/model"
	"github.com/viant/vec/search"

	_ "modernc.org/sqlite"
)

const (
	DefaultSQLitePath = "./docqa_db/index.db"
	DefaultCollection = "rag_documents"
	metricCosine      = "cosine"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	metric TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	document_rid TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	start_pos INTEGER NOT NULL,
	end_pos INTEGER NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	embedding BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (collection, document_rid);
`

// SQLiteIndex is a file backed VectorIndex.
// Vectors are stored as BLOBs and compared by brute force cosine similarity.
type SQLiteIndex struct {
	db         *sql.DB
	collection string
	dimension  int
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewSQLite opens or creates the index file at path.
// A dimension of 0 adopts the persisted dimension of an existing collection.
// Opening a collection with a different dimension fails with model.ErrDimensionMismatch.
func NewSQLite(path string, collection string, dimension int, logger *slog.Logger) (*SQLiteIndex, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, helper.NewError("create index directory", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, helper.NewError("open sqlite", err)
	}
	// Single writer connection, transactions serialize concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, helper.NewError("create sqlite schema", err)
	}

	dimension, err = loadDimension(db, collection, dimension)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened sqlite index", slog.String("path", path), slog.String("collection", collection), slog.Int("dimension", dimension))

	return &SQLiteIndex{
		db:         db,
		collection: collection,
		dimension:  dimension,
		logger:     logger,
	}, nil
}

// loadDimension reads the persisted dimension or persists the requested one.
func loadDimension(db *sql.DB, collection string, dimension int) (int, error) {
	var stored int
	var metric string
	err := db.QueryRow(`SELECT dimension, metric FROM collections WHERE name = ?`, collection).Scan(&stored, &metric)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if dimension <= 0 {
			return 0, fmt.Errorf("%w: collection %s does not exist and no dimension was given", model.ErrDimensionMismatch, collection)
		}
		if _, err := db.Exec(`INSERT INTO collections (name, dimension, metric) VALUES (?, ?, ?)`, collection, dimension, metricCosine); err != nil {
			return 0, helper.NewError("create collection", err)
		}
		return dimension, nil
	case err != nil:
		return 0, helper.NewError("read collection", err)
	}

	if dimension > 0 && dimension != stored {
		return 0, fmt.Errorf("%w: collection %s has dimension %d, configured %d", model.ErrDimensionMismatch, collection, stored, dimension)
	}
	return stored, nil
}

// Dimension returns the vector dimension of the collection.
func (s *SQLiteIndex) Dimension() int {
	return s.dimension
}

// Upsert writes all chunks in one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, chunks []*model.Chunk) error {
	if err := ValidateChunks(chunks, s.dimension); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, document_rid, source, chunk_index, content, start_pos, end_pos, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			document_rid = excluded.document_rid,
			source = excluded.source,
			chunk_index = excluded.chunk_index,
			content = excluded.content,
			start_pos = excluded.start_pos,
			end_pos = excluded.end_pos,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return helper.NewError("prepare upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, chunk := range chunks {
		metadata, err := chunk.Metadata.Marshal()
		if err != nil {
			return helper.NewError("marshal metadata", err)
		}
		_, err = stmt.ExecContext(ctx,
			s.collection,
			chunk.ID,
			chunk.DocumentRID.String(),
			chunk.Source,
			chunk.ChunkIndex,
			chunk.Content,
			chunk.StartPos,
			chunk.EndPos,
			string(metadata),
			encodeVector(chunk.Embedding),
			now,
		)
		if err != nil {
			return helper.NewError("upsert chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return helper.NewError("commit upsert", err)
	}

	s.logger.Debug("Upserted chunks", slog.Int("num_chunks", len(chunks)))
	return nil
}

// Query scans the collection and ranks all entries by cosine similarity.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, topK int, documentRIDs []uuid.UUID) ([]*model.Evidence, error) {
	if err := ValidateVector(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []*model.Evidence{}, nil
	}

	query := `SELECT seq, id, document_rid, source, chunk_index, content, start_pos, end_pos, metadata, embedding, created_at
		FROM chunks WHERE collection = ?`
	args := []interface{}{s.collection}
	if len(documentRIDs) > 0 {
		placeholders := make([]string, len(documentRIDs))
		for i, rid := range documentRIDs {
			placeholders[i] = "?"
			args = append(args, rid.String())
		}
		query += " AND document_rid IN (" + strings.Join(placeholders, ", ") + ")"
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, helper.NewError("query chunks", err)
	}
	defer rows.Close()

	queryVec := search.Float32s(vector)
	queryMagnitude := queryVec.Magnitude()

	var candidates []candidate
	for rows.Next() {
		chunk, seq, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate{
			chunk: chunk,
			score: cosineSimilarity(queryVec, queryMagnitude, chunk.Embedding),
			seq:   seq,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("iterate chunks", err)
	}

	return rank(candidates, topK), nil
}

// cosineSimilarity is 0 for zero vectors.
func cosineSimilarity(query search.Float32s, queryMagnitude float32, vector []float32) float64 {
	magnitude := search.Float32s(vector).Magnitude()
	if queryMagnitude == 0 || magnitude == 0 {
		return 0
	}
	return 1 - float64(query.CosineDistance(vector))
}

func scanChunk(rows *sql.Rows) (*model.Chunk, int64, error) {
	var (
		seq       int64
		rid       string
		metadata  string
		embedding []byte
		createdAt int64
		chunk     = &model.Chunk{}
	)
	err := rows.Scan(
		&seq,
		&chunk.ID,
		&rid,
		&chunk.Source,
		&chunk.ChunkIndex,
		&chunk.Content,
		&chunk.StartPos,
		&chunk.EndPos,
		&metadata,
		&embedding,
		&createdAt,
	)
	if err != nil {
		return nil, 0, helper.NewError("scan chunk", err)
	}

	chunk.DocumentRID, err = uuid.Parse(rid)
	if err != nil {
		return nil, 0, helper.NewError("parse document rid", err)
	}
	if err := chunk.Metadata.Unmarshal(metadata); err != nil {
		return nil, 0, err
	}
	chunk.Embedding, err = decodeVector(embedding)
	if err != nil {
		return nil, 0, err
	}
	chunk.CreatedAt = time.UnixMilli(createdAt)

	return chunk, seq, nil
}

// Remove deletes all chunks of a document.
func (s *SQLiteIndex) Remove(ctx context.Context, documentRID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ? AND document_rid = ?`, s.collection, documentRID.String())
	if err != nil {
		return helper.NewError("remove document", err)
	}
	removed, _ := result.RowsAffected()
	s.logger.Debug("Removed document", slog.String("document_rid", documentRID.String()), slog.Int64("num_chunks", removed))
	return nil
}

// Stats counts chunks and distinct documents.
func (s *SQLiteIndex) Stats(ctx context.Context) (model.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.IndexStats{Dimension: s.dimension}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT document_rid) FROM chunks WHERE collection = ?`,
		s.collection,
	).Scan(&stats.Chunks, &stats.Documents)
	if err != nil {
		return model.IndexStats{}, helper.NewError("index stats", err)
	}
	return stats, nil
}

// Reset deletes all chunks of the collection.
func (s *SQLiteIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, s.collection); err != nil {
		return helper.NewError("reset index", err)
	}
	s.logger.Info("Reset index", slog.String("collection", s.collection))
	return nil
}

// Close closes the database file.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
