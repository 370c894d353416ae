package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kensaku/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Use ":memory:" for an in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		doc_type TEXT,
		fields TEXT,
		dimension INTEGER NOT NULL DEFAULT 0,
		embedding BLOB,
		inserted_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);

	CREATE TABLE IF NOT EXISTS search_history (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		search_type TEXT NOT NULL,
		result_count INTEGER NOT NULL,
		user_id TEXT,
		error TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user ON search_history(user_id, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrStoreUnavailable, op, err)
}

// UpsertDocument inserts a document or overwrites the one with the same id.
// An overwrite keeps the original row position, so enumeration order is first-insert order.
func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *models.Document) error {
	fieldsJSON, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("%w: marshal fields: %w", models.ErrInvalidDocument, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, doc_type, fields, dimension, embedding, inserted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title, content = excluded.content, doc_type = excluded.doc_type,
		   fields = excluded.fields, dimension = excluded.dimension,
		   embedding = excluded.embedding, inserted_at = excluded.inserted_at`,
		doc.ID, doc.Title, doc.Content, doc.DocType, string(fieldsJSON),
		doc.Dimension, encodeEmbedding(doc.Embedding), doc.InsertedAt.UTC(),
	)
	if err != nil {
		return unavailable("upsert document", err)
	}
	return nil
}

const documentColumns = `id, title, content, doc_type, fields, dimension, embedding, inserted_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc        models.Document
		title      sql.NullString
		content    sql.NullString
		docType    sql.NullString
		fieldsJSON sql.NullString
		embedding  []byte
		insertedAt time.Time
	)
	if err := row.Scan(&doc.ID, &title, &content, &docType, &fieldsJSON, &doc.Dimension, &embedding, &insertedAt); err != nil {
		return nil, err
	}
	doc.Title = title.String
	doc.Content = content.String
	doc.DocType = docType.String
	doc.InsertedAt = insertedAt.UTC()
	doc.Embedding = decodeEmbedding(embedding)
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &doc.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
		}
	}
	return &doc, nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("get document", err)
	}
	return doc, nil
}

// DeleteDocument removes a document by ID.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete document", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: document %s", models.ErrNotFound, id)
	}
	return nil
}

// ListDocuments returns documents in insertion order with offset and limit. limit <= 0 means all.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY rowid LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, unavailable("list documents", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, unavailable("scan document", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list documents", err)
	}
	return docs, nil
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, unavailable("count documents", err)
	}
	return count, nil
}

// AppendHistory writes one search history record.
func (s *SQLiteStorage) AppendHistory(ctx context.Context, h *models.SearchHistory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (id, query, search_type, result_count, user_id, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Query, string(h.Mode), h.ResultCount, h.UserID, h.Error, h.Timestamp.UTC(),
	)
	if err != nil {
		return unavailable("append history", err)
	}
	return nil
}

// ListHistory returns history records newest first.
func (s *SQLiteStorage) ListHistory(ctx context.Context, userID string, limit int) ([]*models.SearchHistory, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT id, query, search_type, result_count, user_id, error, created_at FROM search_history`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list history", err)
	}
	defer rows.Close()

	var out []*models.SearchHistory
	for rows.Next() {
		var (
			h       models.SearchHistory
			mode    string
			user    sql.NullString
			errText sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.Query, &mode, &h.ResultCount, &user, &errText, &h.Timestamp); err != nil {
			return nil, unavailable("scan history", err)
		}
		h.Mode = models.SearchMode(mode)
		h.UserID = user.String
		h.Error = errText.String
		h.Timestamp = h.Timestamp.UTC()
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list history", err)
	}
	return out, nil
}

// ClearHistory removes history records for userID, or all records when userID is empty.
func (s *SQLiteStorage) ClearHistory(ctx context.Context, userID string) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if userID == "" {
		result, err = s.db.ExecContext(ctx, `DELETE FROM search_history`)
	} else {
		result, err = s.db.ExecContext(ctx, `DELETE FROM search_history WHERE user_id = ?`, userID)
	}
	if err != nil {
		return 0, unavailable("clear history", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
