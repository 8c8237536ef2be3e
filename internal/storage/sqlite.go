package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kiku/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteLedger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingestions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		file_name TEXT NOT NULL,
		doc_type TEXT NOT NULL,
		collection TEXT NOT NULL,
		chunker_type TEXT NOT NULL,
		chunk_size INTEGER NOT NULL,
		chunk_overlap INTEGER NOT NULL,
		chunks INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_ingestions_source ON ingestions(source, id);

	CREATE TABLE IF NOT EXISTS ingestion_points (
		ingestion_id INTEGER NOT NULL,
		point_id TEXT NOT NULL,
		PRIMARY KEY (ingestion_id, point_id),
		FOREIGN KEY (ingestion_id) REFERENCES ingestions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_ingestion_points_point ON ingestion_points(point_id);
	`
	_, err := db.Exec(schema)
	return err
}

// RecordIngestion stores a run and its point ids in one transaction. rec.ID and
// rec.CreatedAt are set on success.
func (s *SQLiteLedger) RecordIngestion(ctx context.Context, rec *IngestionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO ingestions (source, file_name, doc_type, collection, chunker_type, chunk_size, chunk_overlap, chunks, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Source, rec.FileName, string(rec.DocType), rec.Collection, string(rec.ChunkerType),
		rec.ChunkSize, rec.ChunkOverlap, rec.Chunks, now,
	)
	if err != nil {
		return fmt.Errorf("insert ingestion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO ingestion_points (ingestion_id, point_id) VALUES (?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, pid := range rec.PointIDs {
		if _, err := stmt.ExecContext(ctx, id, pid); err != nil {
			return fmt.Errorf("insert point %s: %w", pid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	rec.ID = id
	rec.CreatedAt = now
	return nil
}

// ListIngestions returns runs newest first. limit <= 0 means no limit.
func (s *SQLiteLedger) ListIngestions(ctx context.Context, source string, limit int) ([]*IngestionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, file_name, doc_type, collection, chunker_type, chunk_size, chunk_overlap, chunks, created_at
		 FROM ingestions WHERE (? = '' OR source = ?) ORDER BY id DESC LIMIT ?`,
		source, source, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*IngestionRecord
	for rows.Next() {
		var rec IngestionRecord
		var docType, chunkerType string
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.FileName, &docType, &rec.Collection, &chunkerType,
			&rec.ChunkSize, &rec.ChunkOverlap, &rec.Chunks, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.DocType = models.DocType(docType)
		rec.ChunkerType = models.ChunkerType(chunkerType)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// Sources returns the distinct recorded sources sorted by path.
func (s *SQLiteLedger) Sources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM ingestions ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// Orphans returns, sorted, the ids written by earlier runs of source into the
// latest run's collection that the latest run did not write.
func (s *SQLiteLedger) Orphans(ctx context.Context, source string) ([]string, error) {
	var latestID int64
	var collection string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, collection FROM ingestions WHERE source = ? ORDER BY id DESC LIMIT 1`, source,
	).Scan(&latestID, &collection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT p.point_id
		 FROM ingestion_points p JOIN ingestions i ON i.id = p.ingestion_id
		 WHERE i.source = ? AND i.collection = ? AND i.id <> ?
		   AND p.point_id NOT IN (SELECT point_id FROM ingestion_points WHERE ingestion_id = ?)
		 ORDER BY p.point_id`,
		source, collection, latestID, latestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
