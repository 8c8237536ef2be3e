package vector

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

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps collections in a local SQLite file and searches by brute force.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

// NewSQLiteStore opens or creates the database at dbPath for the named collection.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath, collection string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; concurrent ingestions queue on the pool instead of failing busy.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initVectorSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, collection: collection}, nil
}

func initVectorSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL,
		distance TEXT NOT NULL DEFAULT 'Cosine',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS points (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		vector BLOB NOT NULL,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id),
		FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Collection returns the collection name.
func (s *SQLiteStore) Collection() string {
	return s.collection
}

func (s *SQLiteStore) dimensions(ctx context.Context) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM collections WHERE name = ?`, s.collection,
	).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrCollectionNotFound, s.collection)
	}
	if err != nil {
		return 0, err
	}
	return dims, nil
}

// EnsureCollection registers the collection with the given size if it is new.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, dimensions) VALUES (?, ?)`,
		s.collection, dimensions,
	); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	existing, err := s.dimensions(ctx)
	if err != nil {
		return err
	}
	if existing != dimensions {
		return fmt.Errorf("%w: collection %q has size %d, got %d", ErrDimensionMismatch, s.collection, existing, dimensions)
	}
	return nil
}

// Upsert writes all points in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, points []Point) error {
	dims, err := s.dimensions(ctx)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != dims {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(p.Vector), dims)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (collection, id, vector, payload, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(collection, id) DO UPDATE SET
		   vector = excluded.vector,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, p.ID, float32SliceToBytes(p.Vector), string(payloadJSON)); err != nil {
			return fmt.Errorf("failed to upsert point %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Search scans every vector in the collection and returns the top req.Limit by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, req SearchRequest) ([]ScoredPoint, error) {
	dims, err := s.dimensions(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != dims {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(req.Vector), dims)
	}
	if req.Limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector, payload FROM points WHERE collection = ?`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []ScoredPoint
	for rows.Next() {
		var id, payloadJSON string
		var blob []byte
		if err := rows.Scan(&id, &blob, &payloadJSON); err != nil {
			return nil, err
		}
		vec := bytesToFloat32Slice(blob)
		score := CosineSimilarity(req.Vector, vec)
		if req.ScoreThreshold != 0 && score < req.ScoreThreshold {
			continue
		}
		payload, err := decodePayload(payloadJSON)
		if err != nil {
			return nil, err
		}
		hit := ScoredPoint{ID: id, Score: score, Payload: payload}
		if req.WithVectors {
			hit.Vector = vec
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortHits(hits)
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

// Scroll returns points in id order. The cursor is the first id of the next page.
func (s *SQLiteStore) Scroll(ctx context.Context, cursor Cursor, limit int) (*Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if _, err := s.dimensions(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM points
		 WHERE collection = ? AND id >= ?
		 ORDER BY id LIMIT ?`,
		s.collection, string(cursor), limit+1,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	page := &Page{Points: make([]Point, 0, limit)}
	for rows.Next() {
		var id, payloadJSON string
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return nil, err
		}
		if len(page.Points) == limit {
			page.Next = Cursor(id)
			break
		}
		payload, err := decodePayload(payloadJSON)
		if err != nil {
			return nil, err
		}
		page.Points = append(page.Points, Point{ID: id, Payload: payload})
	}
	return page, rows.Err()
}

// Info describes the collection; a missing collection is reported with Exists false.
func (s *SQLiteStore) Info(ctx context.Context) (*CollectionInfo, error) {
	info := &CollectionInfo{Name: s.collection}
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions, distance FROM collections WHERE name = ?`, s.collection,
	).Scan(&info.VectorSize, &info.Distance)
	if errors.Is(err, sql.ErrNoRows) {
		return info, nil
	}
	if err != nil {
		return nil, err
	}
	info.Exists = true
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM points WHERE collection = ?`, s.collection,
	).Scan(&info.Points); err != nil {
		return nil, err
	}
	return info, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodePayload(raw string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
