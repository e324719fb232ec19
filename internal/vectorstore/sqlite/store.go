// Package sqlite is an embedded vector store on top of SQLite. Vectors are
// stored as little-endian float32 BLOBs and ranked by cosine similarity
// computed in Go, which is fast enough for the few-thousand-point
// collections a single host keeps.
//
// Importing the package registers the "sqlite" backend (modernc.org/sqlite,
// pure Go). Builds with cgo also register "sqlite3" (mattn/go-sqlite3).
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/RM-RAMASAMY/GreenLoop/internal/vectorstore"
)

// Schema is applied on every Open. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS collections (
	name TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS points (
	collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	id TEXT NOT NULL,
	vector BLOB NOT NULL,
	payload TEXT NOT NULL DEFAULT 'null',
	version INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (collection, id)
);
`

// Store implements vectorstore.Client on a SQLite database.
type Store struct {
	db *sql.DB
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite: db is nil")
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens path with the given database/sql driver and applies the schema.
func Open(driverName, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// HasCollection reports whether the collection row exists.
func (s *Store) HasCollection(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM collections WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: has collection %q: %w", name, err)
	}
	return n > 0, nil
}

// CreateCollection registers a collection. An existing collection is left
// untouched, whatever its dimension.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("sqlite: create collection %q: invalid dimension %d", name, dimension)
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, ?)`, name, dimension)
	if err != nil {
		return fmt.Errorf("sqlite: create collection %q: %w", name, err)
	}
	return nil
}

func (s *Store) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlite: %q: %w", collection, vectorstore.ErrCollectionNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: lookup collection %q: %w", collection, err)
	}
	return dim, nil
}

// Upsert stores or replaces one point.
func (s *Store) Upsert(ctx context.Context, collection string, id any, vector []float32, payload any) error {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if len(vector) != dim {
		return fmt.Errorf("sqlite: upsert into %q: got %d values, want %d: %w", collection, len(vector), dim, vectorstore.ErrDimensionMismatch)
	}
	key, err := encodeID(id)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sqlite: encode payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO points (collection, id, vector, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			vector = excluded.vector,
			payload = excluded.payload,
			version = points.version + 1,
			updated_at = CURRENT_TIMESTAMP
	`, collection, key, encodeFloat32s(vector), string(body))
	if err != nil {
		return fmt.Errorf("sqlite: upsert %s into %q: %w", key, collection, err)
	}
	return nil
}

// Search ranks every point in the collection by cosine similarity to vector.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int) ([]vectorstore.Result, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("sqlite: search %q: got %d values, want %d: %w", collection, len(vector), dim, vectorstore.ErrDimensionMismatch)
	}
	if topK <= 0 {
		return []vectorstore.Result{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, vector, payload
		FROM points
		WHERE collection = ?
		ORDER BY id
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search %q: %w", collection, err)
	}
	defer rows.Close()

	type scored struct {
		key     string
		score   float32
		payload string
	}

	var candidates []scored
	for rows.Next() {
		var c scored
		var blob []byte
		if err := rows.Scan(&c.key, &blob, &c.payload); err != nil {
			return nil, fmt.Errorf("sqlite: scan point: %w", err)
		}
		stored := decodeFloat32s(blob)
		if len(stored) != len(vector) {
			continue
		}
		c.score = cosineSimilarity(vector, stored)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: search %q: %w", collection, err)
	}

	// Stable so equal scores keep id order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]vectorstore.Result, len(candidates))
	for i, c := range candidates {
		id, err := decodeJSON(c.key)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode id %s: %w", c.key, err)
		}
		payload, err := decodeJSON(c.payload)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode payload of %s: %w", c.key, err)
		}
		results[i] = vectorstore.Result{ID: id, Score: c.score, Payload: payload}
	}
	return results, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// encodeID stores identifiers in their JSON form so the string "1" and the
// number 1 stay distinct and round-trip unchanged.
func encodeID(id any) (string, error) {
	if id == nil {
		return "", fmt.Errorf("sqlite: point id is null")
	}
	b, err := json.Marshal(id)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode id: %w", err)
	}
	return string(b), nil
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// encodeFloat32s converts a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s converts little-endian bytes back to a float32 slice.
func decodeFloat32s(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineSimilarity computes the cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// dsn turns a bridge address into a driver DSN. Addresses that already carry
// a file: URI or are in-memory are passed through with params appended.
func dsn(addr, params string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || addr == ":memory:" {
		return ":memory:"
	}
	if !strings.HasPrefix(addr, "file:") {
		addr = "file:" + addr
	}
	if params == "" {
		return addr
	}
	sep := "?"
	if strings.Contains(addr, "?") {
		sep = "&"
	}
	return addr + sep + params
}

var _ vectorstore.Client = (*Store)(nil)
