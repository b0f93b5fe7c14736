package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	sqlite "modernc.org/sqlite"
)

func init() {
	_ = sqlite.RegisterDeterministicScalarFunction("vec_distance_cosine", 2, vecDistanceCosine)
}

const skillIndexSchema = `
CREATE TABLE IF NOT EXISTS skill_vectors (
	skill_id   TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	embedding  BLOB NOT NULL,
	updated_at TEXT NOT NULL
)`

type IndexHit struct {
	SkillID  string
	Distance float64
}

type SkillIndex interface {
	Upsert(ctx context.Context, skillID string, content string, embedding []float32) error
	Delete(ctx context.Context, skillID string) error
	Search(ctx context.Context, query []float32, limit int, maxDistance float64) ([]IndexHit, error)
	Count(ctx context.Context) (int, error)
	// Contents maps every indexed skill ID to the text its vector was built from.
	Contents(ctx context.Context) (map[string]string, error)
	Close() error
}

type sqliteSkillIndexImpl struct {
	db *sql.DB
}

// OpenSkillIndex opens (and migrates) the vector index stored at path.
func OpenSkillIndex(ctx context.Context, path string) (SkillIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open skill index: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, skillIndexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate skill index: %w", err)
	}
	return &sqliteSkillIndexImpl{db: db}, nil
}

func (s *sqliteSkillIndexImpl) Upsert(ctx context.Context, skillID string, content string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_vectors (skill_id, content, embedding, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(skill_id) DO UPDATE SET content = excluded.content, embedding = excluded.embedding, updated_at = excluded.updated_at`,
		skillID, content, encodeFloat32(embedding), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("index skill %s: %w", skillID, err)
	}
	return nil
}

func (s *sqliteSkillIndexImpl) Delete(ctx context.Context, skillID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM skill_vectors WHERE skill_id = ?`, skillID)
	return err
}

func (s *sqliteSkillIndexImpl) Search(ctx context.Context, query []float32, limit int, maxDistance float64) ([]IndexHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT skill_id, distance FROM (
			SELECT skill_id, vec_distance_cosine(embedding, ?) AS distance FROM skill_vectors
		) WHERE distance <= ? ORDER BY distance ASC, skill_id ASC LIMIT ?`,
		encodeFloat32(query), maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("search skill index: %w", err)
	}
	defer rows.Close()

	var hits []IndexHit
	for rows.Next() {
		var hit IndexHit
		if err := rows.Scan(&hit.SkillID, &hit.Distance); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *sqliteSkillIndexImpl) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM skill_vectors`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteSkillIndexImpl) Contents(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT skill_id, content FROM skill_vectors`)
	if err != nil {
		return nil, fmt.Errorf("list skill index: %w", err)
	}
	defer rows.Close()

	contents := make(map[string]string)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, err
		}
		contents[id] = content
	}
	return contents, rows.Err()
}

func (s *sqliteSkillIndexImpl) Close() error {
	return s.db.Close()
}

func encodeFloat32(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeFloat32(v driver.Value) ([]float32, error) {
	if v == nil {
		return nil, nil
	}
	var raw []byte
	switch x := v.(type) {
	case []byte:
		raw = x
	case string:
		raw = []byte(x)
	default:
		return nil, fmt.Errorf("vec_distance_cosine: unsupported type %T", v)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("vec_distance_cosine: blob length %d not multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// vecDistanceCosine returns 1 - cos(a, b). Empty or zero vectors are at distance 1.
func vecDistanceCosine(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_distance_cosine expects 2 arguments")
	}
	a, err := decodeFloat32(args[0])
	if err != nil {
		return nil, err
	}
	b, err := decodeFloat32(args[1])
	if err != nil {
		return nil, err
	}
	if len(a) == 0 || len(b) == 0 {
		return float64(1), nil
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("vec_distance_cosine: dimension mismatch %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		af, bf := float64(a[i]), float64(b[i])
		dot += af * bf
		na += af * af
		nb += bf * bf
	}
	if na == 0 || nb == 0 {
		return float64(1), nil
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
}
