package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/sandevgo/mnemo/internal/core"
)

// serializeVector converts a float32 slice to a LittleEndian byte slice.
func serializeVector(vec []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := binary.Write(buf, binary.LittleEndian, vec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize vector: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != dims*4 {
		return nil, fmt.Errorf("vector blob has %d bytes, want %d", len(blob), dims*4)
	}
	vec := make([]float32, dims)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("failed to deserialize vector: %w", err)
	}
	return vec, nil
}

// vectorIndex mirrors the embeddings of active units in memory. Search is a
// full cosine scan.
type vectorIndex struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{vecs: make(map[string][]float32)}
}

func (v *vectorIndex) load(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `
		SELECT e.unit_id, e.dims, e.vector
		FROM embeddings e
		JOIN memory_units u ON u.id = e.unit_id
		WHERE u.is_active = 1`)
	if err != nil {
		return err
	}
	defer rows.Close()

	loaded := make(map[string][]float32)
	for rows.Next() {
		var (
			id   string
			dims int
			blob []byte
		)
		if err := rows.Scan(&id, &dims, &blob); err != nil {
			return err
		}
		vec, err := deserializeVector(blob, dims)
		if err != nil {
			return fmt.Errorf("unit %s: %w", id, err)
		}
		loaded[id] = normalize(vec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	v.vecs = loaded
	v.mu.Unlock()
	return nil
}

func (v *vectorIndex) set(id string, vec []float32) {
	v.mu.Lock()
	v.vecs[id] = vec
	v.mu.Unlock()
}

func (v *vectorIndex) remove(id string) {
	v.mu.Lock()
	delete(v.vecs, id)
	v.mu.Unlock()
}

func (v *vectorIndex) size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.vecs)
}

func (v *vectorIndex) search(query []float32, limit int) []core.ScoredID {
	q := normalize(query)

	v.mu.RLock()
	results := make([]core.ScoredID, 0, len(v.vecs))
	for id, vec := range v.vecs {
		if len(vec) != len(q) {
			continue
		}
		var dot float64
		for i := range vec {
			dot += float64(vec[i]) * float64(q[i])
		}
		if dot <= 0 {
			continue
		}
		results = append(results, core.ScoredID{ID: id, Score: dot})
	}
	v.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range vec {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// StoreVector persists the embedding of id, replacing any previous one.
func (s *Store) StoreVector(ctx context.Context, id string, vector []float32, model string) error {
	if len(vector) == 0 {
		return &core.ValidationError{Field: "vector", Reason: "must not be empty"}
	}
	blob, err := serializeVector(vector)
	if err != nil {
		return err
	}

	var active int
	err = s.q.QueryRowContext(ctx, `SELECT is_active FROM memory_units WHERE id = ?`, id).Scan(&active)
	if noRows(err) {
		return fmt.Errorf("%w: %s", core.ErrUnitNotFound, id)
	}
	if err != nil {
		return wrapErr("store vector", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO embeddings (unit_id, dims, vector, model, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(unit_id) DO UPDATE SET
			dims = excluded.dims, vector = excluded.vector,
			model = excluded.model, created_at = excluded.created_at`,
		id, len(vector), blob, model, toMillis(s.now()))
	if err != nil {
		return wrapErr("store vector", err)
	}

	if active == 1 {
		normalized := normalize(vector)
		s.afterCommit(func() { s.vectors.set(id, normalized) })
	}
	return nil
}

// SearchVector returns active units by cosine similarity to vector.
func (s *Store) SearchVector(ctx context.Context, vector []float32, limit int) ([]core.ScoredID, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	return s.vectors.search(vector, limit), nil
}

func (s *Store) UnitsMissingVectors(ctx context.Context, limit int) ([]*core.MemoryUnit, error) {
	return s.queryUnits(ctx, "units missing vectors", `
		SELECT `+prefixed("u", unitColumns)+`
		FROM memory_units u
		LEFT JOIN embeddings e ON e.unit_id = u.id
		WHERE e.unit_id IS NULL AND u.is_active = 1
		ORDER BY u.created_at, u.id
		LIMIT ?`, sqlLimit(limit))
}
