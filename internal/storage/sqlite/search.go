package sqlite

import (
	"context"

	"github.com/sandevgo/mnemo/internal/core"
)

// Column weights for bm25: intent, action, reason, tags.
const ftsRank = `bm25(memory_units_fts, 2.0, 1.0, 0.5, 1.0)`

// SearchFTS runs an FTS5 MATCH expression over active units. Scores are
// normalized into (0,1] relative to the best hit.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int) ([]core.ScoredID, error) {
	if query == "" {
		return nil, nil
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT u.id, `+ftsRank+` AS rank
		FROM memory_units_fts
		JOIN memory_units u ON u.rowid = memory_units_fts.rowid
		WHERE memory_units_fts MATCH ? AND u.is_active = 1
		ORDER BY rank, u.id
		LIMIT ?`, query, sqlLimit(limit))
	if err != nil {
		return nil, wrapErr("fts search", err)
	}
	defer rows.Close()

	var (
		results []core.ScoredID
		best    float64
	)
	for rows.Next() {
		var (
			id   string
			rank float64
		)
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, wrapErr("fts search", err)
		}
		// bm25 is negative, lower is better.
		score := -rank
		if score > best {
			best = score
		}
		results = append(results, core.ScoredID{ID: id, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("fts search", err)
	}

	for i := range results {
		if best <= 0 {
			results[i].Score = 1
			continue
		}
		results[i].Score = max(results[i].Score/best, 0)
	}
	return results, nil
}
