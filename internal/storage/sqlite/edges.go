package sqlite

import (
	"context"
	"sort"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

// AddEdge upserts e. An existing (source, target, relation) triple gets the
// new weight and timestamp.
func (s *Store) AddEdge(ctx context.Context, e core.Edge) error {
	if e.SourceID == "" || e.TargetID == "" {
		return &core.ValidationError{Field: "edge", Reason: "source and target are required"}
	}
	if e.SourceID == e.TargetID {
		return &core.ValidationError{Field: "edge", Reason: "self edges are not allowed"}
	}
	if !e.Relation.Valid() {
		return &core.ValidationError{Field: "relation", Reason: "unknown relation " + string(e.Relation)}
	}
	if e.Weight == 0 {
		e.Weight = 1
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, relation, weight, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relation) DO UPDATE SET
			weight = excluded.weight, created_at = excluded.created_at`,
		e.SourceID, e.TargetID, string(e.Relation), e.Weight, toMillis(e.CreatedAt))
	return wrapErr("add edge", err)
}

func (s *Store) queryEdges(ctx context.Context, where string, id string) ([]core.Edge, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT source_id, target_id, relation, weight, created_at FROM edges WHERE `+where+`
		ORDER BY created_at, source_id, target_id`, id)
	if err != nil {
		return nil, wrapErr("query edges", err)
	}
	defer rows.Close()

	var edges []core.Edge
	for rows.Next() {
		var (
			e       core.Edge
			rel     string
			created int64
		)
		if err := rows.Scan(&e.SourceID, &e.TargetID, &rel, &e.Weight, &created); err != nil {
			return nil, wrapErr("query edges", err)
		}
		e.Relation = core.Relation(rel)
		e.CreatedAt = fromMillis(created)
		edges = append(edges, e)
	}
	return edges, wrapErr("query edges", rows.Err())
}

func (s *Store) GetEdgesFrom(ctx context.Context, id string) ([]core.Edge, error) {
	return s.queryEdges(ctx, "source_id = ?", id)
}

func (s *Store) GetEdgesTo(ctx context.Context, id string) ([]core.Edge, error) {
	return s.queryEdges(ctx, "target_id = ?", id)
}

// GetRelated walks edges in both directions from id, breadth first, up to
// maxHops. A unit at depth d scores 1/(d+1). Edges pointing at missing units
// are logged and skipped.
func (s *Store) GetRelated(ctx context.Context, id string, maxHops, limit int) ([]core.RelatedUnit, error) {
	if maxHops <= 0 {
		return nil, nil
	}
	logger := log.FromCtx(ctx)

	visited := map[string]struct{}{id: {}}
	frontier := []string{id}
	var related []core.RelatedUnit

	for depth := 1; depth <= maxHops && len(frontier) > 0; depth++ {
		type hop struct {
			from string
			edge core.Edge
			to   string
		}
		var hops []hop
		for _, node := range frontier {
			out, err := s.GetEdgesFrom(ctx, node)
			if err != nil {
				return related, err
			}
			for _, e := range out {
				hops = append(hops, hop{from: node, edge: e, to: e.TargetID})
			}
			in, err := s.GetEdgesTo(ctx, node)
			if err != nil {
				return related, err
			}
			for _, e := range in {
				hops = append(hops, hop{from: node, edge: e, to: e.SourceID})
			}
		}

		candidates := make([]string, 0, len(hops))
		seen := make(map[string]struct{})
		for _, h := range hops {
			if _, ok := visited[h.to]; ok {
				continue
			}
			if _, ok := seen[h.to]; ok {
				continue
			}
			seen[h.to] = struct{}{}
			candidates = append(candidates, h.to)
		}
		existing, err := s.GetMany(ctx, candidates)
		if err != nil {
			return related, err
		}

		var next []string
		for _, h := range hops {
			if _, ok := visited[h.to]; ok {
				continue
			}
			if _, ok := existing[h.to]; !ok {
				gerr := &core.GraphTraversalError{SourceID: h.edge.SourceID, TargetID: h.edge.TargetID, Relation: h.edge.Relation}
				logger.Warn().Err(gerr).Msg("skipping malformed edge")
				continue
			}
			visited[h.to] = struct{}{}
			next = append(next, h.to)
			related = append(related, core.RelatedUnit{
				ID:       h.to,
				Depth:    depth,
				Score:    1 / float64(depth+1),
				Relation: h.edge.Relation,
			})
		}
		frontier = next
	}

	sort.SliceStable(related, func(i, j int) bool {
		if related[i].Depth != related[j].Depth {
			return related[i].Depth < related[j].Depth
		}
		return related[i].ID < related[j].ID
	})
	if limit > 0 && len(related) > limit {
		related = related[:limit]
	}
	return related, nil
}
