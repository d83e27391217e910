package memory

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	minKeywordLen     = 3
	maxSynonymsPerTok = 3
	maxSynonymsTotal  = 8
	// Each method fetches this many times the requested limit so that
	// post-merge filters still leave enough candidates.
	candidateFactor = 3
	minCandidates   = 30
)

var methodOrder = [...]string{MethodVector, MethodKeyword, MethodFile}

// synonyms widen keyword recall for common engineering vocabulary.
var synonyms = map[string][]string{
	"database":   {"sql", "sqlite", "postgres"},
	"auth":       {"authentication", "login", "token"},
	"login":      {"auth", "signin", "session"},
	"config":     {"configuration", "settings", "env"},
	"settings":   {"config", "configuration", "options"},
	"error":      {"failure", "exception", "panic"},
	"crash":      {"panic", "failure", "error"},
	"bug":        {"defect", "regression", "error"},
	"test":       {"tests", "testing", "assert"},
	"deploy":     {"deployment", "release", "rollout"},
	"cache":      {"caching", "memoize", "ttl"},
	"log":        {"logging", "logger"},
	"logging":    {"log", "logger"},
	"dependency": {"package", "library", "module"},
	"library":    {"package", "dependency", "module"},
	"style":      {"format", "lint", "convention"},
	"slow":       {"performance", "latency", "timeout"},
	"api":        {"endpoint", "http", "rest"},
	"query":      {"sql", "select", "search"},
	"async":      {"concurrent", "goroutine", "await"},
}

type candidate struct {
	id      string
	score   float64
	methods [len(methodOrder)]bool
}

func (c *candidate) matchMethod() string {
	var parts []string
	for i, ok := range c.methods {
		if ok {
			parts = append(parts, methodOrder[i])
		}
	}
	return strings.Join(parts, "+")
}

// retrieve runs the vector, keyword and file searches in parallel and fuses
// them with weighted additive scores. A failing method is logged and left
// out; the others still contribute.
func (s *Service) retrieve(ctx context.Context, q RecallQuery, limit int) ([]RecallResult, error) {
	logger := log.FromCtx(ctx)
	pool := max(limit*candidateFactor, minCandidates)

	var hits [len(methodOrder)][]core.ScoredID
	var g errgroup.Group

	if s.worker != nil && strings.TrimSpace(q.Query) != "" {
		g.Go(func() error {
			vec, err := s.worker.EmbedQuery(ctx, q.Query)
			if err != nil {
				if errors.Is(err, core.ErrEmbeddingUnavailable) {
					logger.Debug().Err(err).Msg("vector search skipped")
				} else {
					logger.Warn().Err(err).Msg("query embedding failed")
				}
				return nil
			}
			res, err := s.repo.SearchVector(ctx, vec, pool)
			if err != nil {
				logger.Warn().Err(err).Msg("vector search failed")
				return nil
			}
			hits[0] = res
			return nil
		})
	}

	g.Go(func() error {
		res, err := s.keywordSearch(ctx, q.Query, pool)
		if err != nil {
			logger.Warn().Err(err).Msg("keyword search failed")
			return nil
		}
		hits[1] = res
		return nil
	})

	if q.CurrentFile != "" {
		g.Go(func() error {
			units, err := s.repo.GetByFile(ctx, q.CurrentFile, pool)
			if err != nil {
				logger.Warn().Err(err).Msg("file search failed")
				return nil
			}
			res := make([]core.ScoredID, 0, len(units))
			for _, u := range units {
				res = append(res, core.ScoredID{ID: u.ID, Score: 1})
			}
			hits[2] = res
			return nil
		})
	}

	// Methods never return errors; failures are absorbed above.
	_ = g.Wait()

	weights := [len(methodOrder)]float64{s.opts.Weights.Vector, s.opts.Weights.Keyword, s.opts.Weights.File}
	merged := make(map[string]*candidate)
	var ids []string
	for m, list := range hits {
		recallHits.WithLabelValues(methodOrder[m]).Add(float64(len(list)))
		for _, h := range list {
			c, ok := merged[h.ID]
			if !ok {
				c = &candidate{id: h.ID}
				merged[h.ID] = c
				ids = append(ids, h.ID)
			}
			c.score += weights[m] * h.Score
			c.methods[m] = true
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	units, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]RecallResult, 0, len(ids))
	for _, id := range ids {
		u, ok := units[id]
		if !ok || !u.IsActive || !q.accepts(u) {
			continue
		}
		c := merged[id]
		results = append(results, RecallResult{Unit: u, Score: c.score, MatchMethod: c.matchMethod()})
	}
	sortResults(results)
	return results, nil
}

// accepts applies the post-merge filters.
func (q RecallQuery) accepts(u *core.MemoryUnit) bool {
	if len(q.Types) > 0 {
		ok := false
		for _, t := range q.Types {
			if u.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if u.Importance < q.MinImportance {
		return false
	}
	if !q.Since.IsZero() && u.CreatedAt.Before(q.Since) {
		return false
	}
	if q.File != "" && !core.TouchesFile(u.RelatedFiles, q.File) {
		return false
	}
	return true
}

func sortResults(results []RecallResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Unit.ID < results[j].Unit.ID
	})
}

// keywordSearch queries the full-text index with the sanitized, synonym
// expanded terms and falls back to prefix matching on the raw terms.
func (s *Service) keywordSearch(ctx context.Context, query string, limit int) ([]core.ScoredID, error) {
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	res, err := s.repo.SearchFTS(ctx, ftsQuery(expandSynonyms(terms), false), limit)
	if err != nil {
		return nil, err
	}
	if len(res) > 0 {
		return res, nil
	}
	return s.repo.SearchFTS(ctx, ftsQuery(terms, true), limit)
}

// keywordTerms drops punctuation and short tokens. Order is kept,
// duplicates removed.
func keywordTerms(query string) []string {
	fields := textsim.Words(query)
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minKeywordLen {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

func expandSynonyms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t] = struct{}{}
	}
	out := append([]string(nil), terms...)
	added := 0
	for _, t := range terms {
		perTerm := 0
		for _, syn := range synonyms[t] {
			if added >= maxSynonymsTotal {
				return out
			}
			if perTerm >= maxSynonymsPerTok {
				break
			}
			if _, ok := seen[syn]; ok {
				continue
			}
			seen[syn] = struct{}{}
			out = append(out, syn)
			perTerm++
			added++
		}
	}
	return out
}

// ftsQuery OR-joins quoted terms. Terms contain only letters and digits, so
// quoting is enough to keep FTS5 operators out.
func ftsQuery(terms []string, prefix bool) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = `"` + t + `"`
		if prefix {
			parts[i] += "*"
		}
	}
	return strings.Join(parts, " OR ")
}
