package memory

import (
	"context"
	"strings"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/log"
)

// typeWeights is indexed by core.MemoryType.
var typeWeights = [...]float64{
	core.TypeDecision:         1.3,
	core.TypeCorrection:       1.5,
	core.TypeConvention:       1.2,
	core.TypeBugFix:           1.3,
	core.TypeInsight:          1.0,
	core.TypeDependency:       1.0,
	core.TypeProvenPattern:    1.2,
	core.TypeFailedSuggestion: 1.4,
	core.TypeConversation:     0.8,
}

func typeWeight(t core.MemoryType) float64 {
	if int(t) < len(typeWeights) {
		return typeWeights[t]
	}
	return 1
}

const (
	accessBoostStep = 0.1
	fileLocality    = 1.5
	recentBoost     = 1.5
	weekBoost       = 1.2
	relatedMaxHops  = 1
)

// taskKeywords infer the task context. Checked in priority order.
var taskKeywords = []struct {
	task  TaskContext
	words []string
}{
	{TaskDebugging, []string{"bug", "error", "crash", "fail", "failing", "broken", "panic", "exception", "stack", "trace", "debug", "fix", "issue", "regression"}},
	{TaskCoding, []string{"implement", "add", "create", "build", "write", "refactor", "function", "feature", "code", "endpoint", "migrate"}},
	{TaskReviewing, []string{"review", "pr", "pull", "diff", "approve", "feedback", "check", "audit"}},
	{TaskExploring, []string{"how", "what", "why", "where", "explain", "understand", "overview", "architecture", "explore"}},
}

// attention scales each type by how useful it is for the task at hand.
var attention = map[TaskContext]map[core.MemoryType]float64{
	TaskDebugging: {
		core.TypeBugFix:           1.5,
		core.TypeCorrection:       1.3,
		core.TypeFailedSuggestion: 1.3,
		core.TypeInsight:          1.1,
		core.TypeConversation:     0.8,
	},
	TaskCoding: {
		core.TypeConvention:       1.4,
		core.TypeProvenPattern:    1.3,
		core.TypeDecision:         1.2,
		core.TypeDependency:       1.1,
		core.TypeFailedSuggestion: 1.2,
	},
	TaskReviewing: {
		core.TypeConvention:    1.4,
		core.TypeCorrection:    1.3,
		core.TypeDecision:      1.2,
		core.TypeProvenPattern: 1.1,
	},
	TaskExploring: {
		core.TypeDecision:     1.3,
		core.TypeInsight:      1.3,
		core.TypeDependency:   1.2,
		core.TypeConversation: 1.1,
	},
	TaskChatting: {
		core.TypeConversation: 1.2,
	},
}

// InferTaskContext picks the first task whose keywords appear in query.
func InferTaskContext(query string) TaskContext {
	words := make(map[string]struct{})
	for _, w := range textsim.Words(query) {
		words[w] = struct{}{}
	}
	for _, tk := range taskKeywords {
		for _, w := range tk.words {
			if _, ok := words[w]; ok {
				return tk.task
			}
		}
	}
	return TaskChatting
}

func attentionWeight(task TaskContext, t core.MemoryType) float64 {
	if w, ok := attention[task][t]; ok {
		return w
	}
	return 1
}

func recencyBoost(u *core.MemoryUnit, now time.Time) float64 {
	age := now.Sub(u.CreatedAt)
	switch {
	case age < day:
		return recentBoost
	case age < 7*day:
		return weekBoost
	}
	return 1
}

// rank applies the multiplicative boosts in a fixed order and re-sorts.
// It reads the clock once so one call scores every result at the same
// instant.
func (s *Service) rank(results []RecallResult, q RecallQuery) {
	now := s.now()
	task := q.Task
	if task == "" {
		task = InferTaskContext(q.Query)
	}

	for i := range results {
		u := results[i].Unit
		score := results[i].Score
		score *= typeWeight(u.Type)
		score *= 1 + accessBoostStep*float64(u.AccessCount)
		score *= recencyBoost(u, now)
		if q.CurrentFile != "" && core.TouchesFile(u.RelatedFiles, q.CurrentFile) {
			score *= fileLocality
		}
		score *= attentionWeight(task, u.Type)
		score *= EffectiveImportance(u, now)
		results[i].Score = score
	}
	sortResults(results)
}

// enrich follows one graph hop from each of the top results and appends
// active neighbors at a fraction of the parent score. Units already present
// are skipped.
func (s *Service) enrich(ctx context.Context, results []RecallResult) []RecallResult {
	top := min(s.opts.EnrichTopK, len(results))
	if top <= 0 {
		return results
	}

	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.Unit.ID] = struct{}{}
	}

	type link struct {
		id    string
		score float64
	}
	var links []link
	for _, r := range results[:top] {
		related, err := s.repo.GetRelated(ctx, r.Unit.ID, relatedMaxHops, 0)
		if err != nil {
			log.FromCtx(ctx).Warn().Err(err).Str("id", r.Unit.ID).Msg("graph enrichment failed")
			continue
		}
		for _, rel := range related {
			if _, ok := seen[rel.ID]; ok {
				continue
			}
			seen[rel.ID] = struct{}{}
			links = append(links, link{id: rel.ID, score: r.Score * s.opts.GraphFactor})
		}
	}
	if len(links) == 0 {
		return results
	}

	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.id
	}
	units, err := s.repo.GetMany(ctx, ids)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("failed to load related units")
		return results
	}

	var extra []RecallResult
	for _, l := range links {
		u, ok := units[l.id]
		if !ok || !u.IsActive {
			continue
		}
		extra = append(extra, RecallResult{Unit: u, Score: l.score, MatchMethod: MethodGraph})
	}
	recallHits.WithLabelValues(MethodGraph).Add(float64(len(extra)))
	sortResults(extra)
	return append(results, extra...)
}

// Recall retrieves, ranks and enriches memories for q. It never mutates the
// store, so identical calls return identical orderings.
func (s *Service) Recall(ctx context.Context, q RecallQuery) ([]RecallResult, error) {
	start := time.Now()
	defer func() { recallDuration.Observe(time.Since(start).Seconds()) }()

	if strings.TrimSpace(q.Query) == "" && q.CurrentFile == "" {
		return nil, &core.ValidationError{Field: "query", Reason: "query or current file required"}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.opts.RecallLimit
	}

	results, err := s.retrieve(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	s.rank(results, q)
	if len(results) > limit {
		results = results[:limit]
	}
	results = s.enrich(ctx, results)

	s.maybeMaintain(ctx)
	return results, nil
}
