package memory

import (
	"context"
	"sort"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/log"
)

const (
	ContradictionLexical = "lexical"
	ContradictionTopical = "topical"

	lexicalFactor = 0.5
	topicalFactor = 0.8
	demotionFloor = 0.1

	// Minimum topic overlap for two claims to be about the same thing.
	lexicalTopicOverlap = 0.5
	// Tokens shorter than this are rarely nouns.
	topicalMinTokenLen = 4
)

// contradictionTypes are the claim kinds that can contradict each other.
var contradictionTypes = map[core.MemoryType]struct{}{
	core.TypeDecision:   {},
	core.TypeCorrection: {},
	core.TypeConvention: {},
}

type Contradiction struct {
	Old    *core.MemoryUnit
	Kind   string
	Factor float64
}

// ContradictionDetector finds older active claims that a new unit overrides.
type ContradictionDetector struct {
	minShared  int
	candidates int
}

func NewContradictionDetector(minShared, candidates int) *ContradictionDetector {
	if minShared <= 0 {
		minShared = 2
	}
	return &ContradictionDetector{minShared: minShared, candidates: candidates}
}

// topicTokens are significant tokens without polarity or antonym words, so
// "always X" and "never X" share a topic.
func topicTokens(text string) map[string]struct{} {
	set := textsim.TokenSet(text)
	for t := range set {
		if textsim.Negated(t) || textsim.IsPolarWord(t) {
			delete(set, t)
		}
	}
	return set
}

func (d *ContradictionDetector) Find(ctx context.Context, repo core.Repository, u *core.MemoryUnit) ([]Contradiction, error) {
	if _, ok := contradictionTypes[u.Type]; !ok {
		return nil, nil
	}

	existing, err := repo.GetByType(ctx, u.Type, d.candidates)
	if err != nil {
		return nil, err
	}

	text := u.Text()
	topic := topicTokens(text)
	var hits []Contradiction
	for _, old := range existing {
		if old.ID == u.ID {
			continue
		}
		oldText := old.Text()
		oldTopic := topicTokens(oldText)

		if textsim.Jaccard(topic, oldTopic) >= lexicalTopicOverlap &&
			(!textsim.SamePolarity(text, oldText) || textsim.HasAntonymPair(text, oldText)) {
			hits = append(hits, Contradiction{Old: old, Kind: ContradictionLexical, Factor: lexicalFactor})
			continue
		}

		if u.Type == core.TypeDecision && d.sharedNouns(topic, oldTopic) >= d.minShared {
			hits = append(hits, Contradiction{Old: old, Kind: ContradictionTopical, Factor: topicalFactor})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Old.ID < hits[j].Old.ID })
	return hits, nil
}

func (d *ContradictionDetector) sharedNouns(a, b map[string]struct{}) int {
	n := 0
	for _, t := range textsim.Shared(a, b) {
		if len([]rune(t)) >= topicalMinTokenLen {
			n++
		}
	}
	return n
}

// Apply demotes every contradicted unit, tags it and links the new unit to
// it with a contradicts edge. The new unit is left untouched.
func (d *ContradictionDetector) Apply(ctx context.Context, repo core.Repository, u *core.MemoryUnit, hits []Contradiction) error {
	logger := log.FromCtx(ctx)
	for _, h := range hits {
		importance := demote(h.Old.Base(), h.Factor)
		tags := append([]string(nil), h.Old.Tags...)
		if !h.Old.HasTag(core.TagContradicted) {
			tags = append(tags, core.TagContradicted)
		}

		if _, err := repo.Update(ctx, h.Old.ID, core.UnitPatch{Importance: &importance, Tags: &tags}); err != nil {
			return err
		}

		weight := 1.0
		if h.Kind == ContradictionTopical {
			weight = 0.5
		}
		if err := repo.AddEdge(ctx, core.Edge{
			SourceID: u.ID,
			TargetID: h.Old.ID,
			Relation: core.RelContradicts,
			Weight:   weight,
		}); err != nil {
			return err
		}

		contradictionsTotal.WithLabelValues(h.Kind).Inc()
		logger.Info().
			Str("new_id", u.ID).
			Str("old_id", h.Old.ID).
			Str("kind", h.Kind).
			Float64("importance", importance).
			Msg("demoted contradicted memory")
	}
	return nil
}

// demote multiplies importance by factor without going below the floor,
// and never raises a value already under it.
func demote(importance, factor float64) float64 {
	return min(importance, max(importance*factor, demotionFloor))
}
