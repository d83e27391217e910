package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/log"
)

const (
	minClusterSize       = 3
	sharedTokenRatio     = 0.6
	consolidationBoost   = 1.2
	maxTemplateKeywords  = 6
	consolidatedOutcome  = "consolidated"
	consolidatedFallback = "recurring pattern"
)

// consolidationTemplates phrase the merged unit per type: shared keywords
// first, then the member count.
var consolidationTemplates = map[core.MemoryType]string{
	core.TypeDecision:         "Recurring decision about %s (%d related decisions)",
	core.TypeCorrection:       "Repeated correction about %s (%d corrections)",
	core.TypeConvention:       "Established convention for %s (%d observations)",
	core.TypeBugFix:           "Recurring bug pattern involving %s (%d fixes)",
	core.TypeInsight:          "Consolidated insight on %s (%d insights)",
	core.TypeDependency:       "Dependency notes for %s (%d entries)",
	core.TypeProvenPattern:    "Proven pattern for %s (%d confirmations)",
	core.TypeFailedSuggestion: "Repeatedly rejected suggestion about %s (%d rejections)",
	core.TypeConversation:     "Conversation summary on %s (%d sessions)",
}

type cluster struct {
	typ     core.MemoryType
	members []*core.MemoryUnit
}

// consolidate merges clusters of similar active units into one summary
// unit each. It only runs once the active count exceeds the threshold.
func (s *Service) consolidate(ctx context.Context) (int, error) {
	active, err := s.repo.CountActive(ctx)
	if err != nil {
		return 0, err
	}
	if active <= s.opts.ConsolidationThreshold {
		return 0, nil
	}

	units, err := s.repo.GetActive(ctx, 0)
	if err != nil {
		return 0, err
	}

	clusters := findClusters(units, s.opts.ConsolidationSimilarity)
	if len(clusters) == 0 {
		return 0, nil
	}

	var merged []*core.MemoryUnit
	err = s.repo.Atomic(ctx, func(repo core.Repository) error {
		merged = merged[:0]
		for _, c := range clusters {
			unit := mergeCluster(c)
			if err := repo.Insert(ctx, unit); err != nil {
				return fmt.Errorf("failed to insert consolidated unit: %w", err)
			}
			for _, m := range c.members {
				if err := repo.Deactivate(ctx, m.ID, unit.ID); err != nil {
					return err
				}
				if err := repo.AddEdge(ctx, core.Edge{
					SourceID: m.ID,
					TargetID: unit.ID,
					Relation: core.RelReplacedBy,
				}); err != nil {
					return err
				}
			}
			merged = append(merged, unit)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, u := range merged {
		s.embedUnit(ctx, u)
	}
	log.FromCtx(ctx).Info().Int("clusters", len(merged)).Msg("consolidated memory clusters")
	return len(merged), nil
}

// findClusters groups units by type and greedily clusters each group around
// seeds. Already consolidated units never seed or join a cluster, which
// makes repeated runs a no-op.
func findClusters(units []*core.MemoryUnit, similarity float64) []cluster {
	byType := make(map[core.MemoryType][]*core.MemoryUnit)
	for _, u := range units {
		if u.HasTag(core.TagConsolidated) {
			continue
		}
		byType[u.Type] = append(byType[u.Type], u)
	}

	var clusters []cluster
	for _, t := range core.AllMemoryTypes() {
		group := byType[t]
		if len(group) < minClusterSize {
			continue
		}
		// Oldest first so seeds are stable between runs.
		sort.Slice(group, func(i, j int) bool {
			if !group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].CreatedAt.Before(group[j].CreatedAt)
			}
			return group[i].ID < group[j].ID
		})

		tokens := make([]map[string]struct{}, len(group))
		for i, u := range group {
			tokens[i] = textsim.TokenSet(u.Text())
		}

		used := make([]bool, len(group))
		for i := range group {
			if used[i] {
				continue
			}
			members := []int{i}
			for j := i + 1; j < len(group); j++ {
				if used[j] {
					continue
				}
				if textsim.Jaccard(tokens[i], tokens[j]) > similarity {
					members = append(members, j)
				}
			}
			if len(members) < minClusterSize {
				continue
			}
			c := cluster{typ: t}
			for _, m := range members {
				used[m] = true
				c.members = append(c.members, group[m])
			}
			clusters = append(clusters, c)
		}
	}
	return clusters
}

func mergeCluster(c cluster) *core.MemoryUnit {
	keywords := sharedKeywords(c.members)
	topic := consolidatedFallback
	if len(keywords) > 0 {
		topic = strings.Join(keywords, ", ")
	}

	var (
		importance float64
		tags       []string
		files      []string
		access     int
		seenTag    = make(map[string]struct{})
		seenFile   = make(map[string]struct{})
		actions    []string
	)
	for _, m := range c.members {
		importance += m.Base()
		access += m.AccessCount
		for _, t := range m.Tags {
			if _, ok := seenTag[t]; !ok && t != core.TagContradicted {
				seenTag[t] = struct{}{}
				tags = append(tags, t)
			}
		}
		for _, f := range m.RelatedFiles {
			if _, ok := seenFile[f]; !ok {
				seenFile[f] = struct{}{}
				files = append(files, f)
			}
		}
		if m.Action != "" && len(actions) < minClusterSize {
			actions = append(actions, m.Action)
		}
	}
	importance = min(importance/float64(len(c.members))*consolidationBoost, 1)
	if _, ok := seenTag[core.TagConsolidated]; !ok {
		tags = append(tags, core.TagConsolidated)
	}

	return &core.MemoryUnit{
		Type:         c.typ,
		Intent:       fmt.Sprintf(consolidationTemplates[c.typ], topic, len(c.members)),
		Action:       strings.Join(actions, "; "),
		Reason:       c.members[0].Intent,
		Outcome:      consolidatedOutcome,
		RelatedFiles: files,
		Tags:         tags,
		Confidence:   core.DefaultConfidence,
		Importance:   importance,
		AccessCount:  access,
		IsActive:     true,
	}
}

// sharedKeywords returns tokens present in at least 60% of members, most
// frequent first.
func sharedKeywords(members []*core.MemoryUnit) []string {
	counts := make(map[string]int)
	for _, m := range members {
		for t := range textsim.TokenSet(m.Text()) {
			counts[t]++
		}
	}

	need := int(float64(len(members))*sharedTokenRatio + 0.999)
	var out []string
	for t, n := range counts {
		if n >= need {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	if len(out) > maxTemplateKeywords {
		out = out[:maxTemplateKeywords]
	}
	return out
}
