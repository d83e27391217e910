package memory

import (
	"context"
	"slices"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

// escalationLevels raise the importance floor of mistakes that keep
// recurring. Ordered from the highest threshold down.
var escalationLevels = []struct {
	accessCount int
	floor       float64
}{
	{10, 1.0},
	{5, 0.9},
	{3, 0.8},
}

var escalationTypes = []core.MemoryType{
	core.TypeCorrection,
	core.TypeFailedSuggestion,
	core.TypeBugFix,
}

func escalationFloor(accessCount int) float64 {
	for _, l := range escalationLevels {
		if accessCount >= l.accessCount {
			return l.floor
		}
	}
	return 0
}

// escalatedFloor is the importance an escalated unit must keep.
func escalatedFloor(u *core.MemoryUnit) float64 {
	if !u.HasTag(core.TagEscalated) || !slices.Contains(escalationTypes, u.Type) {
		return 0
	}
	return escalationFloor(u.AccessCount)
}

// escalate promotes corrections and failed suggestions that were re-stored
// or recalled repeatedly so they outrank fresher but unproven memories.
func (s *Service) escalate(ctx context.Context) (int, error) {
	var candidates []*core.MemoryUnit
	for _, t := range escalationTypes {
		units, err := s.repo.GetByType(ctx, t, s.opts.SweepBatch)
		if err != nil {
			return 0, err
		}
		candidates = append(candidates, units...)
	}

	changed := 0
	err := s.repo.Atomic(ctx, func(repo core.Repository) error {
		for _, u := range candidates {
			floor := escalationFloor(u.AccessCount)
			if floor == 0 || u.Base() >= floor {
				continue
			}
			tags := append([]string(nil), u.Tags...)
			if !u.HasTag(core.TagEscalated) {
				tags = append(tags, core.TagEscalated)
			}
			if _, err := repo.Update(ctx, u.ID, core.UnitPatch{Importance: &floor, Tags: &tags}); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if changed > 0 {
		log.FromCtx(ctx).Info().Int("escalated", changed).Msg("escalated recurring corrections")
	}
	return changed, nil
}
