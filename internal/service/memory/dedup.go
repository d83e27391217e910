package memory

import (
	"context"
	"sort"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/internal/textsim"
	"github.com/sandevgo/mnemo/pkg/log"
)

// sweepDuplicates merges active units whose intents are near-duplicates and
// slipped past the write path, for example through import or edits. The older unit survives and
// absorbs the access count of the newer one.
func (s *Service) sweepDuplicates(ctx context.Context) (int, error) {
	units, err := s.repo.GetActive(ctx, s.opts.SweepBatch)
	if err != nil {
		return 0, err
	}

	// Oldest first: the survivor is always the earlier unit.
	sort.Slice(units, func(i, j int) bool {
		if !units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].CreatedAt.Before(units[j].CreatedAt)
		}
		return units[i].ID < units[j].ID
	})

	tokens := make([]map[string]struct{}, len(units))
	for i, u := range units {
		tokens[i] = textsim.TokenSet(u.Intent)
	}

	merged := 0
	gone := make([]bool, len(units))
	err = s.repo.Atomic(ctx, func(repo core.Repository) error {
		for i, keep := range units {
			if gone[i] {
				continue
			}
			for j := i + 1; j < len(units); j++ {
				dup := units[j]
				if gone[j] || dup.Type != keep.Type {
					continue
				}
				if textsim.Jaccard(tokens[i], tokens[j]) < s.opts.DuplicateThreshold {
					continue
				}
				if !textsim.SamePolarity(keep.Intent, dup.Intent) {
					continue
				}

				if err := repo.Deactivate(ctx, dup.ID, keep.ID); err != nil {
					return err
				}
				if err := repo.AddEdge(ctx, core.Edge{SourceID: dup.ID, TargetID: keep.ID, Relation: core.RelReplacedBy}); err != nil {
					return err
				}
				for range dup.AccessCount + 1 {
					if err := repo.Touch(ctx, keep.ID); err != nil {
						return err
					}
				}
				gone[j] = true
				merged++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if merged > 0 {
		log.FromCtx(ctx).Info().Int("merged", merged).Msg("merged duplicate memories")
	}
	return merged, nil
}
