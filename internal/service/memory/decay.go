package memory

import (
	"context"
	"math"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

const (
	decayPerDay     = 0.02
	accessStep      = 0.1
	maxAccessFactor = 2.0
	importanceFloor = 0.1
	// Changes below this are not worth a write.
	decayPersistDelta = 0.05

	day = 24 * time.Hour
)

// EffectiveImportance combines base importance with age decay and access
// reinforcement, clamped to [0.1, 1]. It is a pure function of the unit and
// now, so evaluating it twice at the same instant yields the same value.
// Creation is not an access: a unit that was never touched gets no recency
// boost.
func EffectiveImportance(u *core.MemoryUnit, now time.Time) float64 {
	ageDays := max(now.Sub(u.CreatedAt).Hours()/24, 0)
	ageFactor := 1 / (1 + ageDays*decayPerDay)
	accessFactor := math.Min(maxAccessFactor, 1+accessStep*float64(u.AccessCount))

	recency := 1.0
	if !u.LastAccessed.IsZero() {
		since := now.Sub(u.LastAccessed)
		switch {
		case since < day:
			recency = 1.3
		case since < 7*day:
			recency = 1.1
		}
	}

	return core.Clamp(u.Base()*ageFactor*accessFactor*recency, importanceFloor, 1)
}

// sweepDecay persists effective importance for active units whose value has
// drifted by more than decayPersistDelta. Escalated mistakes never decay
// below their escalation floor.
func (s *Service) sweepDecay(ctx context.Context) (int, error) {
	units, err := s.repo.GetActive(ctx, s.opts.SweepBatch)
	if err != nil {
		return 0, err
	}

	now := s.now()
	changed := 0
	err = s.repo.Atomic(ctx, func(repo core.Repository) error {
		for _, u := range units {
			eff := max(EffectiveImportance(u, now), escalatedFloor(u))
			if math.Abs(eff-u.Importance) <= decayPersistDelta {
				continue
			}
			if err := repo.UpdateImportance(ctx, u.ID, eff); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.FromCtx(ctx).Debug().Int("scanned", len(units)).Int("changed", changed).Msg("decay sweep finished")
	return changed, nil
}
