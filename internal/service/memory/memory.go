package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/sandevgo/mnemo/pkg/retry"
)

// Service is the caller-facing memory engine: the gated write path, hybrid
// recall and the lifecycle maintainers, all over one Repository.
type Service struct {
	repo     core.Repository
	opts     Options
	gate     *QualityGate
	detector *ContradictionDetector
	worker   *EmbedWorker
	validate *validator.Validate
	retrier  *retry.Retrier

	maintMu     sync.Mutex
	lastInline  time.Time
	inlineBusy  bool
	maintenance sync.WaitGroup
}

// NewService wires the engine. embedder may be nil, which disables vector
// search; recall then runs on keyword, file and graph signals only.
func NewService(repo core.Repository, embedder core.Embedder, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		repo:     repo,
		opts:     opts,
		gate:     NewQualityGate(opts.Quality),
		detector: NewContradictionDetector(opts.TopicalOverlap, opts.SweepBatch),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		retrier:  retry.NewRetrier(retry.NewStorageConfig(core.IsRetryable)),
	}
	if embedder != nil {
		s.worker = NewEmbedWorker(repo, embedder, opts)
	}
	return s
}

// Worker returns the embedding worker, or nil when embeddings are disabled.
func (s *Service) Worker() *EmbedWorker {
	return s.worker
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

func (s *Service) embedUnit(ctx context.Context, u *core.MemoryUnit) {
	if s.worker == nil || !u.IsActive {
		return
	}
	s.worker.Enqueue(ctx, u)
}

func (s *Service) withRetry(ctx context.Context, op retry.Operation) error {
	return s.retrier.Do(ctx, op)
}

func (s *Service) validateParams(p StoreParams) error {
	if err := s.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &core.ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
		}
		return &core.ValidationError{Reason: err.Error()}
	}
	return nil
}

// Store is the single gated write path: validation, quality gate, duplicate
// merge, then contradiction demotion of older claims.
func (s *Service) Store(ctx context.Context, p StoreParams) (StoreResult, error) {
	logger := log.FromCtx(ctx)

	if err := s.validateParams(p); err != nil {
		return StoreResult{}, err
	}
	typ, err := core.ParseMemoryType(p.Type)
	if err != nil {
		return StoreResult{}, err
	}

	if r := s.gate.Check(p.Intent); r != nil {
		storeTotal.WithLabelValues("rejected").Inc()
		logger.Debug().Str("rule", r.Rule).Str("reason", r.Reason).Msg("memory rejected by quality gate")
		return StoreResult{Rejection: r}, nil
	}
	for _, f := range []struct{ name, text string }{{"action", p.Action}, {"reason", p.Reason}, {"impact", p.Impact}} {
		if r := s.gate.CheckSupplementary(f.name, f.text); r != nil {
			storeTotal.WithLabelValues("rejected").Inc()
			return StoreResult{Rejection: r}, nil
		}
	}

	candidate := core.MemoryUnit{
		Type:          typ,
		Intent:        strings.TrimSpace(p.Intent),
		Action:        strings.TrimSpace(p.Action),
		Reason:        strings.TrimSpace(p.Reason),
		Impact:        strings.TrimSpace(p.Impact),
		Outcome:       p.Outcome,
		RelatedFiles:  p.RelatedFiles,
		Tags:          p.Tags,
		SourceEventID: p.SourceEventID,
	}
	if p.Confidence != nil {
		candidate.Confidence = *p.Confidence
	}
	if p.Importance != nil {
		candidate.Importance = *p.Importance
	}

	var result StoreResult
	err = s.withRetry(ctx, func() error {
		result = StoreResult{}
		return s.repo.Atomic(ctx, func(repo core.Repository) error {
			unit, created, err := repo.Add(ctx, candidate)
			if err != nil {
				return err
			}
			result.Unit, result.Created = unit, created
			if !created {
				return nil
			}

			hits, err := s.detector.Find(ctx, repo, unit)
			if err != nil {
				return fmt.Errorf("failed to check contradictions: %w", err)
			}
			if err := s.detector.Apply(ctx, repo, unit, hits); err != nil {
				return fmt.Errorf("failed to apply contradictions: %w", err)
			}
			for _, h := range hits {
				result.Contradicted = append(result.Contradicted, h.Old.ID)
			}
			return nil
		})
	})
	if err != nil {
		return StoreResult{}, err
	}

	if result.Created {
		storeTotal.WithLabelValues("created").Inc()
		s.embedUnit(ctx, result.Unit)
		logger.Info().Str("id", result.Unit.ID).Stringer("type", result.Unit.Type).Msg("stored memory")
	} else {
		storeTotal.WithLabelValues("merged").Inc()
		logger.Debug().Str("id", result.Unit.ID).Msg("merged into existing memory")
	}
	return result, nil
}

// Update applies a partial change. Text changes pass the quality gate and
// trigger re-embedding. An unknown id returns (nil, nil).
func (s *Service) Update(ctx context.Context, id string, patch core.UnitPatch) (*core.MemoryUnit, StoreResult, error) {
	if id == "" {
		return nil, StoreResult{}, &core.ValidationError{Field: "id", Reason: "required"}
	}
	if patch.Intent != nil {
		if r := s.gate.Check(*patch.Intent); r != nil {
			return nil, StoreResult{Rejection: r}, nil
		}
	}
	for _, f := range []struct {
		name string
		text *string
	}{{"action", patch.Action}, {"reason", patch.Reason}, {"impact", patch.Impact}} {
		if f.text == nil {
			continue
		}
		if r := s.gate.CheckSupplementary(f.name, *f.text); r != nil {
			return nil, StoreResult{Rejection: r}, nil
		}
	}

	var unit *core.MemoryUnit
	err := s.withRetry(ctx, func() error {
		var err error
		unit, err = s.repo.Update(ctx, id, patch)
		return err
	})
	if err != nil {
		return nil, StoreResult{}, err
	}
	if unit != nil && (patch.Intent != nil || patch.Action != nil || patch.Reason != nil) {
		s.embedUnit(ctx, unit)
	}
	return unit, StoreResult{Unit: unit}, nil
}

// Deactivate retires a unit. It stays readable by id and in exports. A
// replacement, when given, must be an existing unit.
func (s *Service) Deactivate(ctx context.Context, id, supersededBy string) error {
	if id == "" {
		return &core.ValidationError{Field: "id", Reason: "required"}
	}
	if supersededBy == id {
		return &core.ValidationError{Field: "supersededBy", Reason: "unit cannot supersede itself"}
	}
	return s.withRetry(ctx, func() error {
		return s.repo.Atomic(ctx, func(repo core.Repository) error {
			if supersededBy != "" {
				found, err := repo.GetMany(ctx, []string{supersededBy})
				if err != nil {
					return err
				}
				if _, ok := found[supersededBy]; !ok {
					return fmt.Errorf("deactivate %s: replacement %s: %w", id, supersededBy, core.ErrUnitNotFound)
				}
			}
			if err := repo.Deactivate(ctx, id, supersededBy); err != nil {
				return err
			}
			if supersededBy == "" {
				return nil
			}
			return repo.AddEdge(ctx, core.Edge{SourceID: id, TargetID: supersededBy, Relation: core.RelReplacedBy})
		})
	})
}

func (s *Service) Get(ctx context.Context, id string) (*core.MemoryUnit, error) {
	return s.repo.Get(ctx, id)
}

// Touch reinforces a unit that proved useful to the caller.
func (s *Service) Touch(ctx context.Context, id string) error {
	return s.withRetry(ctx, func() error {
		return s.repo.Touch(ctx, id)
	})
}

// Relate records a typed edge between two existing units.
func (s *Service) Relate(ctx context.Context, e core.Edge) error {
	if !e.Relation.Valid() {
		return &core.ValidationError{Field: "relation", Reason: fmt.Sprintf("unknown relation %q", e.Relation)}
	}
	return s.withRetry(ctx, func() error {
		return s.repo.Atomic(ctx, func(repo core.Repository) error {
			found, err := repo.GetMany(ctx, []string{e.SourceID, e.TargetID})
			if err != nil {
				return err
			}
			for _, id := range []string{e.SourceID, e.TargetID} {
				if _, ok := found[id]; !ok {
					return fmt.Errorf("relate %s: %w", id, core.ErrUnitNotFound)
				}
			}
			return repo.AddEdge(ctx, e)
		})
	})
}

// Related returns graph neighbors of id up to maxHops away.
func (s *Service) Related(ctx context.Context, id string, maxHops, limit int) ([]core.RelatedUnit, error) {
	return s.repo.GetRelated(ctx, id, maxHops, limit)
}

// Stats summarizes the store.
type Stats struct {
	Total       int            `json:"total"`
	Active      int            `json:"active"`
	Inactive    int            `json:"inactive"`
	ByType      map[string]int `json:"byType"`
	Embedded    int            `json:"embedded"`
	Contradicts int            `json:"contradicted"`
	Escalated   int            `json:"escalated"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	units, err := s.repo.ListAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	missing, err := s.repo.UnitsMissingVectors(ctx, 0)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Total: len(units), ByType: make(map[string]int)}
	for _, u := range units {
		if !u.IsActive {
			st.Inactive++
			continue
		}
		st.Active++
		st.ByType[u.Type.String()]++
		if u.HasTag(core.TagContradicted) {
			st.Contradicts++
		}
		if u.HasTag(core.TagEscalated) {
			st.Escalated++
		}
	}
	st.Embedded = st.Active - len(missing)
	return st, nil
}
