package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

const BundleVersion = 1

// BundleMemory is the portable form of a unit.
type BundleMemory struct {
	ID           string          `json:"id"`
	Type         core.MemoryType `json:"type"`
	Intent       string          `json:"intent"`
	Action       string          `json:"action"`
	Reason       string          `json:"reason,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	RelatedFiles []string        `json:"relatedFiles,omitempty"`
	Confidence   float64         `json:"confidence"`
	Importance   float64         `json:"importance"`
	AccessCount  int             `json:"accessCount"`
	CreatedAt    time.Time       `json:"createdAt"`
}

type Bundle struct {
	Version     int            `json:"version"`
	ExportedAt  time.Time      `json:"exportedAt"`
	MemoryCount int            `json:"memoryCount"`
	Memories    []BundleMemory `json:"memories"`
}

type ImportReport struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// ExportAll bundles every active unit.
func (s *Service) ExportAll(ctx context.Context) (*Bundle, error) {
	units, err := s.repo.GetActive(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}

	b := &Bundle{
		Version:    BundleVersion,
		ExportedAt: s.now().UTC(),
		Memories:   make([]BundleMemory, 0, len(units)),
	}
	for _, u := range units {
		b.Memories = append(b.Memories, BundleMemory{
			ID:           u.ID,
			Type:         u.Type,
			Intent:       u.Intent,
			Action:       u.Action,
			Reason:       u.Reason,
			Tags:         u.Tags,
			RelatedFiles: u.RelatedFiles,
			Confidence:   u.Confidence,
			Importance:   u.Base(),
			AccessCount:  u.AccessCount,
			CreatedAt:    u.CreatedAt,
		})
	}
	b.MemoryCount = len(b.Memories)
	return b, nil
}

func WriteBundle(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b)
}

// ReadBundle decodes a bundle and rejects versions this build cannot read.
func ReadBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, &core.ValidationError{Field: "bundle", Reason: err.Error()}
	}
	if err := checkBundleVersion(b.Version); err != nil {
		return nil, err
	}
	return &b, nil
}

func checkBundleVersion(v int) error {
	if v != BundleVersion {
		return &core.ValidationError{Field: "version", Reason: fmt.Sprintf("unsupported bundle version %d", v)}
	}
	return nil
}

// ImportBundle inserts bundled memories, keeping their ids and timestamps.
// Memories whose type and intent already exist are skipped, so importing
// the same bundle twice is a no-op. Per-memory failures are collected and
// do not abort the import.
func (s *Service) ImportBundle(ctx context.Context, b *Bundle) (ImportReport, error) {
	if err := checkBundleVersion(b.Version); err != nil {
		return ImportReport{}, err
	}

	logger := log.FromCtx(ctx)
	var (
		report   ImportReport
		inserted []*core.MemoryUnit
	)
	for i, m := range b.Memories {
		u, err := s.importOne(ctx, m)
		switch {
		case err != nil:
			report.Errors = append(report.Errors, fmt.Sprintf("memory %d (%s): %v", i, m.ID, err))
		case u == nil:
			report.Skipped++
		default:
			report.Imported++
			inserted = append(inserted, u)
		}
	}

	for _, u := range inserted {
		s.embedUnit(ctx, u)
	}
	logger.Info().
		Int("imported", report.Imported).
		Int("skipped", report.Skipped).
		Int("errors", len(report.Errors)).
		Msg("bundle imported")
	return report, nil
}

// importOne returns nil without error when the memory is skipped.
func (s *Service) importOne(ctx context.Context, m BundleMemory) (*core.MemoryUnit, error) {
	if !m.Type.Valid() {
		return nil, &core.ValidationError{Field: "type", Reason: "invalid memory type"}
	}
	if m.Intent == "" {
		return nil, &core.ValidationError{Field: "intent", Reason: "required"}
	}

	var unit *core.MemoryUnit
	err := s.withRetry(ctx, func() error {
		unit = nil
		return s.repo.Atomic(ctx, func(repo core.Repository) error {
			existing, err := repo.FindByTypeIntent(ctx, m.Type, m.Intent)
			if err != nil || existing != nil {
				return err
			}
			if m.ID != "" {
				if _, err := repo.Get(ctx, m.ID); err == nil {
					return nil
				} else if !isNotFound(err) {
					return err
				}
			}

			u := &core.MemoryUnit{
				ID:           m.ID,
				Type:         m.Type,
				Intent:       m.Intent,
				Action:       m.Action,
				Reason:       m.Reason,
				Outcome:      core.OutcomeUnknown,
				Tags:         m.Tags,
				RelatedFiles: m.RelatedFiles,
				Confidence:   core.Clamp01(m.Confidence),
				Importance:   core.Clamp01(m.Importance),
				AccessCount:  max(m.AccessCount, 0),
				IsActive:     true,
				CreatedAt:    m.CreatedAt,
			}
			if err := repo.Insert(ctx, u); err != nil {
				return err
			}
			unit = u
			return nil
		})
	})
	return unit, err
}

func isNotFound(err error) bool {
	return errors.Is(err, core.ErrUnitNotFound)
}
