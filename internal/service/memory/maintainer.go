package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/mnemo/pkg/log"
)

const (
	StageDecay         = "decay"
	StageDedup         = "dedup"
	StageEscalation    = "escalation"
	StageConsolidation = "consolidation"
	StageCheckpoint    = "checkpoint"
)

// MaintenanceReport counts the units each stage changed.
type MaintenanceReport struct {
	Decayed      int           `json:"decayed"`
	Merged       int           `json:"merged"`
	Escalated    int           `json:"escalated"`
	Consolidated int           `json:"consolidated"`
	Active       int           `json:"active"`
	Duration     time.Duration `json:"duration"`
}

// RunMaintenance runs decay, duplicate sweep, escalation and consolidation,
// then checkpoints the store. A failing stage does not stop the later ones;
// all stage errors are joined.
func (s *Service) RunMaintenance(ctx context.Context) (MaintenanceReport, error) {
	ctx = log.WithComponent(ctx, "maintenance")
	start := time.Now()

	var (
		report MaintenanceReport
		errs   []error
	)
	stages := []struct {
		name string
		run  func(context.Context) (int, error)
		out  *int
	}{
		{StageDecay, s.sweepDecay, &report.Decayed},
		{StageDedup, s.sweepDuplicates, &report.Merged},
		{StageEscalation, s.escalate, &report.Escalated},
		{StageConsolidation, s.consolidate, &report.Consolidated},
	}
	for _, st := range stages {
		stageStart := time.Now()
		var n int
		err := s.withRetry(ctx, func() error {
			var err error
			n, err = st.run(ctx)
			return err
		})
		maintenanceDuration.WithLabelValues(st.name).Observe(time.Since(stageStart).Seconds())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", st.name, err))
			continue
		}
		*st.out = n
		lifecycleChanges.WithLabelValues(st.name).Add(float64(n))
	}

	checkpointStart := time.Now()
	if err := s.repo.Checkpoint(ctx, s.opts.Vacuum); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", StageCheckpoint, err))
	}
	maintenanceDuration.WithLabelValues(StageCheckpoint).Observe(time.Since(checkpointStart).Seconds())

	if active, err := s.repo.CountActive(ctx); err == nil {
		report.Active = active
		activeUnits.Set(float64(active))
	}
	report.Duration = time.Since(start)

	log.FromCtx(ctx).Info().
		Int("decayed", report.Decayed).
		Int("merged", report.Merged).
		Int("escalated", report.Escalated).
		Int("consolidated", report.Consolidated).
		Int("active", report.Active).
		Dur("took", report.Duration).
		Msg("maintenance finished")

	return report, errors.Join(errs...)
}

// maybeMaintain starts a background maintenance run from the read path when
// inline maintenance is enabled and the interval has elapsed.
func (s *Service) maybeMaintain(ctx context.Context) {
	if !s.opts.InlineMaintenance {
		return
	}

	s.maintMu.Lock()
	now := s.now()
	if s.inlineBusy || now.Sub(s.lastInline) < s.opts.InlineInterval {
		s.maintMu.Unlock()
		return
	}
	s.inlineBusy = true
	s.lastInline = now
	s.maintMu.Unlock()

	s.maintenance.Add(1)
	go func() {
		defer s.maintenance.Done()
		defer func() {
			s.maintMu.Lock()
			s.inlineBusy = false
			s.maintMu.Unlock()
		}()
		if _, err := s.RunMaintenance(context.WithoutCancel(ctx)); err != nil {
			log.FromCtx(ctx).Warn().Err(err).Msg("inline maintenance failed")
		}
	}()
}

// WaitMaintenance blocks until inline maintenance runs have finished.
func (s *Service) WaitMaintenance() {
	s.maintenance.Wait()
}

// Maintainer runs maintenance on a fixed interval.
type Maintainer struct {
	svc      *Service
	interval time.Duration
	stop     chan struct{}
}

func NewMaintainer(svc *Service) *Maintainer {
	interval := svc.opts.MaintenanceInterval
	if interval <= 0 {
		interval = DefaultOptions().MaintenanceInterval
	}
	return &Maintainer{svc: svc, interval: interval, stop: make(chan struct{})}
}

func (m *Maintainer) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Dur("interval", m.interval).Msg("starting maintainer")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stop:
			return nil
		case <-ticker.C:
			if _, err := m.svc.RunMaintenance(ctx); err != nil {
				logger.Error().Err(err).Msg("maintenance failed")
			}
		}
	}
}

func (m *Maintainer) Shutdown(ctx context.Context) error {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	m.svc.WaitMaintenance()
	return nil
}
