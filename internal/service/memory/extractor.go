package memory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

const (
	defaultExtractBatch    = 100
	defaultExtractInterval = 30 * time.Second
	defaultExtractAttempts = 3
)

var conventionalCommit = regexp.MustCompile(`^([a-zA-Z]+)(\([^)]*\))?!?:\s*`)

// chatCues classify chat lines that carry durable knowledge. Checked in
// order; chat without a cue is not stored.
var chatCues = []struct {
	typ  core.MemoryType
	cues []string
}{
	{core.TypeCorrection, []string{"don't ", "do not ", "that's wrong", "that is wrong", "instead of", "actually,", "stop using"}},
	{core.TypeFailedSuggestion, []string{"didn't work", "did not work", "doesn't work", "does not work", "rejected"}},
	{core.TypeConvention, []string{"always ", "never ", "we prefer", "convention", "by default we"}},
	{core.TypeDecision, []string{"we decided", "decided to", "going with", "we will use", "let's use", "switch to"}},
}

// Extractor turns raw events into memory units on a ticker. Every event is
// marked processed once handled, whether or not it produced a unit. An event
// that keeps failing is retried on later batches and given up after
// MaxAttempts, so it cannot hold back the events queued behind it.
type Extractor struct {
	svc         *Service
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int

	mu       sync.Mutex
	attempts map[string]int
}

func NewExtractor(svc *Service) *Extractor {
	return &Extractor{
		svc:         svc,
		Interval:    defaultExtractInterval,
		BatchSize:   defaultExtractBatch,
		MaxAttempts: defaultExtractAttempts,
		attempts:    make(map[string]int),
	}
}

func (e *Extractor) Start(ctx context.Context) error {
	ctx = log.WithComponent(ctx, "extractor")
	logger := log.FromCtx(ctx)
	logger.Info().Msg("starting event extractor")

	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.ProcessBatch(ctx); err != nil {
				logger.Error().Err(err).Msg("batch processing failed")
			}
		}
	}
}

func (e *Extractor) Shutdown(ctx context.Context) error {
	return nil
}

// ProcessBatch handles up to BatchSize unprocessed events and returns the
// number of units created. A failing event does not stop the batch; all
// failures are joined into the returned error.
func (e *Extractor) ProcessBatch(ctx context.Context) (int, error) {
	logger := log.FromCtx(ctx)

	events, err := e.svc.repo.ListUnprocessedEvents(ctx, e.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch events: %w", err)
	}

	var (
		created int
		errs    []error
	)
	for _, ev := range events {
		ok, err := e.processEvent(ctx, ev)
		if err != nil {
			errs = append(errs, err)
			if e.recordFailure(ev.ID) {
				logger.Error().Err(err).Str("event", ev.ID).Int("attempts", e.MaxAttempts).Msg("giving up on event")
				if err := e.markProcessed(ctx, ev.ID); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			logger.Warn().Err(err).Str("event", ev.ID).Msg("event processing failed, will retry")
			continue
		}
		e.forget(ev.ID)
		if ok {
			created++
		}
	}
	if len(events) > 0 {
		logger.Debug().Int("events", len(events)).Int("created", created).Int("failed", len(errs)).Msg("processed events")
	}
	return created, errors.Join(errs...)
}

// recordFailure counts a failed attempt and reports whether the event has
// run out of attempts.
func (e *Extractor) recordFailure(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attempts == nil {
		e.attempts = make(map[string]int)
	}
	e.attempts[id]++
	if e.attempts[id] < max(e.MaxAttempts, 1) {
		return false
	}
	delete(e.attempts, id)
	return true
}

func (e *Extractor) forget(id string) {
	e.mu.Lock()
	delete(e.attempts, id)
	e.mu.Unlock()
}

func (e *Extractor) markProcessed(ctx context.Context, id string) error {
	if err := e.svc.withRetry(ctx, func() error {
		return e.svc.repo.MarkEventProcessed(ctx, id)
	}); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

func (e *Extractor) processEvent(ctx context.Context, ev *core.Event) (bool, error) {
	created := false
	if params, ok := extractParams(ev); ok {
		res, err := e.svc.Store(ctx, params)
		if err != nil && !isValidation(err) {
			return false, fmt.Errorf("store event %s: %w", ev.ID, err)
		}
		created = err == nil && res.Created
	}

	if err := e.markProcessed(ctx, ev.ID); err != nil {
		return false, err
	}
	return created, nil
}

// extractParams classifies an event. File saves only feed sessions and
// never become units on their own.
func extractParams(ev *core.Event) (StoreParams, bool) {
	line := firstLine(ev.Content)
	if line == "" {
		return StoreParams{}, false
	}

	var typ core.MemoryType
	switch ev.Kind {
	case core.EventCorrection:
		typ = core.TypeCorrection
	case core.EventManual:
		typ = core.TypeInsight
	case core.EventCommit:
		typ, line = classifyCommit(line)
	case core.EventChat:
		var ok bool
		if typ, ok = classifyChat(line); !ok {
			return StoreParams{}, false
		}
	default:
		return StoreParams{}, false
	}

	return StoreParams{
		Type:          typ.String(),
		Intent:        line,
		Reason:        ev.Metadata[metaReason],
		RelatedFiles:  eventFiles(ev),
		SourceEventID: ev.ID,
	}, true
}

// classifyCommit maps conventional commit prefixes onto memory types and
// strips the prefix from the subject.
func classifyCommit(subject string) (core.MemoryType, string) {
	prefix := ""
	if m := conventionalCommit.FindStringSubmatch(subject); m != nil {
		prefix = strings.ToLower(m[1])
		subject = strings.TrimSpace(subject[len(m[0]):])
	}
	lower := strings.ToLower(subject)

	switch {
	case prefix == "fix" || strings.HasPrefix(lower, "fix "):
		return core.TypeBugFix, subject
	case prefix == "revert" || strings.HasPrefix(lower, "revert "):
		return core.TypeFailedSuggestion, subject
	case prefix == "deps" || prefix == "build" ||
		strings.HasPrefix(lower, "bump ") || strings.HasPrefix(lower, "upgrade "):
		return core.TypeDependency, subject
	case prefix == "style":
		return core.TypeConvention, subject
	}
	return core.TypeDecision, subject
}

func classifyChat(line string) (core.MemoryType, bool) {
	lower := strings.ToLower(line) + " "
	for _, c := range chatCues {
		for _, cue := range c.cues {
			if strings.Contains(lower, cue) {
				return c.typ, true
			}
		}
	}
	return 0, false
}

func eventFiles(ev *core.Event) []string {
	var files []string
	if ev.File != "" {
		files = append(files, ev.File)
	}
	for _, f := range strings.Split(ev.Metadata[metaFiles], ",") {
		if f = strings.TrimSpace(f); f != "" && f != ev.File {
			files = append(files, f)
		}
	}
	return files
}
