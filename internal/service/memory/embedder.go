package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/mnemo/internal/core"
	"github.com/sandevgo/mnemo/pkg/log"
)

const (
	EmbedderBatchSize    = 32
	EmbedderPollInterval = time.Minute
	EmbedderQueueSize    = 256
	EmbedderTimeout      = 30 * time.Second
)

type embedReply struct {
	vec []float32
	err error
}

type embedRequest struct {
	id   string
	text string
	// unitID is set for background unit embeddings.
	unitID string
	// reply is set for awaited query embeddings.
	reply chan embedReply
}

// EmbedWorker owns every call to the embedder and every vector write. Query
// embeddings are awaited by the caller with a timeout; unit embeddings are
// fire-and-forget and backfilled on a ticker when the queue overflows.
type EmbedWorker struct {
	repo     core.VectorRepository
	embedder core.Embedder

	timeout   time.Duration
	interval  time.Duration
	batchSize int

	queries chan embedRequest
	units   chan embedRequest

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

func NewEmbedWorker(repo core.VectorRepository, embedder core.Embedder, opts Options) *EmbedWorker {
	w := &EmbedWorker{
		repo:      repo,
		embedder:  embedder,
		timeout:   opts.EmbedTimeout,
		interval:  opts.BackfillInterval,
		batchSize: opts.BackfillBatch,
		stop:      make(chan struct{}),
	}
	if w.timeout <= 0 {
		w.timeout = EmbedderTimeout
	}
	if w.interval <= 0 {
		w.interval = EmbedderPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = EmbedderBatchSize
	}
	queue := opts.EmbedQueue
	if queue <= 0 {
		queue = EmbedderQueueSize
	}
	w.queries = make(chan embedRequest, 16)
	w.units = make(chan embedRequest, queue)
	return w
}

func (w *EmbedWorker) Start(ctx context.Context) error {
	ctx = log.WithComponent(ctx, "embed_worker")
	logger := log.FromCtx(ctx)
	logger.Info().Str("model", w.embedder.Model()).Int("dims", w.embedder.Dims()).Msg("starting embedding worker")

	w.running.Store(true)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.backfill(ctx)

	for {
		// Queries first: a caller is waiting on them.
		select {
		case req := <-w.queries:
			w.handleQuery(ctx, req)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down embedding worker")
			return nil
		case <-w.stop:
			logger.Info().Msg("embedding worker stopped")
			return nil
		case req := <-w.queries:
			w.handleQuery(ctx, req)
		case req := <-w.units:
			w.handleUnit(ctx, req)
		case <-ticker.C:
			w.backfill(ctx)
		}
	}
}

func (w *EmbedWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stop) })
	return nil
}

// Running reports whether the worker loop is accepting requests.
func (w *EmbedWorker) Running() bool {
	return w.running.Load()
}

// EmbedQuery embeds text on the worker and waits at most the configured
// timeout. Any failure is reported as core.ErrEmbeddingUnavailable.
func (w *EmbedWorker) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if !w.Running() {
		return nil, core.ErrEmbeddingUnavailable
	}

	req := embedRequest{
		id:    uuid.NewString(),
		text:  text,
		reply: make(chan embedReply, 1),
	}
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case w.queries <- req:
	case <-timer.C:
		embedFailures.WithLabelValues("timeout").Inc()
		return nil, fmt.Errorf("%w: request %s not accepted within %s", core.ErrEmbeddingUnavailable, req.id, w.timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, ctx.Err())
	}

	select {
	case rep := <-req.reply:
		if rep.err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, rep.err)
		}
		return rep.vec, nil
	case <-timer.C:
		embedFailures.WithLabelValues("timeout").Inc()
		log.FromCtx(ctx).Warn().Str("request_id", req.id).Dur("timeout", w.timeout).Msg("query embedding timed out")
		return nil, fmt.Errorf("%w: request %s timed out after %s", core.ErrEmbeddingUnavailable, req.id, w.timeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, ctx.Err())
	}
}

// Enqueue schedules u for embedding without blocking. A full queue drops the
// request; the backfill ticker picks the unit up later.
func (w *EmbedWorker) Enqueue(ctx context.Context, u *core.MemoryUnit) {
	req := embedRequest{id: uuid.NewString(), text: u.Text(), unitID: u.ID}
	select {
	case w.units <- req:
	default:
		embedFailures.WithLabelValues("dropped").Inc()
		log.FromCtx(ctx).Debug().Str("unit_id", u.ID).Msg("embed queue full, deferring to backfill")
	}
}

func (w *EmbedWorker) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	vec, err := w.embedder.Embed(ctx, text)
	embedDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		embedFailures.WithLabelValues(reason).Inc()
		return nil, err
	}
	return vec, nil
}

func (w *EmbedWorker) handleQuery(ctx context.Context, req embedRequest) {
	vec, err := w.embed(ctx, req.text)
	req.reply <- embedReply{vec: vec, err: err}
}

func (w *EmbedWorker) handleUnit(ctx context.Context, req embedRequest) {
	logger := log.FromCtx(ctx)

	vec, err := w.embed(ctx, req.text)
	if err != nil {
		logger.Warn().Err(err).Str("unit_id", req.unitID).Str("request_id", req.id).Msg("failed to embed memory")
		return
	}
	if err := w.repo.StoreVector(ctx, req.unitID, vec, w.embedder.Model()); err != nil {
		logger.Error().Err(err).Str("unit_id", req.unitID).Msg("failed to save embedding")
	}
}

func (w *EmbedWorker) backfill(ctx context.Context) {
	units, err := w.repo.UnitsMissingVectors(ctx, w.batchSize)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("failed to list units without embeddings")
		return
	}
	for _, u := range units {
		if ctx.Err() != nil {
			return
		}
		w.handleUnit(ctx, embedRequest{id: uuid.NewString(), text: u.Text(), unitID: u.ID})
	}
	if len(units) > 0 {
		log.FromCtx(ctx).Debug().Int("count", len(units)).Msg("backfilled embeddings")
	}
}
