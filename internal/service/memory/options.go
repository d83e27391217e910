package memory

import (
	"time"

	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/core"
)

type QualityOptions struct {
	MinLength int
	MaxLength int
	MaxLines  int
}

type Weights struct {
	Vector  float64
	Keyword float64
	File    float64
}

type Options struct {
	Quality QualityOptions
	Weights Weights

	RecallLimit int
	EnrichTopK  int
	GraphFactor float64

	DuplicateThreshold      float64
	TopicalOverlap          int
	ConsolidationThreshold  int
	ConsolidationSimilarity float64
	SweepBatch              int
	Vacuum                  bool

	MaintenanceInterval time.Duration
	InlineMaintenance   bool
	InlineInterval      time.Duration

	EmbedTimeout     time.Duration
	EmbedQueue       int
	BackfillInterval time.Duration
	BackfillBatch    int

	Now core.Clock
}

func DefaultOptions() Options {
	return Options{
		Quality: QualityOptions{MinLength: 15, MaxLength: 500, MaxLines: 3},
		Weights: Weights{Vector: 0.5, Keyword: 0.35, File: 0.15},

		RecallLimit: 10,
		EnrichTopK:  5,
		GraphFactor: 0.6,

		DuplicateThreshold:      0.7,
		TopicalOverlap:          2,
		ConsolidationThreshold:  50,
		ConsolidationSimilarity: 0.5,
		SweepBatch:              500,

		MaintenanceInterval: 6 * time.Hour,
		InlineInterval:      10 * time.Minute,

		EmbedTimeout:     30 * time.Second,
		EmbedQueue:       256,
		BackfillInterval: time.Minute,
		BackfillBatch:    32,

		Now: time.Now,
	}
}

// OptionsFromConfig maps the environment configuration onto Options.
func OptionsFromConfig(cfg *config.AppConfig) Options {
	o := DefaultOptions()

	o.Quality = QualityOptions{
		MinLength: cfg.Quality.MinLength,
		MaxLength: cfg.Quality.MaxLength,
		MaxLines:  cfg.Quality.MaxLines,
	}
	o.Weights = Weights{
		Vector:  cfg.Recall.VectorWeight,
		Keyword: cfg.Recall.KeywordWeight,
		File:    cfg.Recall.FileWeight,
	}
	o.RecallLimit = cfg.Recall.Limit
	o.EnrichTopK = cfg.Recall.EnrichTopK
	o.GraphFactor = cfg.Recall.GraphFactor

	o.DuplicateThreshold = cfg.Lifecycle.DuplicateThreshold
	o.TopicalOverlap = cfg.Lifecycle.TopicalOverlap
	o.ConsolidationThreshold = cfg.Lifecycle.ConsolidationThreshold
	o.ConsolidationSimilarity = cfg.Lifecycle.ConsolidationSimilarity
	o.SweepBatch = cfg.Lifecycle.SweepBatch
	o.Vacuum = cfg.Lifecycle.Vacuum
	o.MaintenanceInterval = cfg.Lifecycle.Interval
	o.InlineMaintenance = cfg.Lifecycle.Inline
	o.InlineInterval = cfg.Lifecycle.InlineInterval

	o.EmbedTimeout = cfg.Embedding.Timeout
	o.EmbedQueue = cfg.Embedding.QueueSize
	o.BackfillInterval = cfg.Embedding.BackfillInterval
	o.BackfillBatch = cfg.Embedding.BackfillBatch
	return o
}
