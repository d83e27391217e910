package config

import "time"

type LifecycleConfig struct {
	Interval       time.Duration `env:"INTERVAL" envDefault:"6h"`
	Inline         bool          `env:"INLINE" envDefault:"false"`
	InlineInterval time.Duration `env:"INLINE_INTERVAL" envDefault:"10m"`

	DuplicateThreshold      float64 `env:"DUPLICATE_THRESHOLD" envDefault:"0.7"`
	ConsolidationThreshold  int     `env:"CONSOLIDATION_THRESHOLD" envDefault:"50"`
	ConsolidationSimilarity float64 `env:"CONSOLIDATION_SIMILARITY" envDefault:"0.5"`
	TopicalOverlap          int     `env:"TOPICAL_OVERLAP" envDefault:"2"`
	SweepBatch              int     `env:"SWEEP_BATCH" envDefault:"500"`
	Vacuum                  bool    `env:"VACUUM" envDefault:"false"`
}
