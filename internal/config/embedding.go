package config

import "time"

type EmbeddingConfig struct {
	// Provider is one of "hash", "openai" or "none".
	Provider string        `env:"PROVIDER" envDefault:"hash"`
	Model    string        `env:"MODEL" envDefault:"text-embedding-3-small"`
	BaseURL  string        `env:"BASE_URL"`
	APIKey   string        `env:"API_KEY" secret:"true"`
	Dims     int           `env:"DIMS" envDefault:"256"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s"`

	CacheSize        int           `env:"CACHE_SIZE" envDefault:"1024"`
	QueueSize        int           `env:"QUEUE_SIZE" envDefault:"256"`
	BackfillInterval time.Duration `env:"BACKFILL_INTERVAL" envDefault:"1m"`
	BackfillBatch    int           `env:"BACKFILL_BATCH" envDefault:"32"`
}
