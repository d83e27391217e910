package embed

import (
	"fmt"
	"strings"

	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/internal/core"
)

const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// NewEmbedder builds the configured embedder wrapped in a query cache.
// Provider "none" returns nil, which disables vector search.
func NewEmbedder(cfg config.EmbeddingConfig) (*CachedEmbedder, error) {
	var base core.Embedder
	switch strings.ToLower(cfg.Provider) {
	case ProviderNone, "":
		return nil, nil
	case ProviderHash:
		base = NewHashEmbedder(cfg.Dims)
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dims)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai embedder: %w", err)
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	return NewCachedEmbedder(base, cfg.CacheSize)
}
