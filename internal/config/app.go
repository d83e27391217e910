package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/mnemo/pkg/log"
)

type AppConfig struct {
	RuntimePath  string `env:"MNEMO_RUNTIME_PATH" envDefault:".mnemo"`
	DatabaseFile string `env:"MNEMO_DB_FILE" envDefault:"mnemo.db"`

	Embedding EmbeddingConfig `envPrefix:"MNEMO_EMBED_"`
	Recall    RecallConfig    `envPrefix:"MNEMO_RECALL_"`
	Lifecycle LifecycleConfig `envPrefix:"MNEMO_LIFECYCLE_"`
	Quality   QualityConfig   `envPrefix:"MNEMO_QUALITY_"`
	Metrics   MetricsConfig   `envPrefix:"MNEMO_METRICS_"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c, err := ParseAppConfig()
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	return c
}

// ParseAppConfig reads the configuration from the environment.
func ParseAppConfig() (*AppConfig, error) {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		return nil, err
	}
	c.RuntimePath = resolvePath(c.RuntimePath)
	return c, nil
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	if filepath.IsAbs(c.DatabaseFile) {
		return c.DatabaseFile
	}
	return filepath.Join(c.RuntimePath, c.DatabaseFile)
}

func (c AppConfig) GetEnvPath() string {
	return filepath.Join(c.RuntimePath, ".env")
}
