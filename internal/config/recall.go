package config

type RecallConfig struct {
	Limit         int     `env:"LIMIT" envDefault:"10"`
	VectorWeight  float64 `env:"VECTOR_WEIGHT" envDefault:"0.5"`
	KeywordWeight float64 `env:"KEYWORD_WEIGHT" envDefault:"0.35"`
	FileWeight    float64 `env:"FILE_WEIGHT" envDefault:"0.15"`
	EnrichTopK    int     `env:"ENRICH_TOP_K" envDefault:"5"`
	GraphFactor   float64 `env:"GRAPH_FACTOR" envDefault:"0.6"`
}
