package config

type QualityConfig struct {
	MinLength int `env:"MIN_LENGTH" envDefault:"15"`
	MaxLength int `env:"MAX_LENGTH" envDefault:"500"`
	MaxLines  int `env:"MAX_LINES" envDefault:"3"`
}
