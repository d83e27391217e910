package config

type MetricsConfig struct {
	// Addr enables the Prometheus endpoint when set, e.g. "127.0.0.1:9464".
	Addr string `env:"ADDR"`
}
