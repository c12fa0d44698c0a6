package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Empty values of variables with a default fall back to the default, so
// optional features are switched off with their *_ENABLED flag.
type Config struct {
	Token          string        `env:"TOKEN,required,notEmpty"`
	AllowedUsers   []int64       `env:"ALLOWED_USERS"`
	DBPath         string        `env:"DB_PATH"                 envDefault:"db.sqlite"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	PageSize       int           `env:"FEED_PAGE_SIZE"          envDefault:"20"`
	FetchTimeout   time.Duration `env:"FEED_FETCH_TIMEOUT"      envDefault:"10s"`
	ImportEnabled  bool          `env:"IMPORT_ENABLED"          envDefault:"true"`
	ImportSpec     string        `env:"IMPORT_SPEC"             envDefault:"*/30 * * * *"`
	MetricsEnabled bool          `env:"METRICS_ENABLED"         envDefault:"true"`
	MetricsAddr    string        `env:"METRICS_ADDR"            envDefault:":9090"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := env.Parse(&cfg)

	return cfg, err
}
