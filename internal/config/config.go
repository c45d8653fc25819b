package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port         int           `envconfig:"PORT" default:"3000"`
	MasterSecret string        `envconfig:"MASTER_SECRET"`
	GinMode      string        `envconfig:"GIN_MODE" default:"release"`
	DataDir      string        `envconfig:"DATA_DIR" default:"./data"`
	TokenExpiry  time.Duration `envconfig:"TOKEN_EXPIRY" default:"168h"`
	CORSOrigins  []string      `envconfig:"CORS_ORIGINS" default:"*"`
	TLSCertFile  string        `envconfig:"TLS_CERT_FILE"`
	TLSKeyFile   string        `envconfig:"TLS_KEY_FILE"`
}

// Load reads configuration from the environment, honouring a local .env file
// when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.MasterSecret == "" {
		return Config{}, fmt.Errorf("MASTER_SECRET is required")
	}
	if cfg.TokenExpiry <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY")
	}
	return cfg, nil
}
