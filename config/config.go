package config

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName string `env:"SCHEMA_AUTH_APP_NAME" envDefault:"schema-auth"`
	AppEnv  string `env:"SCHEMA_AUTH_APP_ENV" envDefault:"local"`

	APIBaseURL  string        `env:"SCHEMA_AUTH_API_BASE_URL" envDefault:"http://localhost:8091"`
	HTTPTimeout time.Duration `env:"SCHEMA_AUTH_HTTP_TIMEOUT" envDefault:"10s"`

	RefreshThreshold time.Duration `env:"SCHEMA_AUTH_REFRESH_THRESHOLD" envDefault:"5m"`
	MinRefreshDelay  time.Duration `env:"SCHEMA_AUTH_MIN_REFRESH_DELAY" envDefault:"1s"`

	// SessionDir is where the session files live. Empty means a
	// schema-auth/sessions directory under the user config dir.
	SessionDir string `env:"SCHEMA_AUTH_SESSION_DIR"`

	StubHost string `env:"SCHEMA_AUTH_STUB_HOST" envDefault:"0.0.0.0"`
	StubPort string `env:"SCHEMA_AUTH_STUB_PORT" envDefault:"8091"`

	JWTSecret   string        `env:"SCHEMA_AUTH_JWT_SECRET" envDefault:"local-dev-secret"`
	JWTIssuer   string        `env:"SCHEMA_AUTH_JWT_ISSUER" envDefault:"schema-auth-stub"`
	JWTAudience string        `env:"SCHEMA_AUTH_JWT_AUDIENCE" envDefault:"schema-platform"`
	AccessTTL   time.Duration `env:"SCHEMA_AUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL  time.Duration `env:"SCHEMA_AUTH_REFRESH_TTL" envDefault:"720h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.SessionDir == "" {
		cfg.SessionDir = defaultSessionDir()
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func defaultSessionDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "schema-auth", "sessions")
}
