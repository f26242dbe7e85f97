package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	EnvLocal = "local"
	EnvProd  = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env           string        `yaml:"env" env:"APP_ENV" env-default:"local"`
	Port          string        `yaml:"port" env:"PORT" env-default:"8080"`
	StoreDriver   string        `yaml:"store_driver" env:"STORE_DRIVER" env-default:"sqlite"`
	DBPath        string        `yaml:"db_path" env:"DB_PATH" env-default:"./data/warnet.db"`
	PostgresDSN   string        `yaml:"postgres_dsn" env:"POSTGRES_DSN"`
	MigrationsDir string        `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"./migrations"`
	JWTSecret     string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-this-secret"`
	TokenTTL      time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"72h"`
	CORSOrigins   []string      `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173,http://127.0.0.1:5173"`
	ReceiptsDir   string        `yaml:"receipts_dir" env:"RECEIPTS_DIR" env-default:"./data/receipts"`

	Admin Admin `yaml:"admin"`
	Redis Redis `yaml:"redis"`
	AMQP  AMQP  `yaml:"amqp"`
	Timer Timer `yaml:"timer"`
	Login Login `yaml:"login"`
}

type Admin struct {
	Email    string `yaml:"email" env:"ADMIN_EMAIL"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD"`
}

type Redis struct {
	Addr       string        `yaml:"addr" env:"REDIS_ADDR"`
	Password   string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB         int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	HistoryTTL time.Duration `yaml:"history_ttl" env:"HISTORY_CACHE_TTL" env-default:"1m"`
}

type AMQP struct {
	URL string `yaml:"url" env:"AMQP_URL"`
}

type Timer struct {
	Tick         time.Duration `yaml:"tick" env:"TIMER_TICK" env-default:"1s"`
	SyncInterval time.Duration `yaml:"sync_interval" env:"TIMER_SYNC_INTERVAL" env-default:"15s"`
}

type Login struct {
	RatePerSecond float64 `yaml:"rate_per_second" env:"LOGIN_RATE_PER_SECOND" env-default:"1"`
	Burst         int     `yaml:"burst" env:"LOGIN_RATE_BURST" env-default:"5"`
}

// Load reads the YAML file named by CONFIG_PATH when set, otherwise the
// environment alone. Environment variables override file values.
func Load() (Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	cfg.CORSOrigins = trimList(cfg.CORSOrigins)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverSQLite:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for store driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.Timer.Tick <= 0 || c.Timer.SyncInterval <= 0 {
		return fmt.Errorf("timer intervals must be positive")
	}
	return nil
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
