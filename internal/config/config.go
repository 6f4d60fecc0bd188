package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	IdentityUnix  = "unix"
	IdentityLocal = "local"
)

// Config mirrors dispsrv.conf. Durations are kept as plain numbers in the
// file and exposed through the accessor methods.
type Config struct {
	AppEnv             string   `toml:"app_env"`
	ServerPort         int      `toml:"server_port" validate:"min=1,max=65535"`
	DatabaseDriver     string   `toml:"database_driver" validate:"oneof=sqlite postgres"`
	DatabaseURL        string   `toml:"cokebank_database" validate:"required"`
	ItemsFile          string   `toml:"items_file"`
	HTTPAddr           string   `toml:"http_addr"`
	JWTSecret          string   `toml:"jwt_secret" validate:"required_with=HTTPAddr"`
	TokenTTLMinutes    int      `toml:"token_ttl_minutes" validate:"min=1"`
	AllowedOrigins     []string `toml:"allowed_origins"`
	RedisURL           string   `toml:"redis_url"`
	RedisChannel       string   `toml:"redis_channel"`
	IdentitySource     string   `toml:"identity_source" validate:"oneof=unix local"`
	UnixGroups         bool     `toml:"unix_groups"`
	LegacyAuthBypass   bool     `toml:"legacy_auth_bypass"`
	TestMode           bool     `toml:"test_mode"`
	DebugLevel         int      `toml:"debug_level" validate:"min=0"`
	IdleTimeoutSeconds int      `toml:"idle_timeout_seconds" validate:"min=0"`
}

func Default() Config {
	return Config{
		AppEnv:          "development",
		ServerPort:      11020,
		DatabaseDriver:  "sqlite",
		DatabaseURL:     "cokebank.db",
		ItemsFile:       "items.toml",
		JWTSecret:       "dev-secret-change-me",
		TokenTTLMinutes: 60,
		AllowedOrigins:  []string{"*"},
		RedisChannel:    "dispense.transfers",
		IdentitySource:  IdentityUnix,
	}
}

// Load reads defaults, then the TOML file at path (skipped when path is
// empty or the file is missing), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.ServerPort = getInt("DISPENSE_PORT", cfg.ServerPort)
	cfg.DatabaseDriver = getEnv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.ItemsFile = getEnv("ITEMS_FILE", cfg.ItemsFile)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTLMinutes = getInt("TOKEN_TTL_MINUTES", cfg.TokenTTLMinutes)
	cfg.AllowedOrigins = getList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.IdentitySource = getEnv("IDENTITY_SOURCE", cfg.IdentitySource)
	cfg.TestMode = getBool("DISPENSE_TEST_MODE", cfg.TestMode)
	cfg.DebugLevel = getInt("DISPENSE_DEBUG", cfg.DebugLevel)
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
