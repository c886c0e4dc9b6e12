package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full configuration surface of the ledger binaries.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Cash      CashConfig
	Scheduler SchedulerConfig
	Archive   ArchiveConfig
	AI        AIConfig
	Rates     RatesConfig
}

// ServerConfig holds HTTP server options.
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects the ledger store.
type StorageConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// AuthConfig holds the secret used to verify actor tokens.
type AuthConfig struct {
	JWTSecret string
}

// CashConfig names the cash register the ledger books against.
type CashConfig struct {
	RegisterName string
}

// SchedulerConfig holds cron specs. An empty spec disables the job.
type SchedulerConfig struct {
	AuditCron   string
	ArchiveCron string
	Timezone    string
}

// ArchiveConfig is the S3 target of the daily journal export.
type ArchiveConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// Enabled reports whether an archive bucket is configured.
func (a ArchiveConfig) Enabled() bool { return a.Bucket != "" }

// AIConfig holds the OpenAI settings of the contract drafter.
type AIConfig struct {
	OpenAIKey string
	Model     string
}

// RatesConfig points at the reference exchange-rate API.
type RatesConfig struct {
	BaseURL string
}

// Load reads environment variables (optionally from envFile) and builds a
// validated Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// A missing .env is fine when the environment is set directly.
		_ = godotenv.Load()
	}

	pathStyle, err := strconv.ParseBool(getenvWithDefault("ARCHIVE_S3_PATH_STYLE", "false"))
	if err != nil {
		return nil, fmt.Errorf("ARCHIVE_S3_PATH_STYLE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getenvWithDefault("APP_PORT", "8080"),
			AllowedOrigins: splitList(getenvWithDefault("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(getenvWithDefault("STORAGE_DRIVER", DriverPostgres)),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			SQLitePath:  getenvWithDefault("SQLITE_PATH", "data/ledger.db"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Cash: CashConfig{
			RegisterName: getenvWithDefault("CASH_REGISTER_NAME", "main"),
		},
		Scheduler: SchedulerConfig{
			AuditCron:   getenvWithDefault("AUDIT_CRON", "0 * * * *"),
			ArchiveCron: getenvWithDefault("ARCHIVE_CRON", "30 23 * * *"),
			Timezone:    getenvWithDefault("TIMEZONE", "Europe/Kyiv"),
		},
		Archive: ArchiveConfig{
			Bucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
			Region:    getenvWithDefault("ARCHIVE_S3_REGION", "eu-central-1"),
			Endpoint:  os.Getenv("ARCHIVE_S3_ENDPOINT"),
			PathStyle: pathStyle,
		},
		AI: AIConfig{
			OpenAIKey: os.Getenv("OPENAI_API_KEY"),
			Model:     getenvWithDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Rates: RatesConfig{
			BaseURL: getenvWithDefault("RATES_BASE_URL", "https://bank.gov.ua"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the fields the selected driver needs are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("SQLITE_PATH must be provided for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be provided for the postgres driver")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not one of memory, sqlite, postgres", c.Storage.Driver)
	}

	if c.Cash.RegisterName == "" {
		return errors.New("CASH_REGISTER_NAME must not be empty")
	}
	if c.Archive.Enabled() && c.Archive.Region == "" {
		return errors.New("ARCHIVE_S3_REGION must be provided when ARCHIVE_S3_BUCKET is set")
	}
	if c.Rates.BaseURL == "" {
		return errors.New("RATES_BASE_URL must not be empty")
	}
	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
