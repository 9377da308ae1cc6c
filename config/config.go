package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // embedded zone database for minimal images

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting. Values come from an optional YAML
// file and are then overridden by environment variables.
type Config struct {
	App struct {
		Name string `yaml:"name"`
		Env  string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		PublicURL      string   `yaml:"public_url"`
	} `yaml:"server"`

	Database struct {
		Driver     string `yaml:"driver"` // memory, sqlite or postgres
		URL        string `yaml:"url"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Storage struct {
		Type         string `yaml:"type"` // local or s3
		LocalPath    string `yaml:"local_path"`
		S3Bucket     string `yaml:"s3_bucket"`
		S3Region     string `yaml:"s3_region"`
		S3Endpoint   string `yaml:"s3_endpoint"`
		AWSAccessKey string `yaml:"-"`
		AWSSecretKey string `yaml:"-"`
	} `yaml:"storage"`

	AI struct {
		Provider       string        `yaml:"provider"` // gemini or openai
		GeminiAPIKey   string        `yaml:"-"`
		OpenAIAPIKey   string        `yaml:"-"`
		OpenAIBaseURL  string        `yaml:"openai_base_url"`
		TextModel      string        `yaml:"text_model"`
		SpeechModel    string        `yaml:"speech_model"`
		Voice          string        `yaml:"voice"`
		RequestTimeout time.Duration `yaml:"request_timeout"` // 0 disables
	} `yaml:"ai"`

	Entitlements struct {
		DefaultTimezone string `yaml:"default_timezone"`
		ExpirySweep     string `yaml:"expiry_sweep"` // cron spec
	} `yaml:"entitlements"`

	RateLimit struct {
		PerMinute float64 `yaml:"per_minute"`
		Burst     int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	Locale struct {
		Default string `yaml:"default"`
	} `yaml:"locale"`
}

// Default returns a configuration suitable for local development
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "tarot-backend"
	cfg.App.Env = "development"
	cfg.Server.Port = "8080"
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.Database.Driver = "memory"
	cfg.Database.SQLitePath = "data/tarot.db"
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = "./storage/audio"
	cfg.Storage.S3Region = "us-east-1"
	cfg.AI.Provider = "gemini"
	cfg.AI.TextModel = "gemini-2.5-flash"
	cfg.AI.SpeechModel = "gemini-2.5-flash-preview-tts"
	cfg.AI.Voice = "Charon"
	cfg.Entitlements.DefaultTimezone = "America/Sao_Paulo"
	cfg.Entitlements.ExpirySweep = "@every 1m"
	cfg.RateLimit.PerMinute = 20
	cfg.RateLimit.Burst = 5
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	cfg.Locale.Default = "pt-BR"
	return cfg
}

// Load reads .env, then the YAML file at path (optional, skipped when
// empty or missing), then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	// .env in the working directory, then project root (relative to cmd/server/)
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../../.env")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only deployment
		default:
			return nil, err
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return errors.New("DATABASE_URL is required for the postgres driver")
	}

	switch c.Storage.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3Bucket == "" {
		return errors.New("AWS_S3_BUCKET is required for S3 storage")
	}

	switch c.AI.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unknown AI provider: %s", c.AI.Provider)
	}
	if c.AI.RequestTimeout < 0 {
		return errors.New("ai.request_timeout must not be negative")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate limit values must not be negative")
	}

	return nil
}

// Location resolves the default time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Entitlements.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid default timezone %q: %w", c.Entitlements.DefaultTimezone, err)
	}
	return loc, nil
}

// overrideWithEnv applies environment variables over file values
func overrideWithEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.PublicURL, "PUBLIC_URL")
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}

	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.SQLitePath, "SQLITE_PATH")

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.LocalPath, "STORAGE_LOCAL_PATH")
	setString(&cfg.Storage.S3Bucket, "AWS_S3_BUCKET")
	setString(&cfg.Storage.S3Region, "AWS_REGION")
	setString(&cfg.Storage.S3Endpoint, "AWS_S3_ENDPOINT")
	setString(&cfg.Storage.AWSAccessKey, "AWS_ACCESS_KEY_ID")
	setString(&cfg.Storage.AWSSecretKey, "AWS_SECRET_ACCESS_KEY")

	setString(&cfg.AI.Provider, "AI_PROVIDER")
	setString(&cfg.AI.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AI.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.AI.TextModel, "AI_TEXT_MODEL")
	if v := os.Getenv("AI_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AI.RequestTimeout = d
		}
	}

	setString(&cfg.Entitlements.DefaultTimezone, "DEFAULT_TIMEZONE")
	setString(&cfg.Entitlements.ExpirySweep, "EXPIRY_SWEEP")

	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.PerMinute = f
		}
	}

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Dir, "LOG_DIR")
	setString(&cfg.Locale.Default, "DEFAULT_LOCALE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
