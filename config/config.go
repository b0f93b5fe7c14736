package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	PublicURL      string        `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	DebugOutput    string        `env:"DEBUG_OUTPUT" envDefault:"false"`
	ApiDryRun      string        `env:"API_DRY_RUN" envDefault:"false"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"8"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	SessionSecret string        `env:"SESSION_SECRET"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"true"`

	OTPPepper string `env:"OTP_PEPPER"`

	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL"`
	EmbeddingModel    string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	SkillMaxDistance  float64       `env:"SKILL_MAX_DISTANCE" envDefault:"0.65"`
	SkillIndexPath    string        `env:"SKILL_INDEX_PATH"`
	EmbeddingCacheTTL time.Duration `env:"EMBEDDING_CACHE_TTL" envDefault:"24h"`

	AWSRegion      string `env:"AWS_REGION" envDefault:"me-south-1"`
	DynamoEndpoint string `env:"DYNAMODB_ENDPOINT"`
	TablePrefix    string `env:"DYNAMODB_TABLE_PREFIX" envDefault:"talent"`
	UploadsBucket  string `env:"UPLOADS_BUCKET"`
	SnapshotBucket string `env:"SNAPSHOT_BUCKET"`
	SnapshotS3Key  string `env:"SNAPSHOT_S3_KEY" envDefault:"snapshots/candidates"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	EmailFrom      string `env:"EMAIL_FROM"`

	RedisAddr string `env:"REDIS_ADDR"`

	TaqnyatToken   string `env:"TAQNYAT_TOKEN"`
	TaqnyatSender  string `env:"TAQNYAT_SENDER" envDefault:"TalentSource"`
	TaqnyatBaseURL string `env:"TAQNYAT_BASE_URL" envDefault:"https://api.taqnyat.sa"`

	MyFatoorahToken         string `env:"MYFATOORAH_TOKEN"`
	MyFatoorahBaseURL       string `env:"MYFATOORAH_BASE_URL" envDefault:"https://apitest.myfatoorah.com"`
	MyFatoorahWebhookSecret string `env:"MYFATOORAH_WEBHOOK_SECRET"`
	PaymentReturnURL        string `env:"PAYMENT_RETURN_URL"`

	FrontendRevalidateURL    string `env:"FRONTEND_REVALIDATE_URL"`
	FrontendRevalidateSecret string `env:"FRONTEND_REVALIDATE_SECRET"`
	RevalidateQueueSize      int    `env:"REVALIDATE_QUEUE_SIZE" envDefault:"256"`

	PricingFile string `env:"PRICING_FILE"`

	SnapshotStartDate string `env:"SNAPSHOT_START_DATE"`
	SnapshotEndDate   string `env:"SNAPSHOT_END_DATE"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.DebugOutput = normalizeBoolString(cfg.DebugOutput, false)
	cfg.ApiDryRun = normalizeBoolString(cfg.ApiDryRun, false)
	cfg.SkillIndexPath = getEnvOrDefault("SKILL_INDEX_PATH", defaultSkillIndexPath())

	if cfg.OpenAIAPIKey == "" && !cfg.DryRun() {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if cfg.OTPPepper == "" {
		return nil, fmt.Errorf("OTP_PEPPER environment variable is not set")
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}

	return cfg, nil
}

func (c *Config) DryRun() bool {
	return c.ApiDryRun == "true"
}

func (c *Config) Debug() bool {
	return c.DebugOutput == "true"
}

func getEnvOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func normalizeBoolString(value string, fallback bool) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "y", "on":
		return "true"
	case "0", "false", "no", "n", "off":
		return "false"
	}
	if fallback {
		return "true"
	}
	return "false"
}

func runningInLambda() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != "" ||
		strings.TrimSpace(os.Getenv("LAMBDA_TASK_ROOT")) != ""
}

func defaultSkillIndexPath() string {
	if runningInLambda() {
		return filepath.Join(os.TempDir(), "skills.db")
	}
	return "skills.db"
}
