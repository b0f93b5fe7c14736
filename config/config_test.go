package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"talent-source/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGetEnvOrDefault(t *testing.T) {
	cases := []struct {
		name     string
		setEnv   bool
		envValue string
		fallback string
		want     string
	}{
		{"missing", false, "", "default", "default"},
		{"custom", true, "real", "default", "real"},
		{"spacesOnly", true, "    ", "default", "default"},
		{"whiteSpace", true, "\n\n\t", "default", "default"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			const key = "SKILL_INDEX_PATH"

			if tc.setEnv {
				t.Setenv(key, tc.envValue)
			} else {
				t.Setenv(key, "")
				if err := os.Unsetenv(key); err != nil {
					t.Fatalf("failed to unset %s: %v", key, err)
				}
			}

			if got := getEnvOrDefault(key, tc.fallback); got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestNormalizeBoolToString(t *testing.T) {
	cases := []struct {
		name       string
		truthValue string
		fallback   bool
		want       string
	}{
		{"1", "1", false, "true"},
		{"true", "true", false, "true"},
		{"yes", "YES", false, "true"},
		{"on", "on", false, "true"},
		{"0", "0", true, "false"},
		{"off", "off", true, "false"},
		{"whitespace", "\nfalse", true, "false"},
		{"nonTruthTrueFallback", "asdf", true, "true"},
		{"nonTruthFalseFallback", "asdf", false, "false"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeBoolString(tc.truthValue, tc.fallback); got != tc.want {
				t.Fatalf("want %q, got %q", tc.want, got)
			}
		})
	}
}

func TestRunningInLambda(t *testing.T) {
	cases := []struct {
		name string
		envs map[string]string
		want bool
	}{
		{"noneSet", map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "", "LAMBDA_TASK_ROOT": ""}, false},
		{"functionNameSet", map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "handler", "LAMBDA_TASK_ROOT": ""}, true},
		{"taskRootSet", map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "", "LAMBDA_TASK_ROOT": "/var/task"}, true},
		{"whitespace", map[string]string{"AWS_LAMBDA_FUNCTION_NAME": "   ", "LAMBDA_TASK_ROOT": ""}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for key, value := range tc.envs {
				t.Setenv(key, value)
			}
			if got := runningInLambda(); got != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestDefaultSkillIndexPath(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	t.Setenv("LAMBDA_TASK_ROOT", "")
	if got := defaultSkillIndexPath(); got != "skills.db" {
		t.Fatalf("want skills.db, got %q", got)
	}

	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "handler")
	if got, want := defaultSkillIndexPath(), filepath.Join(os.TempDir(), "skills.db"); got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	t.Setenv("LAMBDA_TASK_ROOT", "")
	t.Setenv("SESSION_SECRET", testSecret)
	t.Setenv("OTP_PEPPER", "pepper")
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("API_DRY_RUN", "false")
}

func TestLoadSuccess(t *testing.T) {
	setRequired(t)
	t.Setenv("DEBUG_OUTPUT", "yes")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("DYNAMODB_ENDPOINT", "http://localhost:9000")
	t.Setenv("DYNAMODB_TABLE_PREFIX", "test")
	t.Setenv("UPLOADS_BUCKET", "uploads")
	t.Setenv("SESSION_TTL", "2h")
	t.Setenv("SKILL_INDEX_PATH", "/tmp/idx.db")
	t.Setenv("MAX_CONCURRENCY", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.OpenAIAPIKey != "test-key" {
		t.Fatalf("expected OpenAIAPIKey to be test-key, got %q", cfg.OpenAIAPIKey)
	}
	if !cfg.Debug() {
		t.Fatalf("expected debug output to be enabled, got %q", cfg.DebugOutput)
	}
	if cfg.DryRun() {
		t.Fatal("expected dry run to be disabled")
	}
	if cfg.AWSRegion != "us-east-1" {
		t.Fatalf("expected AWSRegion override, got %q", cfg.AWSRegion)
	}
	if cfg.DynamoEndpoint != "http://localhost:9000" {
		t.Fatalf("expected DynamoEndpoint override, got %q", cfg.DynamoEndpoint)
	}
	if cfg.TablePrefix != "test" {
		t.Fatalf("expected TablePrefix override, got %q", cfg.TablePrefix)
	}
	if cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("expected SessionTTL 2h, got %v", cfg.SessionTTL)
	}
	if cfg.SkillIndexPath != "/tmp/idx.db" {
		t.Fatalf("expected SkillIndexPath override, got %q", cfg.SkillIndexPath)
	}
	if cfg.MaxConcurrency != 1 {
		t.Fatalf("expected MaxConcurrency clamped to 1, got %d", cfg.MaxConcurrency)
	}
	if cfg.SkillMaxDistance != 0.65 {
		t.Fatalf("expected default SkillMaxDistance, got %v", cfg.SkillMaxDistance)
	}
}

func TestLoadRequiresAPIKeyWhenNotDryRun(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when API key missing and dry run disabled")
	} else if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("expected error to mention API key, got %v", err)
	}
}

func TestLoadAllowsDryRunWithoutAPIKey(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("API_DRY_RUN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.DryRun() {
		t.Fatalf("expected dry run, got %q", cfg.ApiDryRun)
	}
}

func TestLoadRejectsShortSessionSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_SECRET", "short")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SESSION_SECRET") {
		t.Fatalf("expected SESSION_SECRET error, got %v", err)
	}
}

func TestLoadRequiresPepper(t *testing.T) {
	setRequired(t)
	t.Setenv("OTP_PEPPER", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "OTP_PEPPER") {
		t.Fatalf("expected OTP_PEPPER error, got %v", err)
	}
}

func TestParsePricingOverridesDefaults(t *testing.T) {
	data := []byte("classes:\n  s:\n    interview: 10\n    unlock: 6\n")
	pricing, err := ParsePricing(data)
	if err != nil {
		t.Fatalf("ParsePricing returned error: %v", err)
	}
	if got := pricing.InterviewCost(models.BillingClassS); got != 10 {
		t.Fatalf("want 10, got %d", got)
	}
	if got := pricing.InterviewCost(models.BillingClassA); got != 4 {
		t.Fatalf("want default 4 for A, got %d", got)
	}
}

func TestParsePricingRejectsUnknownClass(t *testing.T) {
	if _, err := ParsePricing([]byte("classes:\n  X:\n    interview: 1\n    unlock: 1\n")); err == nil {
		t.Fatal("expected unknown class error")
	}
}

func TestLoadPricingDefaultsWithoutFile(t *testing.T) {
	pricing, err := LoadPricing("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pricing.UnlockCost(models.BillingClassD) != 1 {
		t.Fatal("expected default pricing")
	}
}
