package config

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func setMinimalValidConfigEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoadConfigFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	setMinimalValidConfigEnv(t)

	cfg := LoadConfig()

	if cfg.LLMProvider != "openai" || cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("unexpected provider config: %+v", cfg)
	}
	if cfg.LLMBatchSize != 150 || cfg.LLMMaxRetries != 2 || cfg.LLMShrinkFloor != 10 {
		t.Fatalf("unexpected batch defaults: %+v", cfg)
	}
	if cfg.RetryPause() != time.Second || cfg.BatchPause() != 500*time.Millisecond || cfg.LLMTimeout() != 45*time.Second {
		t.Fatalf("unexpected timing defaults: retry=%s batch=%s timeout=%s", cfg.RetryPause(), cfg.BatchPause(), cfg.LLMTimeout())
	}
	if cfg.LLMTemperature != 0.3 || cfg.LLMMaxOutputTokens != 8000 {
		t.Fatalf("unexpected request defaults: %+v", cfg)
	}
	if cfg.RescueThreshold != 10 || cfg.RescueBatchSize != 20 || cfg.RescueTemperature != 0.1 || cfg.RescueMaxOutputTokens != 3000 {
		t.Fatalf("unexpected rescue defaults: %+v", cfg)
	}
	if cfg.DBPath != "./docstyler.db" || cfg.OutputDir != "./output" || cfg.StylesPath != "./styles.yaml" {
		t.Fatalf("unexpected path defaults: %+v", cfg)
	}
	if cfg.MaxFileSizeBytes() != 50<<20 {
		t.Fatalf("unexpected max file size: %d", cfg.MaxFileSizeBytes())
	}
	if cfg.ExternalHTTPTimeoutSeconds != int(defaultExternalHTTPTimeout/time.Second) {
		t.Fatalf("unexpected external HTTP timeout default: %d", cfg.ExternalHTTPTimeoutSeconds)
	}
	settings := cfg.ClassifySettings()
	if settings.BatchSize != 150 || settings.Timeout != 45*time.Second || settings.RescueMaxOutputTokens != 3000 {
		t.Fatalf("unexpected classify settings: %+v", settings)
	}
	if pc := cfg.ProviderConfig(); pc.Provider != "openai" || pc.OpenAIAPIKey != "sk-test" {
		t.Fatalf("unexpected provider config: %+v", pc)
	}
	if cfg.RemovalEnabled || cfg.SlackConfigured() || cfg.WatchConfigured() {
		t.Fatalf("optional features should be off by default: %+v", cfg)
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "anthropic"
anthropic_api_key: "yaml-key"
llm_batch_size: 80
rescue_batch_size: 15
removal_enabled: true
slack_bot_token: "xoxb-yaml"
slack_channel_id: "C123"
watch_dir: "./inbox"
watch_schedule: "*/5 * * * *"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("LLM_BATCH_SIZE", "60")
	t.Setenv("RESCUE_TEMPERATURE", "0.2")

	cfg := LoadConfig()

	if cfg.LLMProvider != "anthropic" || cfg.AnthropicAPIKey != "yaml-key" {
		t.Fatalf("unexpected provider: %+v", cfg)
	}
	if cfg.LLMBatchSize != 60 {
		t.Fatalf("env should override yaml batch size, got %d", cfg.LLMBatchSize)
	}
	if cfg.RescueBatchSize != 15 || cfg.RescueTemperature != 0.2 {
		t.Fatalf("unexpected rescue config: %+v", cfg)
	}
	if !cfg.RemovalEnabled || !cfg.SlackConfigured() || !cfg.WatchConfigured() {
		t.Fatalf("expected optional features on: %+v", cfg)
	}
}

func TestLoadConfigZeroRetriesAndPausesAreKept(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
llm_provider: "openai"
openai_api_key: "sk-yaml"
llm_max_retries: 0
llm_retry_pause_ms: 0
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("LLM_BATCH_PAUSE_MS", "0")

	cfg := LoadConfig()

	if cfg.LLMMaxRetries != 0 || cfg.LLMRetryPauseMS != 0 || cfg.LLMBatchPauseMS != 0 {
		t.Fatalf("explicit zeros should survive defaults: retries=%d retry_pause=%d batch_pause=%d",
			cfg.LLMMaxRetries, cfg.LLMRetryPauseMS, cfg.LLMBatchPauseMS)
	}
	settings := cfg.ClassifySettings()
	if settings.MaxRetries >= 0 || settings.RetryPause >= 0 || settings.BatchPause >= 0 {
		t.Fatalf("zeros should map to disabled settings, got %+v", settings)
	}
}

func TestEnvOverrideHelpers(t *testing.T) {
	s := "keep"
	t.Setenv("DS_TEST_EMPTY", "")
	envOverride(&s, "DS_TEST_EMPTY")
	if s != "keep" {
		t.Fatalf("envOverride should ignore empty values, got %q", s)
	}
	envOverrideAllowEmpty(&s, "DS_TEST_EMPTY")
	if s != "" {
		t.Fatalf("envOverrideAllowEmpty should apply empty values, got %q", s)
	}

	f := 0.0
	t.Setenv("DS_TEST_FLOAT", "0.75")
	envOverrideFloat(&f, "DS_TEST_FLOAT")
	if f != 0.75 {
		t.Fatalf("envOverrideFloat failed, got %v", f)
	}

	b := false
	t.Setenv("DS_TEST_BOOL", "TRUE")
	envOverrideBool(&b, "DS_TEST_BOOL")
	if !b {
		t.Fatalf("envOverrideBool failed, got %v", b)
	}
}

func runFatalSubprocess(t *testing.T, testName, marker string) {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run="+testName)
	cmd.Env = append(os.Environ(), marker+"=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with failure")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected ExitError, got: %v", err)
	}
}

func TestLoadConfigMissingAPIKeyFatal(t *testing.T) {
	if os.Getenv("TEST_MISSING_KEY_FATAL") == "1" {
		_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
		_ = os.Setenv("LLM_PROVIDER", "anthropic")
		_ = os.Unsetenv("ANTHROPIC_API_KEY")
		LoadConfig()
		return
	}
	runFatalSubprocess(t, "TestLoadConfigMissingAPIKeyFatal", "TEST_MISSING_KEY_FATAL")
}

func TestLoadConfigInvalidWatchScheduleFatal(t *testing.T) {
	if os.Getenv("TEST_INVALID_SCHEDULE_FATAL") == "1" {
		_ = os.Setenv("CONFIG_PATH", filepath.Join(os.TempDir(), "no-config.yaml"))
		_ = os.Setenv("LLM_PROVIDER", "openai")
		_ = os.Setenv("OPENAI_API_KEY", "sk-test")
		_ = os.Setenv("WATCH_DIR", os.TempDir())
		_ = os.Setenv("WATCH_SCHEDULE", "every tuesday")
		LoadConfig()
		return
	}
	runFatalSubprocess(t, "TestLoadConfigInvalidWatchScheduleFatal", "TEST_INVALID_SCHEDULE_FATAL")
}
