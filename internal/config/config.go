package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"docstyler/internal/classify"
	"docstyler/internal/integrations/llm"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	LLMBatchSize          int     `yaml:"llm_batch_size"`
	LLMMaxRetries         int     `yaml:"llm_max_retries"`
	LLMShrinkFloor        int     `yaml:"llm_shrink_floor"`
	LLMRetryPauseMS       int     `yaml:"llm_retry_pause_ms"`
	LLMBatchPauseMS       int     `yaml:"llm_batch_pause_ms"`
	LLMTimeoutSeconds     int     `yaml:"llm_timeout_seconds"`
	LLMTemperature        float64 `yaml:"llm_temperature"`
	LLMMaxOutputTokens    int     `yaml:"llm_max_output_tokens"`
	RescueThreshold       int     `yaml:"rescue_threshold"`
	RescueBatchSize       int     `yaml:"rescue_batch_size"`
	RescueTemperature     float64 `yaml:"rescue_temperature"`
	RescueMaxOutputTokens int     `yaml:"rescue_max_output_tokens"`

	StylesPath     string `yaml:"styles_path"`
	DBPath         string `yaml:"db_path"`
	OutputDir      string `yaml:"output_dir"`
	TempDir        string `yaml:"temp_dir"`
	MaxFileSizeMB  int    `yaml:"max_file_size_mb"`
	RemovalEnabled bool   `yaml:"removal_enabled"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	WatchDir      string `yaml:"watch_dir"`
	WatchSchedule string `yaml:"watch_schedule"`
}

func LoadConfig() Config {
	// 0 is a valid value for these keys, so their defaults are seeded before
	// the file and env are applied.
	cfg := Config{
		LLMMaxRetries:   2,
		LLMRetryPauseMS: 1000,
		LLMBatchPauseMS: 500,
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverrideInt(&cfg.LLMBatchSize, "LLM_BATCH_SIZE")
	envOverrideInt(&cfg.LLMMaxRetries, "LLM_MAX_RETRIES")
	envOverrideInt(&cfg.LLMShrinkFloor, "LLM_SHRINK_FLOOR")
	envOverrideInt(&cfg.LLMRetryPauseMS, "LLM_RETRY_PAUSE_MS")
	envOverrideInt(&cfg.LLMBatchPauseMS, "LLM_BATCH_PAUSE_MS")
	envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	envOverrideFloat(&cfg.LLMTemperature, "LLM_TEMPERATURE")
	envOverrideInt(&cfg.LLMMaxOutputTokens, "LLM_MAX_OUTPUT_TOKENS")
	envOverrideInt(&cfg.RescueThreshold, "RESCUE_THRESHOLD")
	envOverrideInt(&cfg.RescueBatchSize, "RESCUE_BATCH_SIZE")
	envOverrideFloat(&cfg.RescueTemperature, "RESCUE_TEMPERATURE")
	envOverrideInt(&cfg.RescueMaxOutputTokens, "RESCUE_MAX_OUTPUT_TOKENS")
	envOverride(&cfg.StylesPath, "STYLES_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.OutputDir, "OUTPUT_DIR")
	envOverride(&cfg.TempDir, "TEMP_DIR")
	envOverrideInt(&cfg.MaxFileSizeMB, "MAX_FILE_SIZE_MB")
	envOverrideBool(&cfg.RemovalEnabled, "REMOVAL_ENABLED")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverrideAllowEmpty(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.WatchDir, "WATCH_DIR")
	envOverride(&cfg.WatchSchedule, "WATCH_SCHEDULE")

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.LLMBatchSize == 0 {
		cfg.LLMBatchSize = 150
	}
	if cfg.LLMShrinkFloor == 0 {
		cfg.LLMShrinkFloor = 10
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 45
	}
	if cfg.LLMTemperature == 0 {
		cfg.LLMTemperature = 0.3
	}
	if cfg.LLMMaxOutputTokens == 0 {
		cfg.LLMMaxOutputTokens = 8000
	}
	if cfg.RescueThreshold == 0 {
		cfg.RescueThreshold = 10
	}
	if cfg.RescueBatchSize == 0 {
		cfg.RescueBatchSize = 20
	}
	if cfg.RescueTemperature == 0 {
		cfg.RescueTemperature = 0.1
	}
	if cfg.RescueMaxOutputTokens == 0 {
		cfg.RescueMaxOutputTokens = 3000
	}
	if cfg.StylesPath == "" {
		cfg.StylesPath = "./styles.yaml"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./docstyler.db"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./output"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "./temp"
	}
	if cfg.MaxFileSizeMB == 0 {
		cfg.MaxFileSizeMB = 50
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.LLMBatchSize < 1 {
		log.Fatalf("invalid llm_batch_size '%d': must be >= 1", cfg.LLMBatchSize)
	}
	if cfg.LLMMaxRetries < 0 {
		log.Fatalf("invalid llm_max_retries '%d': must be >= 0", cfg.LLMMaxRetries)
	}
	if cfg.LLMShrinkFloor < 1 {
		log.Fatalf("invalid llm_shrink_floor '%d': must be >= 1", cfg.LLMShrinkFloor)
	}
	if cfg.LLMRetryPauseMS < 0 || cfg.LLMBatchPauseMS < 0 {
		log.Fatalf("invalid pause: llm_retry_pause_ms and llm_batch_pause_ms must be >= 0")
	}
	if cfg.LLMTimeoutSeconds < 5 {
		log.Fatalf("invalid llm_timeout_seconds '%d': must be >= 5", cfg.LLMTimeoutSeconds)
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 || cfg.RescueTemperature < 0 || cfg.RescueTemperature > 2 {
		log.Fatalf("invalid temperature: llm_temperature and rescue_temperature must be between 0 and 2")
	}
	if cfg.LLMMaxOutputTokens < 256 || cfg.RescueMaxOutputTokens < 256 {
		log.Fatalf("invalid max output tokens: llm_max_output_tokens and rescue_max_output_tokens must be >= 256")
	}
	if cfg.RescueThreshold < 0 {
		log.Fatalf("invalid rescue_threshold '%d': must be >= 0", cfg.RescueThreshold)
	}
	if cfg.RescueBatchSize < 1 {
		log.Fatalf("invalid rescue_batch_size '%d': must be >= 1", cfg.RescueBatchSize)
	}
	if cfg.MaxFileSizeMB < 1 {
		log.Fatalf("invalid max_file_size_mb '%d': must be >= 1", cfg.MaxFileSizeMB)
	}
	if cfg.ExternalHTTPTimeoutSeconds < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSeconds)
	}
	if cfg.SlackChannelID != "" && cfg.SlackBotToken == "" {
		log.Fatalf("slack_channel_id is set but slack_bot_token is missing")
	}
	if cfg.WatchSchedule != "" {
		if cfg.WatchDir == "" {
			log.Fatalf("watch_schedule is set but watch_dir is missing")
		}
		if _, err := cron.ParseStandard(cfg.WatchSchedule); err != nil {
			log.Fatalf("invalid watch_schedule '%s': %v", cfg.WatchSchedule, err)
		}
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = strings.EqualFold(val, "true") || val == "1"
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackChannelID != ""
}

func (c Config) WatchConfigured() bool {
	return c.WatchDir != "" && c.WatchSchedule != ""
}

func (c Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

func (c Config) RetryPause() time.Duration {
	return time.Duration(c.LLMRetryPauseMS) * time.Millisecond
}

func (c Config) BatchPause() time.Duration {
	return time.Duration(c.LLMBatchPauseMS) * time.Millisecond
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:        c.LLMProvider,
		Model:           c.LLMModel,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		AnthropicAPIKey: c.AnthropicAPIKey,
	}
}

// noneIfZero turns an explicit 0 into the negative value classify.Settings
// reads as "none"; a zero there would mean "use the default".
func noneIfZero(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// ClassifySettings maps the llm_* and rescue_* keys onto a classify.Settings.
// The model is left empty; it is resolved by llm.NewTransport.
func (c Config) ClassifySettings() classify.Settings {
	return classify.Settings{
		BatchSize:             c.LLMBatchSize,
		MaxRetries:            noneIfZero(c.LLMMaxRetries),
		ShrinkFloor:           c.LLMShrinkFloor,
		RetryPause:            time.Duration(noneIfZero(c.LLMRetryPauseMS)) * time.Millisecond,
		BatchPause:            time.Duration(noneIfZero(c.LLMBatchPauseMS)) * time.Millisecond,
		Timeout:               c.LLMTimeout(),
		Temperature:           c.LLMTemperature,
		MaxOutputTokens:       c.LLMMaxOutputTokens,
		RescueThreshold:       c.RescueThreshold,
		RescueBatchSize:       c.RescueBatchSize,
		RescueTemperature:     c.RescueTemperature,
		RescueMaxOutputTokens: c.RescueMaxOutputTokens,
	}
}
