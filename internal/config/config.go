package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/heat-advisory-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	LocationTopic    string
	ResultTopic      string
	NotifyTopic      string
	KafkaGroupPrefix string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	// Recipient store.
	RecipientDBPath string
	RecipientTable  string

	// Resolver trigger.
	ResolverSchedule   string // cron expression, UTC
	ResolverRunOnStart bool
	ScanPageSize       int

	// Forecast provider.
	TomorrowAPIKey     string
	TomorrowTimeout    time.Duration
	ForecastBatchLimit int

	Threshold domain.ThresholdPolicy

	// Knowledge retrieval (feature-flagged via KNOWLEDGE_BASE_URL).
	KnowledgeEnabled bool
	KnowledgeBaseURL string
	KnowledgeBaseID  string
	KnowledgeTimeout time.Duration

	// Advisory generation.
	TextGenURL          string
	TextGenModelID      string
	TextGenSystemPrompt string
	TextGenTimeout      time.Duration

	// SMS gateway.
	ATAPIKey   string
	ATUsername string
	ATSenderID string
	SMSTimeout time.Duration

	// WritebackEnabled stamps last_alert_date after a successful send. Off
	// by default: the deployed pipeline never wrote the stamp back, and the
	// hook exists as an explicit extension point for closing that gap.
	WritebackEnabled bool
}

const defaultSystemPrompt = "You are a weather advisory assistant providing personalized recommendations based on weather forecasts."

// Load reads configuration from the environment (and an optional .env
// file), applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env is optional; real env vars win

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	tomorrowTimeout, err := parseDuration("TOMORROW_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	knowledgeTimeout, err := parseDuration("KNOWLEDGE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	textgenTimeout, err := parseDuration("TEXTGEN_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	smsTimeout, err := parseDuration("SMS_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	batchLimit, err := parsePositiveInt("FORECAST_BATCH_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	scanPageSize, err := parsePositiveInt("SCAN_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	threshold, err := loadThreshold()
	if err != nil {
		return nil, err
	}

	knowledgeBaseURL := os.Getenv("KNOWLEDGE_BASE_URL")

	cfg := &Config{
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		LocationTopic:    sharedcfg.EnvOrDefault("LOCATION_TOPIC", "alert-locations"),
		ResultTopic:      sharedcfg.EnvOrDefault("RESULT_TOPIC", "alert-weather-results"),
		NotifyTopic:      sharedcfg.EnvOrDefault("NOTIFY_TOPIC", "alert-notify"),
		KafkaGroupPrefix: sharedcfg.EnvOrDefault("KAFKA_GROUP_PREFIX", "heat-advisory"),
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,

		RecipientDBPath: sharedcfg.EnvOrDefault("RECIPIENT_DB_PATH", "data/recipients.db"),
		RecipientTable:  sharedcfg.EnvOrDefault("RECIPIENT_TABLE", "recipients"),

		ResolverSchedule:   sharedcfg.EnvOrDefault("RESOLVER_SCHEDULE", "0 6 * * *"),
		ResolverRunOnStart: os.Getenv("RESOLVER_RUN_ON_START") == "true",
		ScanPageSize:       scanPageSize,

		TomorrowAPIKey:     os.Getenv("TOMORROW_API_KEY"),
		TomorrowTimeout:    tomorrowTimeout,
		ForecastBatchLimit: batchLimit,

		Threshold: threshold,

		KnowledgeEnabled: knowledgeBaseURL != "",
		KnowledgeBaseURL: knowledgeBaseURL,
		KnowledgeBaseID:  os.Getenv("KNOWLEDGE_BASE_ID"),
		KnowledgeTimeout: knowledgeTimeout,

		TextGenURL:          os.Getenv("TEXTGEN_URL"),
		TextGenModelID:      sharedcfg.EnvOrDefault("TEXTGEN_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),
		TextGenSystemPrompt: sharedcfg.EnvOrDefault("TEXTGEN_SYSTEM_PROMPT", defaultSystemPrompt),
		TextGenTimeout:      textgenTimeout,

		ATAPIKey:   os.Getenv("AT_API_KEY"),
		ATUsername: os.Getenv("AT_USERNAME"),
		ATSenderID: sharedcfg.EnvOrDefault("AT_SENDER_ID", "WeatherAlert"),
		SMSTimeout: smsTimeout,

		WritebackEnabled: os.Getenv("RECIPIENT_WRITEBACK_ENABLED") == "true",
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.TomorrowAPIKey == "" {
		return nil, errors.New("TOMORROW_API_KEY is required")
	}
	if cfg.TextGenURL == "" {
		return nil, errors.New("TEXTGEN_URL is required")
	}
	if cfg.ATAPIKey == "" || cfg.ATUsername == "" {
		return nil, errors.New("AT_API_KEY and AT_USERNAME are required")
	}
	if cfg.KnowledgeEnabled && cfg.KnowledgeBaseID == "" {
		return nil, errors.New("KNOWLEDGE_BASE_URL is set but KNOWLEDGE_BASE_ID is not")
	}

	return cfg, nil
}

// GroupID derives a stage's Kafka consumer group from the shared prefix.
func (c *Config) GroupID(stage string) string {
	return c.KafkaGroupPrefix + "-" + stage
}

func loadThreshold() (domain.ThresholdPolicy, error) {
	op, err := domain.ParseOperator(os.Getenv("THRESHOLD_OPERATOR"))
	if err != nil {
		return domain.ThresholdPolicy{}, fmt.Errorf("invalid THRESHOLD_OPERATOR: %w", err)
	}

	value := 32.0
	if s := os.Getenv("TEMP_THRESHOLD_C"); s != "" {
		value, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.ThresholdPolicy{}, errors.New("invalid TEMP_THRESHOLD_C")
		}
	}

	// Bypass defaults to ON, matching the deployed system. An operational
	// hazard: production deployments must set THRESHOLD_BYPASS=false.
	bypass := true
	if s := os.Getenv("THRESHOLD_BYPASS"); s != "" {
		bypass = s == "true"
	}

	return domain.ThresholdPolicy{
		Field:    sharedcfg.EnvOrDefault("THRESHOLD_FIELD", "temperature"),
		Operator: op,
		Value:    value,
		Bypass:   bypass,
	}, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
