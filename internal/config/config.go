// Package config defines the environment contract of the webhook service and
// loads and validates it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken        = "TELEGRAM_TOKEN"
	KeyMongoURI             = "MONGO_URI"
	KeyMongoDB              = "MONGO_DB"
	KeyAppEnv               = "APP_ENV"
	KeyLogLevel             = "LOG_LEVEL"
	KeyHTTPPort             = "HTTP_PORT"
	KeyWebhookURL           = "WEBHOOK_URL"
	KeyWebhookSecret        = "WEBHOOK_SECRET"
	KeyPaymentProviderToken = "PAYMENT_PROVIDER_TOKEN"
	KeySupportContact       = "SUPPORT_CONTACT"
	KeyPreCheckoutTimeout   = "PRECHECKOUT_TIMEOUT"
	KeyKafkaBrokers         = "KAFKA_BROKERS"
	KeyKafkaTopicPrefix     = "KAFKA_TOPIC_PREFIX"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Defaults for optional settings.
	DefaultAppEnv             = EnvProduction
	DefaultLogLevel           = "info"
	DefaultHTTPPort           = 8080
	DefaultSupportContact     = "@Carlos_esp"
	DefaultPreCheckoutTimeout = 5 * time.Second
	DefaultKafkaTopicPrefix   = "opomelilla"

	// Recommended database names by environment.
	DefaultMongoDBProd = "opomelilla"
	DefaultMongoDBDev  = "opomelilla_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the service must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the service.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Required:    true,
		Description: "MongoDB connection string.",
		Notes:       "Must use the mongodb:// or mongodb+srv:// scheme.",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Required:    true,
		Description: "MongoDB database name.",
		Notes:       "Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "Port serving /webhook and /healthz.",
	},
	{
		Key:         KeyWebhookURL,
		Example:     "https://bot.example.com/webhook",
		Description: "Public webhook URL registered with Telegram at startup.",
		Notes:       "Leave empty when the webhook is registered out of band.",
	},
	{
		Key:         KeyWebhookSecret,
		Example:     "s3cr3t",
		Description: "Expected X-Telegram-Bot-Api-Secret-Token header value.",
	},
	{
		Key:         KeyPaymentProviderToken,
		Example:     "284685063:TEST:abc",
		Description: "Payment provider token used for subscription invoices.",
	},
	{
		Key:         KeySupportContact,
		Example:     DefaultSupportContact,
		Default:     DefaultSupportContact,
		Description: "Support handle shown when a payment cannot be processed.",
	},
	{
		Key:         KeyPreCheckoutTimeout,
		Example:     DefaultPreCheckoutTimeout.String(),
		Default:     DefaultPreCheckoutTimeout.String(),
		Description: "Deadline for validating and answering a pre-checkout query.",
	},
	{
		Key:         KeyKafkaBrokers,
		Example:     "localhost:9092,localhost:9093",
		Description: "Kafka brokers for domain events; empty disables publishing.",
	},
	{
		Key:         KeyKafkaTopicPrefix,
		Example:     DefaultKafkaTopicPrefix,
		Default:     DefaultKafkaTopicPrefix,
		Description: "Prefix for published Kafka topics.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken        string
	MongoURI             string
	MongoDB              string
	AppEnv               string
	LogLevel             string
	HTTPPort             int
	WebhookURL           string
	WebhookSecret        string
	PaymentProviderToken string
	SupportContact       string
	PreCheckoutTimeout   time.Duration
	KafkaBrokers         []string
	KafkaTopicPrefix     string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:               firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:        strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		MongoURI:             strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:              strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:             firstNonEmpty(os.Getenv(KeyLogLevel), DefaultLogLevel),
		HTTPPort:             DefaultHTTPPort,
		WebhookURL:           strings.TrimSpace(os.Getenv(KeyWebhookURL)),
		WebhookSecret:        strings.TrimSpace(os.Getenv(KeyWebhookSecret)),
		PaymentProviderToken: strings.TrimSpace(os.Getenv(KeyPaymentProviderToken)),
		SupportContact:       firstNonEmpty(os.Getenv(KeySupportContact), DefaultSupportContact),
		PreCheckoutTimeout:   DefaultPreCheckoutTimeout,
		KafkaBrokers:         splitList(os.Getenv(KeyKafkaBrokers)),
		KafkaTopicPrefix:     firstNonEmpty(os.Getenv(KeyKafkaTopicPrefix), DefaultKafkaTopicPrefix),
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}
	if cfg.MongoURI == "" {
		missing = append(missing, KeyMongoURI)
	}
	if cfg.MongoDB == "" {
		missing = append(missing, KeyMongoDB)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if err := validateMongoURI(cfg.MongoURI); err != nil {
		return Config{}, err
	}

	if httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort)); httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	if timeoutRaw := strings.TrimSpace(os.Getenv(KeyPreCheckoutTimeout)); timeoutRaw != "" {
		timeout, parseErr := time.ParseDuration(timeoutRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyPreCheckoutTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyPreCheckoutTimeout)
		}
		cfg.PreCheckoutTimeout = timeout
	}

	if cfg.WebhookURL != "" {
		parsed, parseErr := url.Parse(cfg.WebhookURL)
		if parseErr != nil || parsed.Scheme != "https" || parsed.Host == "" {
			return Config{}, fmt.Errorf("invalid %s: must be an absolute https URL", KeyWebhookURL)
		}
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// KafkaEnabled reports whether domain events should be published.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// FormatRedacted renders the configuration for operators with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
		"telegram_token: " + maskSecret(cfg.TelegramToken),
		"mongo_uri: " + redactURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"webhook_url: " + valueOrUnset(cfg.WebhookURL),
		"webhook_secret: " + maskSecret(cfg.WebhookSecret),
		"payment_provider_token: " + maskSecret(cfg.PaymentProviderToken),
		"support_contact: " + cfg.SupportContact,
		"precheckout_timeout: " + cfg.PreCheckoutTimeout.String(),
		"kafka_brokers: " + valueOrUnset(strings.Join(cfg.KafkaBrokers, ",")),
		"kafka_topic_prefix: " + cfg.KafkaTopicPrefix,
	}

	return strings.Join(lines, "\n")
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func validateMongoURI(raw string) error {
	if strings.HasPrefix(raw, "mongodb://") || strings.HasPrefix(raw, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: scheme must be mongodb:// or mongodb+srv://", KeyMongoURI)
}

func maskSecret(value string) string {
	if value == "" {
		return "(unset)"
	}
	if len(value) <= 4 {
		return "...redacted"
	}
	return value[:4] + "...redacted"
}

func redactURI(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	parsed.User = nil
	return parsed.String()
}

func valueOrUnset(value string) string {
	if value == "" {
		return "(unset)"
	}
	return value
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
