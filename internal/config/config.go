package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string
	MySQLDSN string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	RequestTimeout    time.Duration

	ModelsConfigPath string

	StartingRubies    int
	RubyPrice         decimal.Decimal
	MaxPurchaseRubies int
	PaymentCurrency   string

	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaBaseURL   string
	YooKassaReturnURL string

	MediaGroupWindow time.Duration

	FeedbackPath       string
	InteractionLogPath string

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// PaymentsEnabled reports whether the YooKassa purchase flow can be offered.
// Missing gateway credentials disable purchases without stopping the process.
func (c Config) PaymentsEnabled() bool {
	return c.YooKassaShopID != "" && c.YooKassaSecretKey != ""
}

// ArchiveEnabled reports whether generated images are mirrored to S3.
func (c Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		OpenRouterBaseURL:  getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		RequestTimeout:     time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 120)),
		ModelsConfigPath:   getEnv("MODELS_CONFIG_PATH", "models.json"),
		StartingRubies:     getInt("STARTING_RUBIES", 4),
		MaxPurchaseRubies:  getInt("MAX_PURCHASE_RUBIES", 10000),
		PaymentCurrency:    getEnv("PAYMENT_CURRENCY", "RUB"),
		YooKassaShopID:     os.Getenv("YOOKASSA_SHOP_ID"),
		YooKassaSecretKey:  os.Getenv("YOOKASSA_SECRET_KEY"),
		YooKassaBaseURL:    getEnv("YOOKASSA_BASE_URL", "https://api.yookassa.ru/v3"),
		YooKassaReturnURL:  getEnv("YOOKASSA_RETURN_URL", "https://t.me"),
		MediaGroupWindow:   getDuration("MEDIA_GROUP_WINDOW", 2*time.Second),
		FeedbackPath:       getEnv("FEEDBACK_PATH", "feedback.jsonl"),
		InteractionLogPath: getEnv("INTERACTION_LOG_PATH", "logs/user_interactions.log"),
		AdminListenAddr:    getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", "change-me"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3Region:           os.Getenv("S3_REGION"),
		S3AccessKey:        os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:        os.Getenv("S3_SECRET_KEY"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:    os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:     getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:           getEnv("S3_PREFIX", "generations"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	cfg.RubyPrice = getDecimal("RUBY_PRICE", decimal.NewFromInt(1))

	if cfg.StartingRubies < 0 {
		return Config{}, fmt.Errorf("STARTING_RUBIES must not be negative")
	}
	if !cfg.RubyPrice.IsPositive() {
		return Config{}, fmt.Errorf("RUBY_PRICE must be positive")
	}

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.OpenRouterAPIKey == "" {
		missing = append(missing, "OPENROUTER_API_KEY")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if cfg.ArchiveEnabled() {
		var s3Missing []string
		if cfg.S3Region == "" {
			s3Missing = append(s3Missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			s3Missing = append(s3Missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			s3Missing = append(s3Missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			s3Missing = append(s3Missing, "S3_PUBLIC_BASE_URL")
		}
		if len(s3Missing) > 0 {
			return Config{}, fmt.Errorf("S3_BUCKET is set but %v missing", s3Missing)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback
	}
	return d
}

// loadEnvFile loads the first env file found. A missing file is fine; the
// environment may already be populated by the supervisor.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates, "configs/.env", ".env")

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
