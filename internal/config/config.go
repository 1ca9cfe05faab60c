package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cloudpay/internal/payment"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	CloudPayments CloudPaymentsConfig
	Reconcile     ReconcileConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"

	// TrustedProxies holds IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
}

type RedisConfig struct {
	Addr     string
	Pass     string
	DB       int
	DedupTTL time.Duration
}

type CloudPaymentsConfig struct {
	URL        string
	PublicKey  string
	PrivateKey string
	Locale     string
	Timeout    time.Duration

	// WebhookAllowlist holds IPs or CIDRs notifications may come from.
	// Empty allows any source.
	WebhookAllowlist []string
}

type ReconcileConfig struct {
	Spec      string // six-field cron spec, seconds first
	MinAge    time.Duration
	BatchSize int
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("APP_PORT"),
			Env:  v.GetString("APP_ENV"),

			TrustedProxies: splitList(v.GetString("SERVER_TRUSTED_PROXIES")),
		},
		Database: loadDatabase(v),
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Pass:     v.GetString("REDIS_PASS"),
			DB:       v.GetInt("REDIS_DB"),
			DedupTTL: parseDuration(v.GetString("REDIS_DEDUP_TTL"), 24*time.Hour),
		},
		CloudPayments: CloudPaymentsConfig{
			URL:        v.GetString("CLOUDPAYMENTS_URL"),
			PublicKey:  v.GetString("CLOUDPAYMENTS_PUBLIC_KEY"),
			PrivateKey: v.GetString("CLOUDPAYMENTS_PRIVATE_KEY"),
			Locale:     v.GetString("CLOUDPAYMENTS_LOCALE"),
			Timeout:    parseDuration(v.GetString("CLOUDPAYMENTS_TIMEOUT"), payment.DefaultTimeout),

			WebhookAllowlist: splitList(v.GetString("CLOUDPAYMENTS_WEBHOOK_ALLOWLIST")),
		},
		Reconcile: ReconcileConfig{
			Spec:      v.GetString("RECONCILE_SPEC"),
			MinAge:    parseDuration(v.GetString("RECONCILE_MIN_AGE"), 15*time.Minute),
			BatchSize: v.GetInt("RECONCILE_BATCH_SIZE"),
		},
	}

	if cfg.CloudPayments.PublicKey == "" {
		log.Println("WARNING: CLOUDPAYMENTS_PUBLIC_KEY is not set")
	}
	if cfg.CloudPayments.PrivateKey == "" {
		log.Println("WARNING: CLOUDPAYMENTS_PRIVATE_KEY is not set; every webhook will be rejected")
	}
	if cfg.Database.Name == "" {
		log.Println("WARNING: DB_NAME is not set")
	}

	return cfg, nil
}

// LoadDatabaseOnly reads just the database settings, for schema bootstrap.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	db := loadDatabase(v)
	return &db, nil
}

// Payment returns the client configuration for the payment API.
func (c CloudPaymentsConfig) Payment() payment.Config {
	return payment.Config{
		BaseURL:    c.URL,
		PublicKey:  c.PublicKey,
		PrivateKey: c.PrivateKey,
		Locale:     c.Locale,
		Timeout:    c.Timeout,
	}
}

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=UTC"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_CHARSET", "utf8mb4")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_DEDUP_TTL", "24h")
	v.SetDefault("CLOUDPAYMENTS_URL", payment.DefaultBaseURL)
	v.SetDefault("CLOUDPAYMENTS_LOCALE", payment.DefaultLocale)
	v.SetDefault("CLOUDPAYMENTS_TIMEOUT", "20s")
	v.SetDefault("RECONCILE_SPEC", "0 */5 * * * *")
	v.SetDefault("RECONCILE_MIN_AGE", "15m")
	v.SetDefault("RECONCILE_BATCH_SIZE", 50)
}

func loadDatabase(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Host:    v.GetString("DB_HOST"),
		Port:    v.GetString("DB_PORT"),
		Name:    v.GetString("DB_NAME"),
		User:    v.GetString("DB_USER"),
		Pass:    v.GetString("DB_PASS"),
		Charset: v.GetString("DB_CHARSET"),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
