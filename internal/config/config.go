package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Subscription store backends.
const (
	StoreMemory    = "memory"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

type Config struct {
	Port    string
	GinMode string

	// Logging
	LogLevel  string
	LogFormat string

	// VAPID
	VapidPublicKey  string
	VapidPrivateKey string
	VapidSubject    string

	// Subscription store
	SubscriptionStore   string
	SubscriptionTTL     time.Duration
	FirestoreCollection string

	// Database
	DatabaseURL           string
	DBMaxOpenConns        int
	DBMaxIdleConns        int
	DBConnMaxIdleTimeMins int
	DBConnMaxLifetimeMins int

	// Firebase
	FirebaseProjectID string
	FirebaseCredJSON  string

	// Delivery
	PushTTL             time.Duration
	PushRequestTimeout  time.Duration
	SendWindow          time.Duration
	DispatchConcurrency int
	DispatchTimeout     time.Duration
	CronSchedule        string
	AppBaseURL          string

	// Operator secrets
	OperatorAPIKey string
	CronSecret     string

	// NATS
	NatsURL string

	// HTTP
	CORSAllowedOrigins    []string
	MetricsEnabled        bool
	ServerShutdownTimeout time.Duration

	// Notifications overrides the built-in notification catalog, keyed by kind.
	// Only read from the config file.
	Notifications map[string]webpush.Message `yaml:"notifications"`
}

// LoadConfig reads .env (if present), the environment and the optional config file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),

		VapidPublicKey:  strings.TrimSpace(os.Getenv("VAPID_PUBLIC_KEY")),
		VapidPrivateKey: strings.TrimSpace(os.Getenv("VAPID_PRIVATE_KEY")),
		VapidSubject:    strings.TrimSpace(os.Getenv("VAPID_SUBJECT")),

		SubscriptionStore:   strings.ToLower(getEnvOrDefault("SUBSCRIPTION_STORE", StoreMemory)),
		SubscriptionTTL:     time.Duration(getEnvAsInt("SUBSCRIPTION_TTL_HOURS", 8760)) * time.Hour,
		FirestoreCollection: getEnvOrDefault("FIRESTORE_COLLECTION", "push_subscriptions"),

		DatabaseURL:           getEnvOrDefault("DATABASE_URL", "postgres://localhost/devotional_push?sslmode=disable"),
		DBMaxOpenConns:        getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:        getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTimeMins: getEnvAsInt("DB_CONN_MAX_IDLE_TIME_MINUTES", 5),
		DBConnMaxLifetimeMins: getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30),

		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:  getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		PushTTL:             time.Duration(getEnvAsInt("PUSH_TTL_SECONDS", 86400)) * time.Second,
		PushRequestTimeout:  time.Duration(getEnvAsInt("PUSH_REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		SendWindow:          time.Duration(getEnvAsInt("PUSH_SEND_WINDOW_MINUTES", 20)) * time.Minute,
		DispatchConcurrency: getEnvAsInt("PUSH_DISPATCH_CONCURRENCY", 16),
		DispatchTimeout:     time.Duration(getEnvAsInt("PUSH_DISPATCH_TIMEOUT_SECONDS", 240)) * time.Second,
		CronSchedule:        getEnvOrDefault("PUSH_CRON_SCHEDULE", ""),
		AppBaseURL:          getEnvOrDefault("APP_BASE_URL", ""),

		OperatorAPIKey: getEnvOrDefault("OPERATOR_API_KEY", ""),
		CronSecret:     getEnvOrDefault("CRON_SECRET", ""),

		NatsURL: getEnvOrDefault("NATS_URL", ""),

		CORSAllowedOrigins:    getEnvAsList("CORS_ALLOWED_ORIGINS"),
		MetricsEnabled:        getEnvAsBool("METRICS_ENABLED", true),
		ServerShutdownTimeout: time.Duration(getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	configFilePath := getEnvOrDefault("CONFIG_FILE", "config.yaml")
	configFile, err := os.Open(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer configFile.Close()
		log.Printf("Loading config file: %v", configFilePath)
		if err := LoadConfigFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at first use.
func (c *Config) Validate() error {
	switch c.SubscriptionStore {
	case StoreMemory, StorePostgres, StoreFirestore:
	default:
		return fmt.Errorf("SUBSCRIPTION_STORE must be one of memory, postgres, firestore; got %q", c.SubscriptionStore)
	}
	if c.SubscriptionStore == StoreFirestore && c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required for the firestore subscription store")
	}
	if c.SendWindow <= 0 {
		return errors.New("PUSH_SEND_WINDOW_MINUTES must be positive")
	}
	return nil
}

// Vapid returns the configured key pair. Check Configured() before use.
func (c *Config) Vapid() webpush.VapidKeyPair {
	return webpush.VapidKeyPair{
		PublicKey:  c.VapidPublicKey,
		PrivateKey: c.VapidPrivateKey,
		Subject:    c.VapidSubject,
	}
}

// LoadConfigFile decodes YAML settings into config.
func LoadConfigFile(reader io.Reader, config *Config) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as bool, using default %t: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
