package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-apns-service/pkg/apns"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// APNSConfig describes the gateway connection and the credentials used on it.
// Either CertFile or AuthKeyFile must be set.
type APNSConfig struct {
	CertFile     string
	KeyFile      string
	CertPassword string

	// Token (p8) authentication.
	AuthKeyFile string
	KeyID       string
	TeamID      string

	Topic           string
	Development     bool
	ProductionHost  string
	DevelopmentHost string
	Port            int

	Priority       string
	InflightPolicy string
	TTL            time.Duration
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	PingInterval   time.Duration
}

// Validate checks the APNs section on its own so the CLI can reuse it.
func (c *APNSConfig) Validate() error {
	if c.CertFile == "" && c.AuthKeyFile == "" {
		return fmt.Errorf("apns credentials are required (set cert_file or auth_key_file)")
	}
	if c.AuthKeyFile != "" && (c.KeyID == "" || c.TeamID == "") {
		return fmt.Errorf("apns key_id and team_id are required with auth_key_file")
	}
	if c.AuthKeyFile != "" && c.Topic == "" {
		return fmt.Errorf("apns topic is required for token authentication")
	}
	if c.Priority != "" {
		if _, err := apns.ParsePriority(c.Priority); err != nil {
			return err
		}
	}
	if _, err := apns.ParseInflightPolicy(c.InflightPolicy); err != nil {
		return err
	}
	return nil
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	APNS       APNSConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	if err := ApplyAPNSEnvOverrides(&cfg.APNS, logger); err != nil {
		return nil, err
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if err := cfg.APNS.Validate(); err != nil {
		return nil, err
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

// ApplyAPNSEnvOverrides copies the APNS_* environment variables into cfg.
func ApplyAPNSEnvOverrides(cfg *APNSConfig, logger *slog.Logger) error {
	strs := map[string]*string{
		"APNS_CERT_FILE":        &cfg.CertFile,
		"APNS_KEY_FILE":         &cfg.KeyFile,
		"APNS_CERT_PASSWORD":    &cfg.CertPassword,
		"APNS_AUTH_KEY_FILE":    &cfg.AuthKeyFile,
		"APNS_KEY_ID":           &cfg.KeyID,
		"APNS_TEAM_ID":          &cfg.TeamID,
		"APNS_TOPIC":            &cfg.Topic,
		"APNS_PRODUCTION_HOST":  &cfg.ProductionHost,
		"APNS_DEVELOPMENT_HOST": &cfg.DevelopmentHost,
		"APNS_PRIORITY":         &cfg.Priority,
		"APNS_INFLIGHT_POLICY":  &cfg.InflightPolicy,
	}
	for key, dst := range strs {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*dst = val
		}
	}

	durations := map[string]*time.Duration{
		"APNS_TTL":             &cfg.TTL,
		"APNS_CONNECT_TIMEOUT": &cfg.ConnectTimeout,
		"APNS_SEND_TIMEOUT":    &cfg.SendTimeout,
		"APNS_PING_INTERVAL":   &cfg.PingInterval,
	}
	for key, dst := range durations {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, val, err)
			}
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*dst = d
		}
	}

	if val := os.Getenv("APNS_DEVELOPMENT"); val != "" {
		dev, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid APNS_DEVELOPMENT %q: %w", val, err)
		}
		cfg.Development = dev
	}
	if val := os.Getenv("APNS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil || port <= 0 {
			return fmt.Errorf("invalid APNS_PORT %q", val)
		}
		cfg.Port = port
	}
	return nil
}
