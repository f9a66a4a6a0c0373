package config

import (
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Enabled  bool          `yaml:"enabled"`
	TTL      time.Duration `yaml:"ttl"`
}

type YamlAPNSConfig struct {
	CertFile        string        `yaml:"cert_file"`
	KeyFile         string        `yaml:"key_file"`
	AuthKeyFile     string        `yaml:"auth_key_file"`
	KeyID           string        `yaml:"key_id"`
	TeamID          string        `yaml:"team_id"`
	Topic           string        `yaml:"topic"`
	Development     bool          `yaml:"development"`
	ProductionHost  string        `yaml:"production_host"`
	DevelopmentHost string        `yaml:"development_host"`
	Port            int           `yaml:"port"`
	Priority        string        `yaml:"priority"`
	InflightPolicy  string        `yaml:"inflight_policy"`
	TTL             time.Duration `yaml:"ttl"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Secrets (certificate password) only come from the environment.
type YamlConfig struct {
	ProjectID              string          `yaml:"project_id"`
	ListenAddr             string          `yaml:"listen_addr"`
	TopicID                string          `yaml:"topic_id"`
	SubscriptionID         string          `yaml:"subscription_id"`
	SubscriptionDLQTopicID string          `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig  `yaml:"cors"`
	RedisConfig            YamlRedisConfig `yaml:"redis"`
	APNSConfig             YamlAPNSConfig  `yaml:"apns"`
	NumPipelineWorkers     int             `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	y := baseCfg.APNSConfig
	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      baseCfg.RedisConfig.TTL,
		},
		APNS: APNSConfig{
			CertFile:        y.CertFile,
			KeyFile:         y.KeyFile,
			AuthKeyFile:     y.AuthKeyFile,
			KeyID:           y.KeyID,
			TeamID:          y.TeamID,
			Topic:           y.Topic,
			Development:     y.Development,
			ProductionHost:  y.ProductionHost,
			DevelopmentHost: y.DevelopmentHost,
			Port:            y.Port,
			Priority:        y.Priority,
			InflightPolicy:  y.InflightPolicy,
			TTL:             y.TTL,
			ConnectTimeout:  y.ConnectTimeout,
			SendTimeout:     y.SendTimeout,
			PingInterval:    y.PingInterval,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"apns_development", cfg.APNS.Development,
	)

	return cfg, nil
}
