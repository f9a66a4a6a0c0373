package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-apns-service/notificationservice/config"
)

const sampleYaml = `
project_id: yaml-project
listen_addr: ":9000"
topic_id: yaml-topic
subscription_id: yaml-subscription
subscription_dlq_topic_id: yaml-dlq
num_pipeline_workers: 5
cors:
  allowed_origins: ["http://yaml.com"]
  role: editor
redis:
  enabled: true
  addr: "localhost:6379"
  ttl: 1h
apns:
  cert_file: /etc/apns/cert.pem
  key_file: /etc/apns/key.pem
  topic: com.yaml.app
  development: true
  port: 2197
  priority: delayed
  inflight_policy: discard
  ttl: 30m
  connect_timeout: 10s
  ping_interval: 1m
`

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		var yamlCfg config.YamlConfig
		require.NoError(t, yaml.Unmarshal([]byte(sampleYaml), &yamlCfg))

		cfg, err := config.NewConfigFromYaml(&yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		// 1. Direct Field Mapping
		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		// 2. CORS
		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		// 3. Redis
		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, time.Hour, cfg.Redis.TTL)

		// 4. APNs
		assert.Equal(t, "/etc/apns/cert.pem", cfg.APNS.CertFile)
		assert.Equal(t, "/etc/apns/key.pem", cfg.APNS.KeyFile)
		assert.Equal(t, "com.yaml.app", cfg.APNS.Topic)
		assert.True(t, cfg.APNS.Development)
		assert.Equal(t, 2197, cfg.APNS.Port)
		assert.Equal(t, "delayed", cfg.APNS.Priority)
		assert.Equal(t, "discard", cfg.APNS.InflightPolicy)
		assert.Equal(t, 30*time.Minute, cfg.APNS.TTL)
		assert.Equal(t, 10*time.Second, cfg.APNS.ConnectTimeout)
		assert.Equal(t, time.Minute, cfg.APNS.PingInterval)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:      "minimal-project",
			SubscriptionID: "minimal-sub",
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Empty(t, cfg.APNS.CertFile)
		assert.Zero(t, cfg.APNS.SendTimeout)
	})
}
