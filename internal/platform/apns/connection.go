package apns

import (
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-apns-service/notificationservice/config"
	apnsclient "github.com/tinywideclouds/go-apns-service/pkg/apns"
)

// NewConnection builds the shared gateway connection from the service
// configuration. Certificates and the p8 signing key are parsed immediately
// to fail fast on startup if credentials are bad.
func NewConnection(cfg config.APNSConfig, logger *slog.Logger) (*apnsclient.Connection, error) {
	policy, err := apnsclient.ParseInflightPolicy(cfg.InflightPolicy)
	if err != nil {
		return nil, err
	}

	clientCfg := apnsclient.Config{
		CertFile:        cfg.CertFile,
		KeyFile:         cfg.KeyFile,
		CertPassword:    cfg.CertPassword,
		Development:     cfg.Development,
		ProductionHost:  cfg.ProductionHost,
		DevelopmentHost: cfg.DevelopmentHost,
		Port:            cfg.Port,
		ConnectTimeout:  cfg.ConnectTimeout,
		SendTimeout:     cfg.SendTimeout,
		PingInterval:    cfg.PingInterval,
		InflightPolicy:  policy,
	}

	if cfg.AuthKeyFile != "" {
		authKey, err := token.AuthKeyFromFile(cfg.AuthKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
		}
		clientCfg.AuthToken = &token.Token{
			AuthKey: authKey,
			KeyID:   cfg.KeyID,
			TeamID:  cfg.TeamID,
		}
	}

	return apnsclient.NewConnection(clientCfg, logger)
}

// OptionsFromConfig derives the per-send options from the service configuration.
func OptionsFromConfig(cfg config.APNSConfig) (Options, error) {
	opts := Options{Topic: cfg.Topic, TTL: cfg.TTL, Priority: apnsclient.Immediate}
	if cfg.Priority != "" {
		p, err := apnsclient.ParsePriority(cfg.Priority)
		if err != nil {
			return Options{}, err
		}
		opts.Priority = p
	}
	return opts, nil
}
