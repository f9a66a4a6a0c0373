package apns_test

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-apns-service/pkg/apns"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewConnection_Credentials(t *testing.T) {
	logger := newTestLogger()

	t.Run("No certificate and no token", func(t *testing.T) {
		_, err := apns.NewConnection(apns.Config{}, logger)
		assert.ErrorIs(t, err, apns.ErrNoCredentials)
	})

	t.Run("Missing certificate file fails fast", func(t *testing.T) {
		dir := t.TempDir()
		_, err := apns.NewConnection(apns.Config{
			CertFile: filepath.Join(dir, "missing.pem"),
			KeyFile:  filepath.Join(dir, "missing.key"),
		}, logger)
		assert.Error(t, err)
	})

	t.Run("Missing p12 bundle fails fast", func(t *testing.T) {
		_, err := apns.NewConnection(apns.Config{CertFile: filepath.Join(t.TempDir(), "cert.p12")}, logger)
		assert.Error(t, err)
	})
}

func TestConfig_Host(t *testing.T) {
	cfg := apns.Config{ProductionHost: "prod", DevelopmentHost: "dev"}
	assert.Equal(t, "prod", cfg.Host())
	cfg.Development = true
	assert.Equal(t, "dev", cfg.Host())
}

func TestParseInflightPolicy(t *testing.T) {
	for in, want := range map[string]apns.InflightPolicy{
		"":        apns.InflightKeep,
		"keep":    apns.InflightKeep,
		"Discard": apns.InflightDiscard,
		"abort":   apns.InflightAbort,
	} {
		got, err := apns.ParseInflightPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := apns.ParseInflightPolicy("retry")
	assert.Error(t, err)
}
