package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload(t *testing.T) {
	t.Run("Plain alert", func(t *testing.T) {
		b, err := buildPayload("", "hello", "", -1).MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"aps":{"alert":"hello"}}`, string(b))
	})

	t.Run("Rich alert", func(t *testing.T) {
		b, err := buildPayload("Hi", "hello", "ping.aiff", 3).MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"aps":{"alert":{"title":"Hi","body":"hello"},"sound":"ping.aiff","badge":3}}`, string(b))
	})
}

func TestRun_Validation(t *testing.T) {
	t.Setenv("APNS_CERT_FILE", "")
	t.Setenv("APNS_AUTH_KEY_FILE", "")

	t.Run("Missing token", func(t *testing.T) {
		err := run([]string{"-message", "hi"})
		assert.ErrorContains(t, err, "-token and -message are required")
	})

	t.Run("Missing credentials", func(t *testing.T) {
		err := run([]string{"-token", "aabb", "-message", "hi"})
		assert.ErrorContains(t, err, "credentials are required")
	})

	t.Run("Bad priority", func(t *testing.T) {
		err := run([]string{"-cert", "c.pem", "-priority", "urgent", "-token", "aabb", "-message", "hi"})
		assert.Error(t, err)
	})
}
