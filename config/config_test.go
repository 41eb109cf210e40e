package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlayCredentials_Raw(t *testing.T) {
	cfg := &Config{PlayServiceAccount: `{"type":"service_account"}`}

	creds, err := cfg.PlayCredentials()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"service_account"}`, string(creds))
}

func TestPlayCredentials_Base64(t *testing.T) {
	raw := `{"type":"service_account","project_id":"verse-app"}`
	cfg := &Config{PlayServiceAccount: "base64:" + base64.StdEncoding.EncodeToString([]byte(raw))}

	creds, err := cfg.PlayCredentials()
	require.NoError(t, err)
	require.JSONEq(t, raw, string(creds))
}

func TestPlayCredentials_Missing(t *testing.T) {
	cfg := &Config{}

	_, err := cfg.PlayCredentials()
	require.ErrorIs(t, err, ErrNoPlayCredentials)
}

func TestPlayCredentials_InvalidBase64(t *testing.T) {
	cfg := &Config{PlayServiceAccount: "base64:!!!not-base64!!!"}

	_, err := cfg.PlayCredentials()
	require.Error(t, err)
}

func TestPlayCredentials_NotJSON(t *testing.T) {
	cfg := &Config{PlayServiceAccount: "base64:" + base64.StdEncoding.EncodeToString([]byte("not json"))}

	_, err := cfg.PlayCredentials()
	require.Error(t, err)

	// Cached result is stable across calls.
	_, again := cfg.PlayCredentials()
	require.Equal(t, err, again)
}
