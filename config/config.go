package config

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Secret values may be injected base64-encoded (deployment tooling tends to
// mangle raw JSON); the prefix marks them.
const base64Sentinel = "base64:"

var ErrNoPlayCredentials = errors.New("google play service account is not configured")

// Config carries the deployment configuration for the server. Secrets are
// kept raw here; use the accessors to obtain decoded values.
type Config struct {
	ListenAddress     string
	FirebaseProjectID string

	// AndroidPackageName is the Play Store package all purchase tokens are
	// verified against.
	AndroidPackageName string

	// AppleSharedSecret is optional; subscription verification requires it,
	// one-time purchase verification does not.
	AppleSharedSecret string

	// PlayServiceAccount is the service-account JSON for the Play Developer
	// API, possibly prefixed with "base64:".
	PlayServiceAccount string

	playOnce  sync.Once
	playJSON  []byte
	playError error
}

// Load reads configuration from the environment.
func Load() *Config {
	addr := os.Getenv("VERSE_LISTEN_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	return &Config{
		ListenAddress:      addr,
		FirebaseProjectID:  os.Getenv("VERSE_FIREBASE_PROJECT_ID"),
		AndroidPackageName: os.Getenv("VERSE_ANDROID_PACKAGE_NAME"),
		AppleSharedSecret:  os.Getenv("VERSE_APPLE_SHARED_SECRET"),
		PlayServiceAccount: os.Getenv("VERSE_PLAY_SERVICE_ACCOUNT"),
	}
}

// PlayCredentials returns the decoded Play service-account JSON. The decode
// result is cached per process; re-decoding would be equally valid.
func (c *Config) PlayCredentials() ([]byte, error) {
	c.playOnce.Do(func() {
		c.playJSON, c.playError = decodeServiceAccount(c.PlayServiceAccount)
	})
	return c.playJSON, c.playError
}

func decodeServiceAccount(raw string) ([]byte, error) {
	if raw == "" {
		return nil, ErrNoPlayCredentials
	}

	value := []byte(raw)
	if strings.HasPrefix(raw, base64Sentinel) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, base64Sentinel))
		if err != nil {
			return nil, errors.Wrap(err, "decoding play service account")
		}
		value = decoded
	}

	if !json.Valid(value) {
		return nil, errors.New("play service account is not valid JSON")
	}

	return value, nil
}
