// Package tools implements clients for the external collaborator systems the
// rescue pipeline talks to: CRM, transcript store, order management,
// inventory, payments, and customer messaging. Each client resolves its API
// credential lazily and caches it for the process lifetime.
package tools

import (
	"fmt"
	"os"
	"sync"
)

// Secret names used by the collaborator clients.
const (
	SecretCRMAPIKey       = "crm_api_key"
	SecretInventoryAPIKey = "inventory_api_key"
	SecretPaymentAPIKey   = "payment_api_key"
	SecretSendgridAPIKey  = "sendgrid_api_key"
	SecretTwilioAuthToken = "twilio_auth_token"
	SecretTranscriptKey   = "transcript_api_key"
)

// SecretSource resolves named credentials for collaborator clients.
type SecretSource interface {
	Get(name string) (string, error)
}

// EnvSecretSource resolves secrets from environment variables, mapping
// "crm_api_key" to CRM_API_KEY. Combined with godotenv loading in the CLI it
// covers both .env files and real environments.
type EnvSecretSource struct{}

// Get returns the secret value for name.
func (EnvSecretSource) Get(name string) (string, error) {
	envName := toEnvName(name)
	if v := os.Getenv(envName); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s (env %s not set)", ErrSecretUnavailable, name, envName)
}

func toEnvName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// StaticSecretSource serves secrets from a fixed map. Used in tests and for
// single-tenant deployments where secrets arrive via config.
type StaticSecretSource map[string]string

// Get returns the secret value for name.
func (s StaticSecretSource) Get(name string) (string, error) {
	if v, ok := s[name]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretUnavailable, name)
}

// cachedSecret memoizes one named secret with exactly-once-on-first-use
// semantics. Never refreshed mid-run.
type cachedSecret struct {
	source SecretSource
	name   string

	once  sync.Once
	value string
	err   error
}

func newCachedSecret(source SecretSource, name string) *cachedSecret {
	return &cachedSecret{source: source, name: name}
}

// get resolves the secret on first use and returns the cached value after.
func (c *cachedSecret) get() (string, error) {
	c.once.Do(func() {
		c.value, c.err = c.source.Get(c.name)
	})
	return c.value, c.err
}
