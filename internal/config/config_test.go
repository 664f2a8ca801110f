package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
)

const validYAML = `
jwt:
  access_secret: access-secret-for-tests
  refresh_secret: refresh-secret-for-tests
otp:
  encryption_key: 000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f
issuer:
  did: did:web:certification.dhis2.org
  base_url: https://certification.dhis2.org
blacklist:
  fallback_mode: fail_open
session:
  idle_timeout: 10m
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, constants.SessionAbsoluteTimeoutDefault, cfg.Session.AbsoluteTimeout)
	assert.Equal(t, constants.FallbackFailOpen, cfg.Blacklist.FallbackMode)
	assert.Equal(t, constants.AccessTokenDefaultTTL, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 5, cfg.Lockout.MaxAttempts)
	assert.False(t, cfg.Vault.Enabled)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CERTGUARD_LOCKOUT_MAX_ATTEMPTS", "3")
	t.Setenv("CERTGUARD_SERVER_PORT", "9090")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Lockout.MaxAttempts)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateRejectsMissingSecrets(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "issuer:\n  did: did:web:x\n"))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	ce, _ := errors.AsCertError(err)
	fields := ce.Metadata()["fields"].(map[string]string)
	assert.Contains(t, fields, "jwt.access_secret")
	assert.Contains(t, fields, "otp.encryption_key")
	assert.Contains(t, fields, "issuer.base_url")
}

func TestValidateVaultRequiresCredentials(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, validYAML+"vault:\n  enabled: true\n  address: http://vault:8200\n"))
	require.Error(t, err)
	ce, _ := errors.AsCertError(err)
	assert.Contains(t, ce.Metadata()["fields"], "vault.role_id")
}

func TestLoadConfigSecretsFromEnv(t *testing.T) {
	t.Setenv("CERTGUARD_JWT_ACCESS_SECRET", "access-from-env")
	t.Setenv("CERTGUARD_VAULT_TOKEN", "dev-token")

	cfg, err := LoadConfig(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "access-from-env", cfg.JWT.AccessSecret)
	assert.Equal(t, "dev-token", cfg.Vault.Token)
}
