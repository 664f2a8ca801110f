package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
)

const testConfig = `
jwt:
  access_secret: access-secret-for-tests-only-32b
  refresh_secret: refresh-secret-for-tests-only-32
otp:
  encryption_key: %s
issuer:
  did: did:web:certification.example.org
  base_url: https://certification.example.org
signing:
  key_dir: %s
log:
  level: error
`

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	keyDir := filepath.Join(dir, "keys")
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(testConfig, strings.Repeat("ab", 32), keyDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, keyDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestKeyGenerateThenRotate(t *testing.T) {
	cfgPath, keyDir := writeConfig(t)

	out, err := execute(t, "key", "generate", "--config", cfgPath)
	require.NoError(t, err)
	var meta models.KeyMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &meta))
	assert.Equal(t, 1, meta.ActiveVersion)
	assert.FileExists(t, filepath.Join(keyDir, "metadata.json"))

	out, err = execute(t, "key", "status", "--config", cfgPath, "--strict")
	require.NoError(t, err)
	var status keyStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "local", status.Backend)
	assert.Equal(t, constants.RotationHealthy, status.Rotation.Status)
	assert.Equal(t, 1, status.Rotation.ActiveVersion)

	_, err = execute(t, "key", "rotate", "--config", cfgPath)
	assert.Error(t, err, "rotation needs --yes")

	out, err = execute(t, "key", "rotate", "--config", cfgPath, "--yes")
	require.NoError(t, err)
	var kv models.KeyVersion
	require.NoError(t, json.Unmarshal([]byte(out), &kv))
	assert.Equal(t, 2, kv.Version)

	out, err = execute(t, "key", "public-key", "--config", cfgPath, "--did")
	require.NoError(t, err)
	var doc models.DIDDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "did:web:certification.example.org", doc.ID)
	assert.Len(t, doc.VerificationMethod, 2)

	out, err = execute(t, "key", "public-key", "--config", cfgPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "z"), out)
	assert.Equal(t, doc.VerificationMethod[1].PublicKeyMultibase, strings.TrimSpace(out))
}

func TestKeyGenerateRefusesVault(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	t.Setenv("CERTGUARD_VAULT_ENABLED", "true")
	t.Setenv("CERTGUARD_VAULT_ADDRESS", "http://127.0.0.1:8200")
	t.Setenv("CERTGUARD_VAULT_TOKEN", "dev-token")

	_, err := execute(t, "key", "generate", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transit")
}
