package crypto

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Low scrypt cost keeps sealed-key tests fast.
const testWorkFactor = 10

func TestKeyStore_AutoGenerateAndReload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	ks, err := OpenKeyStore(KeyStoreOptions{Dir: dir, AutoGenerate: true, Now: func() time.Time { return testNow }})
	require.NoError(t, err)

	meta := ks.Metadata()
	assert.Equal(t, 1, meta.ActiveVersion)
	require.Len(t, meta.Versions, 1)
	assert.Equal(t, testNow, meta.Versions[0].CreatedAt)

	info, err := os.Stat(filepath.Join(dir, "v1", "private.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := OpenKeyStore(KeyStoreOptions{Dir: dir})
	require.NoError(t, err)
	a, _, _ := ks.Keys(context.Background())
	b, _, _ := reloaded.Keys(context.Background())
	assert.Equal(t, a[1], b[1])
}

func TestKeyStore_MissingWithoutAutoGenerate(t *testing.T) {
	_, err := OpenKeyStore(KeyStoreOptions{Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestKeyStore_RejectsOpenPermissions(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenKeyStore(KeyStoreOptions{Dir: dir, AutoGenerate: true})
	require.NoError(t, err)

	require.NoError(t, os.Chmod(filepath.Join(dir, "v1", "private.key"), 0o640))
	_, err = OpenKeyStore(KeyStoreOptions{Dir: dir})
	assert.ErrorIs(t, err, ErrInsecureKeyFile)
}

func TestKeyStore_RotateArchives(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ks, err := OpenKeyStore(KeyStoreOptions{Dir: dir, AutoGenerate: true})
	require.NoError(t, err)

	v2, err := ks.Rotate()
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	meta := ks.Metadata()
	assert.Equal(t, 2, meta.ActiveVersion)
	require.Len(t, meta.Versions, 2)
	assert.True(t, meta.Versions[0].Archived)
	assert.NotNil(t, meta.Versions[0].ArchivedAt)
	assert.False(t, meta.Versions[1].Archived)

	keys, active, err := ks.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, active)
	assert.Len(t, keys, 2)

	reloaded, err := OpenKeyStore(KeyStoreOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Metadata().ActiveVersion)
}

func TestKeyStore_Passphrase(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenKeyStore(KeyStoreOptions{Dir: dir, AutoGenerate: true, Passphrase: "correct horse", ScryptWorkFactor: testWorkFactor})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "v1", "private.key"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "BEGIN AGE ENCRYPTED FILE")

	_, err = OpenKeyStore(KeyStoreOptions{Dir: dir, Passphrase: "correct horse"})
	require.NoError(t, err)

	_, err = OpenKeyStore(KeyStoreOptions{Dir: dir, Passphrase: "wrong"})
	assert.Error(t, err)

	_, err = OpenKeyStore(KeyStoreOptions{Dir: dir})
	assert.Error(t, err)
}
