package crypto

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/errors"
)

const (
	metadataFile   = "metadata.json"
	privateKeyFile = "private.key"
	pemTypePKCS8   = "PRIVATE KEY"
	algorithmEd    = "Ed25519"
	dirMode        = 0o700
	fileMode       = 0o600
)

// ErrInsecureKeyFile is returned for key files readable by group or others.
var ErrInsecureKeyFile = fmt.Errorf("key file permissions are too open")

// KeyStoreOptions configures OpenKeyStore.
type KeyStoreOptions struct {
	Dir string
	// Passphrase, when set, seals private keys in an age scrypt envelope.
	Passphrase string
	// AutoGenerate creates version 1 when the directory holds no metadata.
	AutoGenerate bool
	// ScryptWorkFactor is the log2 scrypt cost for new envelopes; zero keeps the age default.
	ScryptWorkFactor int
	Now              func() time.Time
}

// KeyStore keeps versioned Ed25519 keys on disk:
//
//	{dir}/metadata.json
//	{dir}/v{N}/private.key   PKCS8 PEM, optionally age-armored
//
// Archived versions stay on disk so older credentials keep verifying.
// KeyStore 在磁盘上保存带版本的 Ed25519 密钥，归档版本永不删除。
type KeyStore struct {
	mu   sync.RWMutex
	opts KeyStoreOptions
	meta models.KeyMetadata
	keys map[int]ed25519.PrivateKey
}

var _ KeyBackend = (*KeyStore)(nil)

// OpenKeyStore loads every key version listed in the metadata.
func OpenKeyStore(opts KeyStoreOptions) (*KeyStore, error) {
	if opts.Dir == "" {
		return nil, errors.ErrValidation("key directory is required", map[string]string{"signing.key_dir": "is required"})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ks := &KeyStore{opts: opts, keys: make(map[int]ed25519.PrivateKey)}

	raw, err := os.ReadFile(filepath.Join(opts.Dir, metadataFile))
	switch {
	case os.IsNotExist(err):
		if !opts.AutoGenerate {
			return nil, errors.ErrNotFound("signing key metadata", opts.Dir)
		}
		if err := os.MkdirAll(opts.Dir, dirMode); err != nil {
			return nil, fmt.Errorf("create key directory: %w", err)
		}
		if _, err := ks.generate(1); err != nil {
			return nil, err
		}
		return ks, nil
	case err != nil:
		return nil, fmt.Errorf("read key metadata: %w", err)
	}

	if err := json.Unmarshal(raw, &ks.meta); err != nil {
		return nil, fmt.Errorf("decode key metadata: %w", err)
	}
	for _, v := range ks.meta.Versions {
		key, err := ks.readPrivateKey(v.Version)
		if err != nil {
			return nil, fmt.Errorf("load key v%d: %w", v.Version, err)
		}
		ks.keys[v.Version] = key
	}
	if _, ok := ks.keys[ks.meta.ActiveVersion]; !ok {
		return nil, fmt.Errorf("active key version %d has no key file", ks.meta.ActiveVersion)
	}
	return ks, nil
}

func (ks *KeyStore) Name() string { return "local" }

// Metadata returns a copy of the key metadata.
func (ks *KeyStore) Metadata() models.KeyMetadata {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.metadataLocked()
}

func (ks *KeyStore) metadataLocked() models.KeyMetadata {
	meta := ks.meta
	meta.Versions = append([]models.KeyVersion(nil), ks.meta.Versions...)
	return meta
}

// Keys returns the public half of every version.
func (ks *KeyStore) Keys(context.Context) (map[int]ed25519.PublicKey, int, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make(map[int]ed25519.PublicKey, len(ks.keys))
	for v, k := range ks.keys {
		out[v] = k.Public().(ed25519.PublicKey)
	}
	return out, ks.meta.ActiveVersion, nil
}

// SignVersion signs data with the private key of version.
func (ks *KeyStore) SignVersion(_ context.Context, version int, data []byte) ([]byte, error) {
	ks.mu.RLock()
	key, ok := ks.keys[version]
	ks.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no private key for version %d", version)
	}
	return ed25519.Sign(key, data), nil
}

// Rotate generates version N+1, archives N and makes N+1 active.
func (ks *KeyStore) Rotate() (models.KeyVersion, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	next := 1
	for _, v := range ks.meta.Versions {
		if v.Version >= next {
			next = v.Version + 1
		}
	}
	return ks.generateLocked(next)
}

func (ks *KeyStore) generate(version int) (models.KeyVersion, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.generateLocked(version)
}

func (ks *KeyStore) generateLocked(version int) (models.KeyVersion, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return models.KeyVersion{}, fmt.Errorf("generate key: %w", err)
	}
	if err := ks.writePrivateKey(version, priv); err != nil {
		return models.KeyVersion{}, err
	}

	now := ks.opts.Now().UTC()
	meta := ks.metadataLocked()
	for i := range meta.Versions {
		if !meta.Versions[i].Archived {
			meta.Versions[i].Archived = true
			meta.Versions[i].ArchivedAt = &now
		}
	}
	created := models.KeyVersion{Version: version, CreatedAt: now}
	meta.Versions = append(meta.Versions, created)
	sort.Slice(meta.Versions, func(i, j int) bool { return meta.Versions[i].Version < meta.Versions[j].Version })
	meta.ActiveVersion = version
	meta.Algorithm = algorithmEd

	if err := writeFileAtomic(filepath.Join(ks.opts.Dir, metadataFile), mustJSON(meta)); err != nil {
		return models.KeyVersion{}, fmt.Errorf("write key metadata: %w", err)
	}
	ks.meta = meta
	ks.keys[version] = priv
	return created, nil
}

func (ks *KeyStore) keyPath(version int) string {
	return filepath.Join(ks.opts.Dir, "v"+strconv.Itoa(version), privateKeyFile)
}

func (ks *KeyStore) writePrivateKey(version int, key ed25519.PrivateKey) error {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemTypePKCS8, Bytes: der})
	if ks.opts.Passphrase != "" {
		if data, err = ks.seal(data); err != nil {
			return err
		}
	}
	path := ks.keyPath(version)
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create key version directory: %w", err)
	}
	return writeFileAtomic(path, data)
}

func (ks *KeyStore) readPrivateKey(version int) (ed25519.PrivateKey, error) {
	path := ks.keyPath(version)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%s has mode %o: %w", path, info.Mode().Perm(), ErrInsecureKeyFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte(armor.Header)) {
		if data, err = ks.open(data); err != nil {
			return nil, err
		}
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePKCS8 {
		return nil, fmt.Errorf("%s is not a PKCS8 PEM file", path)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s does not hold an Ed25519 key", path)
	}
	return key, nil
}

func (ks *KeyStore) seal(plaintext []byte) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(ks.opts.Passphrase)
	if err != nil {
		return nil, err
	}
	if ks.opts.ScryptWorkFactor > 0 {
		recipient.SetWorkFactor(ks.opts.ScryptWorkFactor)
	}
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)
	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ks *KeyStore) open(sealed []byte) ([]byte, error) {
	if ks.opts.Passphrase == "" {
		return nil, fmt.Errorf("key file is passphrase protected but no passphrase is configured")
	}
	identity, err := age.NewScryptIdentity(ks.opts.Passphrase)
	if err != nil {
		return nil, err
	}
	r, err := age.Decrypt(armor.NewReader(bytes.NewReader(sealed)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt key file: %w", err)
	}
	return io.ReadAll(r)
}

// writeFileAtomic writes data to a temp file in the same directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func mustJSON(v interface{}) []byte {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return b
}
