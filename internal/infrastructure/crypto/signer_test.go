package crypto

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/domain/models"
)

const testDID = "did:web:certification.dhis2.org"

func newTestSigner(t *testing.T) (*Signer, *KeyStore) {
	t.Helper()
	ks, err := OpenKeyStore(KeyStoreOptions{Dir: t.TempDir(), AutoGenerate: true})
	require.NoError(t, err)
	s, err := NewLocalSigner(context.Background(), ks, SignerOptions{IssuerDID: testDID})
	require.NoError(t, err)
	return s, ks
}

func canonical(t *testing.T, v interface{}) []byte {
	b, err := NewJCSCanonicalizer().Canonicalize(v)
	require.NoError(t, err)
	return b
}

func TestSigner_ProofRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSigner(t)
	doc := canonical(t, map[string]interface{}{"id": "urn:uuid:1", "name": "cert"})

	proof, err := s.CreateDataIntegrityProof(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "DataIntegrityProof", proof.Type)
	assert.Equal(t, "eddsa-rdfc-2022", proof.Cryptosuite)
	assert.Equal(t, "assertionMethod", proof.ProofPurpose)
	assert.Equal(t, testDID+"#key-1", proof.VerificationMethod)
	assert.Equal(t, byte('z'), proof.ProofValue[0])

	ok, err := s.VerifyDataIntegrityProof(ctx, doc, proof)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSigner_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSigner(t)
	doc := canonical(t, map[string]interface{}{"id": "urn:uuid:1", "score": 95})
	proof, err := s.CreateDataIntegrityProof(ctx, doc)
	require.NoError(t, err)

	tests := []struct {
		name  string
		doc   []byte
		proof func(p models.DataIntegrityProof) models.DataIntegrityProof
	}{
		{"document changed", canonical(t, map[string]interface{}{"id": "urn:uuid:1", "score": 96}), nil},
		{"created changed", doc, func(p models.DataIntegrityProof) models.DataIntegrityProof {
			p.Created = "2020-01-01T00:00:00Z"
			return p
		}},
		{"purpose changed", doc, func(p models.DataIntegrityProof) models.DataIntegrityProof {
			p.ProofPurpose = "authentication"
			return p
		}},
		{"garbage proof value", doc, func(p models.DataIntegrityProof) models.DataIntegrityProof {
			p.ProofValue = "z111"
			return p
		}},
		{"foreign did", doc, func(p models.DataIntegrityProof) models.DataIntegrityProof {
			p.VerificationMethod = "did:web:evil.example#key-1"
			return p
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := *proof
			if tt.proof != nil {
				p = tt.proof(p)
			}
			ok, _ := s.VerifyDataIntegrityProof(ctx, tt.doc, &p)
			assert.False(t, ok)
		})
	}
}

func TestSigner_ArchivedKeysVerify(t *testing.T) {
	ctx := context.Background()
	s, ks := newTestSigner(t)
	doc := canonical(t, map[string]string{"id": "old"})
	old, err := s.CreateDataIntegrityProof(ctx, doc)
	require.NoError(t, err)

	_, err = ks.Rotate()
	require.NoError(t, err)

	fresh, err := s.CreateDataIntegrityProof(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, testDID+"#key-2", fresh.VerificationMethod)
	assert.Equal(t, 2, s.KeyVersion())

	for _, p := range []*models.DataIntegrityProof{old, fresh} {
		ok, err := s.VerifyDataIntegrityProof(ctx, doc, p)
		require.NoError(t, err)
		assert.True(t, ok, p.VerificationMethod)
	}
}

func TestSigner_UnknownVersionFailsClosed(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSigner(t)
	doc := canonical(t, map[string]string{"id": "x"})
	proof, err := s.CreateDataIntegrityProof(ctx, doc)
	require.NoError(t, err)

	proof.VerificationMethod = testDID + "#key-9"
	ok, err := s.VerifyDataIntegrityProof(ctx, doc, proof)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestSigner_PublicKeyMultibase(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSigner(t)
	mb, err := s.PublicKeyMultibase(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte('z'), mb[0])

	pub, err := DecodePublicKeyMultibase(mb)
	require.NoError(t, err)
	want, err := s.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, pub)
}

// fakeTransit records the versions it was asked to sign with.
type fakeTransit struct {
	keys    map[int]ed25519.PrivateKey
	latest  int
	calls   int
	failing bool
}

func (f *fakeTransit) Sign(_ context.Context, version int, data []byte) ([]byte, error) {
	key, ok := f.keys[version]
	if !ok {
		return nil, fmt.Errorf("no key version %d", version)
	}
	return ed25519.Sign(key, data), nil
}

func (f *fakeTransit) PublicKeys(context.Context) (map[int]ed25519.PublicKey, int, error) {
	f.calls++
	if f.failing {
		return nil, 0, fmt.Errorf("vault sealed")
	}
	out := make(map[int]ed25519.PublicKey)
	for v, k := range f.keys {
		out[v] = k.Public().(ed25519.PublicKey)
	}
	return out, f.latest, nil
}

func TestVaultSigner_CachesPublicKeys(t *testing.T) {
	ctx := context.Background()
	_, k1, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	transit := &fakeTransit{keys: map[int]ed25519.PrivateKey{1: k1}, latest: 1}

	backend := NewVaultKeyBackend(transit, 0)
	s, err := NewVaultSigner(ctx, backend, SignerOptions{IssuerDID: testDID})
	require.NoError(t, err)
	assert.Equal(t, "vault", s.Backend())

	doc := canonical(t, map[string]string{"id": "x"})
	proof, err := s.CreateDataIntegrityProof(ctx, doc)
	require.NoError(t, err)
	ok, err := s.VerifyDataIntegrityProof(ctx, doc, proof)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, transit.calls)

	// Without cached keys and with vault down, verification fails closed.
	backend.Invalidate()
	transit.failing = true
	ok, err = s.VerifyDataIntegrityProof(ctx, doc, proof)
	assert.False(t, ok)
	assert.Error(t, err)
}
