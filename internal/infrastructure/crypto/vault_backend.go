package crypto

import (
	"context"
	"crypto/ed25519"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const publicKeysCacheKey = "transit:public-keys"

// TransitClient is the part of the vault transit engine the signer needs.
type TransitClient interface {
	// Sign signs data with an explicit key version and returns the raw signature.
	Sign(ctx context.Context, version int, data []byte) ([]byte, error)
	// PublicKeys returns every key version and the latest one.
	PublicKeys(ctx context.Context) (map[int]ed25519.PublicKey, int, error)
}

type transitKeySet struct {
	keys   map[int]ed25519.PublicKey
	latest int
}

// VaultKeyBackend signs through vault and caches the public key set for ttl.
// A cache miss refetches; if that fails the backend reports no keys, so verification fails closed.
type VaultKeyBackend struct {
	client TransitClient
	cache  *gocache.Cache
}

var _ KeyBackend = (*VaultKeyBackend)(nil)

func NewVaultKeyBackend(client TransitClient, ttl time.Duration) *VaultKeyBackend {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &VaultKeyBackend{client: client, cache: gocache.New(ttl, 2*ttl)}
}

func (b *VaultKeyBackend) Name() string { return "vault" }

func (b *VaultKeyBackend) Keys(ctx context.Context) (map[int]ed25519.PublicKey, int, error) {
	if v, ok := b.cache.Get(publicKeysCacheKey); ok {
		set := v.(transitKeySet)
		return set.keys, set.latest, nil
	}
	keys, latest, err := b.client.PublicKeys(ctx)
	if err != nil {
		return nil, 0, err
	}
	b.cache.SetDefault(publicKeysCacheKey, transitKeySet{keys: keys, latest: latest})
	return keys, latest, nil
}

func (b *VaultKeyBackend) SignVersion(ctx context.Context, version int, data []byte) ([]byte, error) {
	return b.client.Sign(ctx, version, data)
}

// Invalidate drops the cached key set, e.g. after a rotation.
func (b *VaultKeyBackend) Invalidate() {
	b.cache.Delete(publicKeysCacheKey)
}
