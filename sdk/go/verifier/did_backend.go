package verifier

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
)

// ErrVerifyOnly is returned when something tries to sign with a resolved DID document.
var ErrVerifyOnly = errors.New("did:web keys are verify-only")

// didKeyBackend resolves the issuer keys from its did:web document. It is a crypto.KeyBackend
// that can only verify.
type didKeyBackend struct {
	did     string
	url     string
	fetcher *conditionalFetcher
	ttl     time.Duration
	now     func() time.Time

	mu        sync.Mutex
	keys      map[int]ed25519.PublicKey
	active    int
	fetchedAt time.Time
}

var _ crypto.KeyBackend = (*didKeyBackend)(nil)

func (b *didKeyBackend) Name() string { return "did:web" }

// Keys serves the resolved keys for ttl, then revalidates the document.
func (b *didKeyBackend) Keys(ctx context.Context) (map[int]ed25519.PublicKey, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.keys != nil && b.now().Sub(b.fetchedAt) < b.ttl {
		return b.keys, b.active, nil
	}

	var doc models.DIDDocument
	if err := b.fetcher.fetchJSON(ctx, b.url, &doc); err != nil {
		return nil, 0, err
	}
	keys, active, err := keysFromDocument(b.did, &doc)
	if err != nil {
		return nil, 0, err
	}
	b.keys, b.active, b.fetchedAt = keys, active, b.now()
	return keys, active, nil
}

func (b *didKeyBackend) SignVersion(context.Context, int, []byte) ([]byte, error) {
	return nil, ErrVerifyOnly
}

// invalidate forces the next Keys call to refetch the document unconditionally.
func (b *didKeyBackend) invalidate() {
	b.mu.Lock()
	b.keys = nil
	b.mu.Unlock()
	b.fetcher.forget(b.url)
}

// keysFromDocument maps "{did}#key-N" methods to their public keys. The highest version is active.
func keysFromDocument(did string, doc *models.DIDDocument) (map[int]ed25519.PublicKey, int, error) {
	if doc.ID != did {
		return nil, 0, fmt.Errorf("DID document is for %q, expected %q", doc.ID, did)
	}
	keys := make(map[int]ed25519.PublicKey, len(doc.VerificationMethod))
	active := 0
	for _, vm := range doc.VerificationMethod {
		version, ok := crypto.VerificationMethodVersion(did, vm.ID)
		if !ok {
			continue
		}
		pub, err := crypto.DecodePublicKeyMultibase(vm.PublicKeyMultibase)
		if err != nil {
			return nil, 0, fmt.Errorf("verification method %s: %w", vm.ID, err)
		}
		keys[version] = pub
		if version > active {
			active = version
		}
	}
	if len(keys) == 0 {
		return nil, 0, fmt.Errorf("DID document %s lists no usable keys", did)
	}
	return keys, active, nil
}
