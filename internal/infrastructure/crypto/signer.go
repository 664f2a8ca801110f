// Package crypto holds the Ed25519 signing backends, Data Integrity proof construction,
// token signing and at-rest secret encryption.
// Package crypto 提供 Ed25519 签名后端、数据完整性证明、令牌签名与静态密钥加密。
package crypto

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// KeyBackend holds versioned Ed25519 keys and signs with a given version.
type KeyBackend interface {
	// Name identifies the backend in logs and metrics ("local", "vault").
	Name() string
	// Keys returns every public key by version and the active version.
	Keys(ctx context.Context) (map[int]ed25519.PublicKey, int, error)
	// SignVersion signs data with the key of version.
	SignVersion(ctx context.Context, version int, data []byte) ([]byte, error)
}

// SignerOptions configures a Signer.
type SignerOptions struct {
	IssuerDID     string
	Canonicalizer service.Canonicalizer
	Now           func() time.Time
	Metrics       service.Metrics
	Logger        logger.Logger
}

// Signer implements service.SigningService on top of a KeyBackend.
type Signer struct {
	backend KeyBackend
	did     string
	canon   service.Canonicalizer
	now     func() time.Time
	metrics service.Metrics
	log     logger.Logger
	version atomic.Int64
}

var _ service.SigningService = (*Signer)(nil)

// NewSigner creates a signer and loads the key set once. A backend without keys is an error.
func NewSigner(ctx context.Context, backend KeyBackend, opts SignerOptions) (*Signer, error) {
	if opts.Canonicalizer == nil {
		opts.Canonicalizer = NewJCSCanonicalizer()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = service.NewNoopMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoopLogger()
	}
	s := &Signer{
		backend: backend,
		did:     opts.IssuerDID,
		canon:   opts.Canonicalizer,
		now:     opts.Now,
		metrics: opts.Metrics,
		log:     opts.Logger.WithComponent("Signer"),
	}
	if _, _, err := s.keys(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewLocalSigner signs with keys from a local key store.
func NewLocalSigner(ctx context.Context, store *KeyStore, opts SignerOptions) (*Signer, error) {
	return NewSigner(ctx, store, opts)
}

// NewVaultSigner signs through a vault transit engine.
func NewVaultSigner(ctx context.Context, backend *VaultKeyBackend, opts SignerOptions) (*Signer, error) {
	return NewSigner(ctx, backend, opts)
}

func (s *Signer) keys(ctx context.Context) (map[int]ed25519.PublicKey, int, error) {
	keys, active, err := s.backend.Keys(ctx)
	if err != nil {
		return nil, 0, errors.ErrServiceUnavailable("signing keys").WithCause(err)
	}
	if _, ok := keys[active]; !ok {
		return nil, 0, errors.ErrSigningFailed(fmt.Sprintf("active key version %d is not available", active))
	}
	s.version.Store(int64(active))
	return keys, active, nil
}

// Backend returns the name of the key backend.
func (s *Signer) Backend() string { return s.backend.Name() }

func (s *Signer) signVersion(ctx context.Context, version int, data []byte) ([]byte, error) {
	start := time.Now()
	sig, err := s.backend.SignVersion(ctx, version, data)
	s.metrics.RecordSigning(s.backend.Name(), time.Since(start), err)
	if err != nil {
		s.log.Error(ctx, "signing failed", err, logger.String("backend", s.backend.Name()), logger.Int("key_version", version))
		return nil, errors.ErrSigningFailed("signing backend rejected the request").WithCause(err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, errors.ErrSigningFailed("unexpected signature length")
	}
	return sig, nil
}

// Sign signs data with the active key.
func (s *Signer) Sign(ctx context.Context, data []byte) ([]byte, error) {
	_, active, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	return s.signVersion(ctx, active, data)
}

// PublicKey returns the active public key.
func (s *Signer) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	keys, active, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	return keys[active], nil
}

func (s *Signer) PublicKeyMultibase(ctx context.Context) (string, error) {
	pub, err := s.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return PublicKeyMultibase(pub), nil
}

func (s *Signer) VerificationKeys(ctx context.Context) (map[int]ed25519.PublicKey, error) {
	keys, _, err := s.keys(ctx)
	return keys, err
}

// KeyVersion returns the active version seen by the last key lookup.
func (s *Signer) KeyVersion() int { return int(s.version.Load()) }

func (s *Signer) VerificationMethod() string { return s.verificationMethod(s.KeyVersion()) }

func (s *Signer) verificationMethod(version int) string {
	return s.did + "#key-" + strconv.Itoa(version)
}

// VerificationMethodVersion extracts N from "{did}#key-N".
func VerificationMethodVersion(did, method string) (int, bool) {
	return service.KeyVersionOf(did, method)
}

// proofHash is SHA256(canonical options) || SHA256(canonical document).
func (s *Signer) proofHash(options models.DataIntegrityProof, canonicalDocument []byte) ([]byte, error) {
	canonicalOptions, err := s.canon.Canonicalize(options.Options())
	if err != nil {
		return nil, err
	}
	optionsHash := sha256.Sum256(canonicalOptions)
	documentHash := sha256.Sum256(canonicalDocument)
	return append(optionsHash[:], documentHash[:]...), nil
}

// CreateDataIntegrityProof signs canonicalDocument with the active key.
func (s *Signer) CreateDataIntegrityProof(ctx context.Context, canonicalDocument []byte) (*models.DataIntegrityProof, error) {
	_, active, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	proof := models.DataIntegrityProof{
		Type:               constants.ProofTypeDataIntegrity,
		Cryptosuite:        constants.CryptosuiteEdDSARDFC2022,
		Created:            s.now().UTC().Format(time.RFC3339),
		VerificationMethod: s.verificationMethod(active),
		ProofPurpose:       constants.ProofPurposeAssertion,
	}
	hash, err := s.proofHash(proof, canonicalDocument)
	if err != nil {
		return nil, errors.ErrSigningFailed("failed to canonicalize proof options").WithCause(err)
	}
	sig, err := s.signVersion(ctx, active, hash)
	if err != nil {
		return nil, err
	}
	proof.ProofValue = EncodeMultibase(sig)
	return &proof, nil
}

// VerifyDataIntegrityProof recomputes the proof hash from the proof's own fields and checks it
// against the key named by verificationMethod, archived versions included.
func (s *Signer) VerifyDataIntegrityProof(ctx context.Context, canonicalDocument []byte, proof *models.DataIntegrityProof) (bool, error) {
	if proof == nil {
		return false, errors.ErrVerificationFailed("missing proof")
	}
	if proof.Type != constants.ProofTypeDataIntegrity || proof.Cryptosuite != constants.CryptosuiteEdDSARDFC2022 {
		return false, nil
	}
	version, ok := VerificationMethodVersion(s.did, proof.VerificationMethod)
	if !ok {
		return false, nil
	}
	keys, _, err := s.keys(ctx)
	if err != nil {
		return false, err
	}
	pub, ok := keys[version]
	if !ok {
		return false, errors.ErrVerificationFailed(fmt.Sprintf("no public key for version %d", version))
	}
	sig, err := DecodeMultibase(proof.ProofValue)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false, nil
	}
	hash, err := s.proofHash(*proof, canonicalDocument)
	if err != nil {
		return false, errors.ErrVerificationFailed("failed to canonicalize proof options").WithCause(err)
	}
	return ed25519.Verify(pub, hash, sig), nil
}
