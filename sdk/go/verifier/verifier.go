// Package verifier lets relying parties check DHIS2 certification credentials without an account.
// It resolves the issuer keys from its did:web document and the revocation bit from the published
// status list, and caches both with ETags.
// verifier 包供依赖方在无账号的情况下校验 DHIS2 认证凭证。
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/certguard/internal/domain/models"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
	"github.com/turtacn/certguard/pkg/constants"
)

const (
	defaultKeyCacheTTL = 5 * time.Minute
	defaultRetryMax    = 3
	defaultTimeout     = 10 * time.Second
)

// Options configures a Verifier.
type Options struct {
	// BaseURL of the certification service, e.g. https://certification.dhis2.org.
	BaseURL string
	// DID of the issuer, e.g. did:web:certification.dhis2.org.
	DID string
	// HTTPClient replaces the default retrying client.
	HTTPClient *http.Client
	// RetryMax applies to the default client only.
	RetryMax    int
	KeyCacheTTL time.Duration
	Now         func() time.Time
}

// Result is the outcome of verifying one credential.
type Result struct {
	Valid          bool   `json:"valid"`
	SignatureValid bool   `json:"signatureValid"`
	Revoked        bool   `json:"revoked"`
	Expired        bool   `json:"expired"`
	KeyVersion     int    `json:"keyVersion,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// Verifier checks certificate credentials against the keys and status lists of one issuer.
// It is safe for concurrent use.
type Verifier struct {
	did      string
	baseURL  string
	keys     *didKeyBackend
	signer   *crypto.Signer
	canon    crypto.JCSCanonicalizer
	statuses *conditionalFetcher
	now      func() time.Time
}

func newRetryingClient(retryMax int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = defaultTimeout
	return rc.StandardClient()
}

// New resolves the issuer DID document once so a misconfigured issuer fails here.
func New(ctx context.Context, opts Options) (*Verifier, error) {
	if opts.BaseURL == "" || opts.DID == "" {
		return nil, fmt.Errorf("verifier: BaseURL and DID are required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.KeyCacheTTL <= 0 {
		opts.KeyCacheTTL = defaultKeyCacheTTL
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}
	client := opts.HTTPClient
	if client == nil {
		client = newRetryingClient(opts.RetryMax)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	v := &Verifier{
		did:     opts.DID,
		baseURL: baseURL,
		keys: &didKeyBackend{
			did:     opts.DID,
			url:     baseURL + constants.PathDIDDocument,
			fetcher: newConditionalFetcher(client, constants.MediaTypeDIDLDJSON),
			ttl:     opts.KeyCacheTTL,
			now:     opts.Now,
		},
		canon:    crypto.NewJCSCanonicalizer(),
		statuses: newConditionalFetcher(client, constants.MediaTypeVCLDJSON),
		now:      opts.Now,
	}
	signer, err := crypto.NewSigner(ctx, v.keys, crypto.SignerOptions{
		IssuerDID:     opts.DID,
		Canonicalizer: v.canon,
		Now:           opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("verifier: resolve %s: %w", opts.DID, err)
	}
	v.signer = signer
	return v, nil
}

// VerifyJSON decodes raw and verifies it.
func (v *Verifier) VerifyJSON(ctx context.Context, raw []byte) (*Result, error) {
	var vc models.VerifiableCredential
	if err := json.Unmarshal(raw, &vc); err != nil {
		return nil, fmt.Errorf("verifier: decode credential: %w", err)
	}
	return v.Verify(ctx, &vc)
}

// Verify checks the proof, validity window and revocation status of vc. An error means the
// answer could not be determined, e.g. the status list was unreachable.
func (v *Verifier) Verify(ctx context.Context, vc *models.VerifiableCredential) (*Result, error) {
	res := &Result{}
	if vc.Issuer.ID != v.did {
		res.Reason = "credential was not issued by " + v.did
		return res, nil
	}
	if vc.Proof == nil {
		res.Reason = "credential has no proof"
		return res, nil
	}

	ok, err := v.verifyProof(ctx, vc)
	if err != nil {
		return nil, err
	}
	res.SignatureValid = ok
	res.KeyVersion, _ = crypto.VerificationMethodVersion(v.did, vc.Proof.VerificationMethod)

	if vc.ValidUntil != "" {
		until, err := time.Parse(time.RFC3339, vc.ValidUntil)
		res.Expired = err != nil || !v.now().Before(until)
	}

	if vc.CredentialStatus != nil {
		if res.Revoked, err = v.isRevoked(ctx, vc.CredentialStatus); err != nil {
			return nil, err
		}
	}

	res.Valid = res.SignatureValid && !res.Revoked && !res.Expired
	switch {
	case !res.SignatureValid:
		res.Reason = "invalid signature"
	case res.Revoked:
		res.Reason = "credential has been revoked"
	case res.Expired:
		res.Reason = "credential has expired"
	}
	return res, nil
}

// verifyProof retries once with a fresh DID document so a rotation published after the last
// fetch does not fail verification.
func (v *Verifier) verifyProof(ctx context.Context, vc *models.VerifiableCredential) (bool, error) {
	canonical, err := v.canon.Canonicalize(vc.Unsigned())
	if err != nil {
		return false, nil
	}
	ok, err := v.signer.VerifyDataIntegrityProof(ctx, canonical, vc.Proof)
	if err == nil && ok {
		return true, nil
	}
	v.keys.invalidate()
	ok, err = v.signer.VerifyDataIntegrityProof(ctx, canonical, vc.Proof)
	if err != nil {
		return false, fmt.Errorf("verifier: %w", err)
	}
	return ok, nil
}

func (v *Verifier) isRevoked(ctx context.Context, entry *models.StatusListEntry) (bool, error) {
	if !strings.HasPrefix(entry.StatusListCredential, v.baseURL+constants.PathStatusListPrefix) {
		return false, fmt.Errorf("verifier: status list %q is not published by %s", entry.StatusListCredential, v.baseURL)
	}
	index, err := strconv.ParseInt(entry.StatusListIndex, 10, 64)
	if err != nil || index < 0 {
		return false, fmt.Errorf("verifier: invalid status list index %q", entry.StatusListIndex)
	}

	var list models.VerifiableCredential
	if err := v.statuses.fetchJSON(ctx, entry.StatusListCredential, &list); err != nil {
		return false, fmt.Errorf("verifier: %w", err)
	}
	if list.Issuer.ID != v.did || list.Proof == nil {
		return false, fmt.Errorf("verifier: status list is not signed by %s", v.did)
	}
	ok, err := v.verifyProof(ctx, &list)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("verifier: status list signature is invalid")
	}

	var subject models.BitstringStatusListSubject
	if err := list.DecodeSubject(&subject); err != nil {
		return false, fmt.Errorf("verifier: decode status list: %w", err)
	}
	if subject.StatusPurpose != entry.StatusPurpose {
		return false, fmt.Errorf("verifier: status list purpose %q does not match %q", subject.StatusPurpose, entry.StatusPurpose)
	}
	bits, err := domainService.DecodeBitstring(subject.EncodedList)
	if err != nil {
		return false, fmt.Errorf("verifier: %w", err)
	}
	return domainService.IsBitSet(bits, index), nil
}
