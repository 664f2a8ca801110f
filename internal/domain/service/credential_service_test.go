package service_test

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/internal/domain/service/mocks"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

const issuerDID = "did:web:certification.dhis2.org"

var issuer = service.IssuerProfile{
	DID:     issuerDID,
	Name:    "DHIS2 Certification",
	BaseURL: "https://certification.dhis2.org",
}

// revokedIndices is a certificate store that only knows which indices are revoked.
type revokedIndices struct {
	repository.CertificateRepository
	byYear map[int][]int64
}

func (r *revokedIndices) FindRevokedIndicesByYear(_ context.Context, year int) ([]int64, error) {
	return r.byYear[year], nil
}

func (r *revokedIndices) IsIndexRevoked(_ context.Context, year int, index int64) (bool, error) {
	for _, i := range r.byYear[year] {
		if i == index {
			return true, nil
		}
	}
	return false, nil
}

func newSigner(t *testing.T, clock *fakeClock) (*crypto.Signer, *crypto.KeyStore) {
	t.Helper()
	ks, err := crypto.OpenKeyStore(crypto.KeyStoreOptions{Dir: t.TempDir(), AutoGenerate: true, Now: clock.Now})
	require.NoError(t, err)
	signer, err := crypto.NewLocalSigner(context.Background(), ks, crypto.SignerOptions{IssuerDID: issuerDID, Now: clock.Now})
	require.NoError(t, err)
	return signer, ks
}

func newCredentials(signer service.SigningService, clock *fakeClock, certs repository.CertificateRepository) (*service.CredentialService, *service.StatusListService) {
	canon := crypto.NewJCSCanonicalizer()
	statuses := service.NewStatusListService(certs, signer, canon, issuer, clock.Now, logger.NewNoopLogger())
	return service.NewCredentialService(signer, canon, issuer, statuses, logger.NewNoopLogger()), statuses
}

func credentialInput() service.CredentialInput {
	return service.CredentialInput{
		CertificateID:      "5f0c1a52-5b1e-4d8f-9d61-2f1c8c1c3a10",
		CertificateNumber:  "DHIS2-2026-P-0a1b2c3d",
		ImplementationID:   "8d7e3f0a-54a4-4f43-bb1e-3c9c15f5a0e1",
		ImplementationName: "Sierra Leone HMIS",
		ControlGroup:       models.ControlGroupL2,
		FinalScore:         94.5,
		CategoryScores:     []models.CategoryScore{{Name: "Access Control", Score: 88.4}, {Name: "Backups", Score: 100}},
		IssuedAt:           t0.Add(1500 * time.Millisecond),
	}
}

func TestBuildCredential(t *testing.T) {
	clock := newFakeClock()
	signer, _ := newSigner(t, clock)
	creds, _ := newCredentials(signer, clock, &revokedIndices{})

	vc, err := creds.BuildCredential(credentialInput(), 42)
	require.NoError(t, err)
	assert.Equal(t, "urn:uuid:5f0c1a52-5b1e-4d8f-9d61-2f1c8c1c3a10", vc.ID)
	assert.Equal(t, []string{"VerifiableCredential", "OpenBadgeCredential"}, vc.Type)
	assert.Equal(t, issuerDID, vc.Issuer.ID)
	assert.Equal(t, "2026-03-01T12:00:01Z", vc.ValidFrom)
	assert.Equal(t, "2027-03-01T12:00:01Z", vc.ValidUntil)
	assert.Nil(t, vc.Proof)

	require.NotNil(t, vc.CredentialStatus)
	assert.Equal(t, "42", vc.CredentialStatus.StatusListIndex)
	assert.Equal(t, "https://certification.dhis2.org/status-list/2026#42", vc.CredentialStatus.ID)
	assert.Equal(t, "revocation", vc.CredentialStatus.StatusPurpose)

	subject := vc.CredentialSubject.(models.AchievementSubject)
	assert.Equal(t, "https://certification.dhis2.org/achievements/L2", subject.Achievement.ID)
	values := make([]string, 0, len(subject.Result))
	for _, r := range subject.Result {
		values = append(values, r.ResultDescription+"="+r.Value)
	}
	assert.Equal(t, []string{"Overall Score=95%", "Access Control=88%", "Backups=100%"}, values)

	in := credentialInput()
	in.ControlGroup = "L9"
	_, err = creds.BuildCredential(in, 1)
	assert.True(t, errors.IsValidationError(err))
}

func TestIssueAndVerifyCredential(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	signer, _ := newSigner(t, clock)
	creds, _ := newCredentials(signer, clock, &revokedIndices{})

	issued, err := creds.IssueCredential(ctx, credentialInput(), 7)
	require.NoError(t, err)
	require.NotNil(t, issued.Credential.Proof)
	assert.Equal(t, 1, issued.KeyVersion)
	assert.Len(t, issued.CertificateHash, 64)
	assert.Equal(t, issued.Credential.Proof.ProofValue, issued.Signature)
	assert.True(t, strings.HasPrefix(issued.Signature, "z"))

	res := creds.VerifyCredentialFull(ctx, issued.Credential, issued.CertificateHash)
	assert.True(t, res.Valid, res.Reason)

	res = creds.VerifyCredentialFull(ctx, issued.Credential, strings.Repeat("0", 64))
	assert.False(t, res.Valid)
	assert.False(t, res.IntegrityValid)
	assert.True(t, res.SignatureValid)
	assert.Contains(t, res.Reason, "hash mismatch")

	tampered := *issued.Credential
	tampered.Name = "Level 3"
	res = creds.VerifyCredentialFull(ctx, &tampered, issued.CertificateHash)
	assert.False(t, res.IntegrityValid)
	assert.False(t, res.SignatureValid)

	unsigned := issued.Credential.Unsigned()
	res = creds.VerifyCredentialFull(ctx, unsigned, issued.CertificateHash)
	assert.Equal(t, "credential has no proof", res.Reason)
}

func TestVerifyCredential_AfterKeyRotation(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	signer, ks := newSigner(t, clock)
	creds, _ := newCredentials(signer, clock, &revokedIndices{})

	old, err := creds.IssueCredential(ctx, credentialInput(), 1)
	require.NoError(t, err)

	_, err = ks.Rotate()
	require.NoError(t, err)
	fresh, err := creds.IssueCredential(ctx, credentialInput(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.KeyVersion)

	assert.True(t, creds.VerifyCredentialFull(ctx, old.Credential, old.CertificateHash).Valid)
	assert.True(t, creds.VerifyCredentialFull(ctx, fresh.Credential, fresh.CertificateHash).Valid)
}

func TestIssueCredential_SignerFailure(t *testing.T) {
	clock := newFakeClock()
	signer := &mocks.MockSigningService{}
	signer.On("CreateDataIntegrityProof", mock.Anything, mock.Anything).Return(nil, stderrors.New("vault sealed"))
	creds, _ := newCredentials(signer, clock, &revokedIndices{})

	_, err := creds.IssueCredential(context.Background(), credentialInput(), 1)
	require.Error(t, err)
	cerr, ok := errors.AsCertError(err)
	require.True(t, ok)
	assert.Equal(t, 500, cerr.HTTPStatus())
	signer.AssertExpectations(t)
}

func TestCertificateNumberAndVerificationCode(t *testing.T) {
	number, err := service.GenerateCertificateNumber(2026, true)
	require.NoError(t, err)
	assert.Regexp(t, `^DHIS2-2026-P-[0-9a-f]{8}$`, number)

	number, err = service.GenerateCertificateNumber(2026, false)
	require.NoError(t, err)
	assert.Regexp(t, `^DHIS2-2026-F-[0-9a-f]{8}$`, number)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := service.GenerateVerificationCode()
		require.NoError(t, err)
		assert.True(t, service.ValidateVerificationCode(code), code)
		assert.False(t, seen[code])
		seen[code] = true
	}
	assert.False(t, service.ValidateVerificationCode("ABCDEFGHIJ"))
	assert.False(t, service.ValidateVerificationCode("ABCDEFGHIJ+"))
}

// The recorded key version is the one named in the proof, even when the
// signer's current version has already moved on.
func TestIssueCredential_KeyVersionFollowsProof(t *testing.T) {
	clock := newFakeClock()
	signer := &mocks.MockSigningService{}
	signer.On("CreateDataIntegrityProof", mock.Anything, mock.Anything).Return(&models.DataIntegrityProof{
		Type:               "DataIntegrityProof",
		Cryptosuite:        "eddsa-jcs-2022",
		VerificationMethod: issuerDID + "#key-3",
		ProofPurpose:       "assertionMethod",
		ProofValue:         "zSig",
	}, nil)
	signer.On("KeyVersion").Return(4).Maybe()
	creds, _ := newCredentials(signer, clock, &revokedIndices{})

	issued, err := creds.IssueCredential(context.Background(), credentialInput(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, issued.KeyVersion)

	v, ok := service.KeyVersionOf(issuerDID, issuerDID+"#key-12")
	assert.True(t, ok)
	assert.Equal(t, 12, v)
	_, ok = service.KeyVersionOf(issuerDID, "did:web:other#key-1")
	assert.False(t, ok)
}

func TestIssueCredential_ForeignVerificationMethodRejected(t *testing.T) {
	clock := newFakeClock()
	signer := &mocks.MockSigningService{}
	signer.On("CreateDataIntegrityProof", mock.Anything, mock.Anything).Return(&models.DataIntegrityProof{
		Type:               "DataIntegrityProof",
		VerificationMethod: "did:web:elsewhere#key-1",
		ProofValue:         "zSig",
	}, nil)
	creds, _ := newCredentials(signer, clock, &revokedIndices{})

	_, err := creds.IssueCredential(context.Background(), credentialInput(), 1)
	require.Error(t, err)
	cerr, ok := errors.AsCertError(err)
	require.True(t, ok)
	assert.Equal(t, 500, cerr.HTTPStatus())
}
