package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
	"github.com/turtacn/certguard/pkg/utils"
)

const verificationCodeBytes = 8

// IssuerProfile identifies the certifying organization.
type IssuerProfile struct {
	DID     string
	Name    string
	BaseURL string
	// Validity is added to the issuance time to produce validUntil.
	Validity time.Duration
}

// CredentialInput is everything needed to build one certificate credential.
type CredentialInput struct {
	CertificateID      string
	CertificateNumber  string
	ImplementationID   string
	ImplementationName string
	ImplementationURL  string
	ControlGroup       models.ControlGroup
	FinalScore         float64
	CategoryScores     []models.CategoryScore
	IssuedAt           time.Time
}

type achievementInfo struct {
	name        string
	description string
	narrative   string
}

var achievements = map[models.ControlGroup]achievementInfo{
	models.ControlGroupL1: {
		name:        "DHIS2 Server Security Certification - Level 1",
		description: "Baseline security controls for DHIS2 server deployments.",
		narrative:   "The implementation passed an assessment of all Level 1 baseline security controls.",
	},
	models.ControlGroupL2: {
		name:        "DHIS2 Server Security Certification - Level 2",
		description: "Standard security controls for DHIS2 deployments handling sensitive health data.",
		narrative:   "The implementation passed an assessment of all Level 1 and Level 2 security controls.",
	},
	models.ControlGroupL3: {
		name:        "DHIS2 Server Security Certification - Level 3",
		description: "Advanced security controls for national-scale DHIS2 deployments.",
		narrative:   "The implementation passed an assessment of all Level 1, Level 2 and Level 3 security controls.",
	},
}

// CredentialService builds, signs and verifies certificate credentials. It does not care which
// signer backs it.
// CredentialService 负责构建、签名并验证证书凭证，与具体签名器无关。
type CredentialService struct {
	signer   SigningService
	canon    Canonicalizer
	issuer   IssuerProfile
	statuses *StatusListService
	log      logger.Logger
}

func NewCredentialService(signer SigningService, canon Canonicalizer, issuer IssuerProfile, statuses *StatusListService, log logger.Logger) *CredentialService {
	if issuer.Validity <= 0 {
		issuer.Validity = constants.CredentialValidityDefault
	}
	return &CredentialService{
		signer:   signer,
		canon:    canon,
		issuer:   issuer,
		statuses: statuses,
		log:      log.WithComponent("CredentialService"),
	}
}

// BuildCredential returns the unsigned credential document for in.
func (s *CredentialService) BuildCredential(in CredentialInput, statusListIndex int64) (*models.VerifiableCredential, error) {
	info, ok := achievements[in.ControlGroup]
	if !ok {
		return nil, errors.ErrValidation("unknown control group", map[string]string{"control_group": string(in.ControlGroup)})
	}
	issuedAt := in.IssuedAt.UTC().Truncate(time.Second)
	year := issuedAt.Year()

	results := make([]models.Result, 0, len(in.CategoryScores)+1)
	results = append(results, newResult("Overall Score", in.FinalScore))
	for _, c := range in.CategoryScores {
		results = append(results, newResult(c.Name, c.Score))
	}

	return &models.VerifiableCredential{
		Context: []string{constants.ContextW3CCredentialsV2, constants.ContextOpenBadgesV3},
		ID:      "urn:uuid:" + in.CertificateID,
		Type:    []string{"VerifiableCredential", "OpenBadgeCredential"},
		Name:    info.name,
		Issuer: models.Issuer{
			ID:   s.issuer.DID,
			Type: []string{"Profile"},
			Name: s.issuer.Name,
			URL:  s.issuer.BaseURL,
		},
		ValidFrom:  issuedAt.Format(time.RFC3339),
		ValidUntil: issuedAt.Add(s.issuer.Validity).Format(time.RFC3339),
		CredentialSubject: models.AchievementSubject{
			ID:   "urn:uuid:" + in.ImplementationID,
			Type: []string{"AchievementSubject"},
			Name: in.ImplementationName,
			Achievement: models.Achievement{
				ID:          fmt.Sprintf("%s/achievements/%s", s.issuer.BaseURL, in.ControlGroup),
				Type:        []string{"Achievement"},
				Name:        info.name,
				Description: info.description,
				Criteria:    models.Criteria{Narrative: info.narrative},
			},
			Result: results,
		},
		CredentialStatus: s.statuses.CreateStatusListEntry(statusListIndex, year),
	}, nil
}

func newResult(label string, score float64) models.Result {
	return models.Result{
		Type:              []string{"Result"},
		ResultDescription: label,
		Value:             fmt.Sprintf("%d%%", int(math.Round(score))),
	}
}

// IssueCredential builds and signs the credential for in.
// The certificate hash covers the signed document, proof included.
func (s *CredentialService) IssueCredential(ctx context.Context, in CredentialInput, statusListIndex int64) (*models.IssuedCredential, error) {
	vc, err := s.BuildCredential(in, statusListIndex)
	if err != nil {
		return nil, err
	}
	canonical, err := s.canon.Canonicalize(vc)
	if err != nil {
		return nil, errors.ErrSigningFailed("failed to canonicalize credential").WithCause(err)
	}
	proof, err := s.signer.CreateDataIntegrityProof(ctx, canonical)
	if err != nil {
		return nil, errors.ErrSigningFailed("failed to create data integrity proof").WithCause(err)
	}
	vc.Proof = proof
	keyVersion, ok := KeyVersionOf(s.issuer.DID, proof.VerificationMethod)
	if !ok {
		return nil, errors.ErrSigningFailed("proof verification method does not name an issuer key: " + proof.VerificationMethod)
	}

	hash, err := s.ComputeHash(vc)
	if err != nil {
		return nil, errors.ErrSigningFailed("failed to hash signed credential").WithCause(err)
	}
	s.log.Info(ctx, "credential issued",
		logger.String("credential_id", vc.ID),
		logger.Int64("status_list_index", statusListIndex),
		logger.Int("key_version", keyVersion))

	return &models.IssuedCredential{
		Credential:      vc,
		CertificateHash: hash,
		Signature:       proof.ProofValue,
		KeyVersion:      keyVersion,
	}, nil
}

// KeyVersionOf extracts N from "{did}#key-N".
func KeyVersionOf(did, method string) (int, bool) {
	prefix := did + "#key-"
	if !strings.HasPrefix(method, prefix) {
		return 0, false
	}
	v, err := strconv.Atoi(method[len(prefix):])
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// ComputeHash returns the sha256 hex of the canonical form of vc. Key order does not matter.
func (s *CredentialService) ComputeHash(vc *models.VerifiableCredential) (string, error) {
	canonical, err := s.canon.Canonicalize(vc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyCredentialFull checks integrity against expectedHash and the proof against the signing keys.
// Both have to pass. Reason names the first failed check.
func (s *CredentialService) VerifyCredentialFull(ctx context.Context, vc *models.VerifiableCredential, expectedHash string) models.VerificationResult {
	var res models.VerificationResult

	hash, err := s.ComputeHash(vc)
	if err != nil {
		res.Reason = "credential could not be canonicalized"
		return res
	}
	res.IntegrityValid = hash == expectedHash

	switch {
	case vc.Proof == nil:
		res.Reason = "credential has no proof"
	default:
		canonical, err := s.canon.Canonicalize(vc.Unsigned())
		if err != nil {
			res.Reason = "credential could not be canonicalized"
			break
		}
		ok, err := s.signer.VerifyDataIntegrityProof(ctx, canonical, vc.Proof)
		res.SignatureValid = ok && err == nil
		if err != nil {
			s.log.Warn(ctx, "proof verification failed", logger.String("credential_id", vc.ID), logger.Error(err))
		}
	}

	res.Valid = res.IntegrityValid && res.SignatureValid
	if res.Reason == "" {
		switch {
		case !res.IntegrityValid && !res.SignatureValid:
			res.Reason = "certificate hash mismatch and invalid signature"
		case !res.IntegrityValid:
			res.Reason = "certificate hash mismatch: credential was modified"
		case !res.SignatureValid:
			res.Reason = "invalid signature"
		}
	}
	return res
}

// GenerateCertificateNumber returns DHIS2-{year}-{P|F}-{8 hex}.
func GenerateCertificateNumber(year int, passed bool) (string, error) {
	suffix, err := utils.RandomHex(4)
	if err != nil {
		return "", err
	}
	outcome := "F"
	if passed {
		outcome = "P"
	}
	return "DHIS2-" + strconv.Itoa(year) + "-" + outcome + "-" + suffix, nil
}

// GenerateVerificationCode returns an opaque public lookup token: 8 random bytes, base64url.
func GenerateVerificationCode() (string, error) {
	return utils.RandomBase64URL(verificationCodeBytes)
}

// ValidateVerificationCode reports whether code has the shape GenerateVerificationCode produces.
func ValidateVerificationCode(code string) bool {
	if len(code) != base64.RawURLEncoding.EncodedLen(verificationCodeBytes) {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(code)
	return err == nil && len(b) == verificationCodeBytes
}
