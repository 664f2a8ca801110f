package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/repository"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// StatusListService publishes the yearly revocation bitstring. The certificate store stays the
// source of truth; the bitstring is only a publication format.
type StatusListService struct {
	certs  repository.CertificateRepository
	signer SigningService
	canon  Canonicalizer
	issuer IssuerProfile
	now    Clock
	log    logger.Logger
}

func NewStatusListService(certs repository.CertificateRepository, signer SigningService, canon Canonicalizer, issuer IssuerProfile, now Clock, log logger.Logger) *StatusListService {
	return &StatusListService{
		certs:  certs,
		signer: signer,
		canon:  canon,
		issuer: issuer,
		now:    now.orDefault(),
		log:    log.WithComponent("StatusListService"),
	}
}

// StatusListURL is the public URL of the list credential for year.
func (s *StatusListService) StatusListURL(year int) string {
	return fmt.Sprintf("%s/status-list/%d", s.issuer.BaseURL, year)
}

// CreateStatusListEntry returns the credentialStatus for an index in year's list.
func (s *StatusListService) CreateStatusListEntry(index int64, year int) *models.StatusListEntry {
	listURL := s.StatusListURL(year)
	idx := strconv.FormatInt(index, 10)
	return &models.StatusListEntry{
		ID:                   listURL + "#" + idx,
		Type:                 "BitstringStatusListEntry",
		StatusPurpose:        constants.StatusPurposeRevocation,
		StatusListIndex:      idx,
		StatusListCredential: listURL,
	}
}

// IsIndexRevoked asks the certificate store, not the bitstring.
func (s *StatusListService) IsIndexRevoked(ctx context.Context, year int, index int64) (bool, error) {
	return s.certs.IsIndexRevoked(ctx, year, index)
}

// GenerateStatusList builds and signs the BitstringStatusListCredential of year from the revoked
// certificates of that year.
func (s *StatusListService) GenerateStatusList(ctx context.Context, year int) (*models.VerifiableCredential, error) {
	indices, err := s.certs.FindRevokedIndicesByYear(ctx, year)
	if err != nil {
		return nil, err
	}
	encoded, err := EncodeBitstring(BuildBitstring(indices))
	if err != nil {
		return nil, errors.ErrInternal("failed to encode status list").WithCause(err)
	}

	listURL := s.StatusListURL(year)
	vc := &models.VerifiableCredential{
		Context: []string{constants.ContextW3CCredentialsV2},
		ID:      listURL,
		Type:    []string{"VerifiableCredential", "BitstringStatusListCredential"},
		Issuer: models.Issuer{
			ID:   s.issuer.DID,
			Type: []string{"Profile"},
			Name: s.issuer.Name,
			URL:  s.issuer.BaseURL,
		},
		ValidFrom: s.now().UTC().Format(time.RFC3339),
		CredentialSubject: models.BitstringStatusListSubject{
			ID:            listURL + "#list",
			Type:          "BitstringStatusList",
			StatusPurpose: constants.StatusPurposeRevocation,
			EncodedList:   encoded,
		},
	}

	canonical, err := s.canon.Canonicalize(vc)
	if err != nil {
		return nil, errors.ErrSigningFailed("failed to canonicalize status list").WithCause(err)
	}
	proof, err := s.signer.CreateDataIntegrityProof(ctx, canonical)
	if err != nil {
		return nil, errors.ErrSigningFailed("failed to sign status list").WithCause(err)
	}
	vc.Proof = proof

	s.log.Debug(ctx, "status list generated", logger.Int("year", year), logger.Int("revoked", len(indices)))
	return vc, nil
}

// BuildBitstring packs indices MSB-first: index i is bit (7 - i%8) of byte i/8. The result is at
// least StatusListMinBits long. Indices outside [0, StatusListMaxEntries) are ignored.
func BuildBitstring(indices []int64) []byte {
	var maxIndex int64 = -1
	for _, i := range indices {
		if inStatusListRange(i) && i > maxIndex {
			maxIndex = i
		}
	}
	size := int((maxIndex + 8) / 8)
	if minSize := constants.StatusListMinBits / 8; size < minSize {
		size = minSize
	}

	bits := make([]byte, size)
	for _, i := range indices {
		if !inStatusListRange(i) {
			continue
		}
		bits[i/8] |= 1 << (7 - uint(i%8))
	}
	return bits
}

// IsBitSet reads index from a bitstring built by BuildBitstring.
func IsBitSet(bits []byte, index int64) bool {
	if index < 0 || index/8 >= int64(len(bits)) {
		return false
	}
	return bits[index/8]&(1<<(7-uint(index%8))) != 0
}

func inStatusListRange(i int64) bool {
	return i >= 0 && i < constants.StatusListMaxEntries
}

// EncodeBitstring gzips bits and returns standard base64.
func EncodeBitstring(bits []byte) (string, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(bits); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBitstring reverses EncodeBitstring.
func DecodeBitstring(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
