package crypto

import (
	"context"
	"sort"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
)

// DIDDocument lists every known key version, archived ones included, so credentials signed
// before a rotation still resolve. Versions are ascending.
func (s *Signer) DIDDocument(ctx context.Context) (*models.DIDDocument, error) {
	keys, _, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	versions := make([]int, 0, len(keys))
	for v := range keys {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	doc := &models.DIDDocument{
		Context:            []string{constants.ContextDIDV1, constants.ContextMultikeyV1},
		ID:                 s.did,
		VerificationMethod: make([]models.VerificationMethod, 0, len(versions)),
		AssertionMethod:    make([]string, 0, len(versions)),
	}
	for _, v := range versions {
		id := s.verificationMethod(v)
		doc.VerificationMethod = append(doc.VerificationMethod, models.VerificationMethod{
			ID:                 id,
			Type:               constants.VerificationMethodMultikey,
			Controller:         s.did,
			PublicKeyMultibase: PublicKeyMultibase(keys[v]),
		})
		doc.AssertionMethod = append(doc.AssertionMethod, id)
	}
	return doc, nil
}
