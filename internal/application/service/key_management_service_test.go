package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
	"github.com/turtacn/certguard/pkg/constants"
)

func (h *harness) keyService() *KeyManagementService {
	policy := models.RotationPolicy{MaxAgeDays: 90, WarningThresholdDays: 14}
	return NewKeyManagementService(crypto.NewLocalKeyLifecycle(h.keys), h.signer, policy, h.audit, h.clock.Now, h.log).
		WithCachePurger(h.purger)
}

func TestKeyManagement_RotationStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := h.keyService()
	assert.Equal(t, "local", svc.Backend())

	report := svc.RotationStatus(ctx)
	assert.Equal(t, constants.RotationHealthy, report.Status)
	assert.Equal(t, 1, report.ActiveVersion)
	assert.Equal(t, 90, report.DaysUntilCritical)

	h.clock.Advance(80 * 24 * time.Hour)
	assert.Equal(t, constants.RotationWarning, svc.RotationStatus(ctx).Status)

	h.clock.Advance(11 * 24 * time.Hour)
	assert.Equal(t, constants.RotationCritical, svc.RotationStatus(ctx).Status)

	_, err := svc.Rotate(ctx, "admin-1")
	require.NoError(t, err)
	report = svc.RotationStatus(ctx)
	assert.Equal(t, constants.RotationHealthy, report.Status)
	assert.Equal(t, 2, report.ActiveVersion)
}

func TestKeyManagement_RotateKeepsOldCertificatesVerifiable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	keys := h.keyService()
	certs := h.certificateService(t)

	before, err := certs.Issue(ctx, h.seedSubmission(t, models.SubmissionPassed, 90).ID)
	require.NoError(t, err)

	kv, err := keys.Rotate(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, kv.Version)

	events := h.audit.EventsOf(constants.AuditSigningKeyRotated)
	require.Len(t, events, 1)
	assert.Equal(t, "admin-1", events[0].Actor)
	assert.JSONEq(t, `{"backend":"local","previousVersion":1,"activeVersion":2}`, events[0].Details)
	assert.Equal(t, []string{constants.PathDIDDocument}, h.purger.Paths())

	after, err := certs.Issue(ctx, h.seedSubmission(t, models.SubmissionPassed, 90).ID)
	require.NoError(t, err)
	assert.Equal(t, 2, after.KeyVersion)
	assert.Equal(t, testDID+"#key-2", after.Credential.Proof.VerificationMethod)

	for _, id := range []string{before.ID, after.ID} {
		res, err := certs.Verify(ctx, id)
		require.NoError(t, err)
		assert.True(t, res.Verification.Valid, res.Verification.Reason)
	}

	doc, err := keys.DIDDocument(ctx)
	require.NoError(t, err)
	assert.Equal(t, testDID, doc.ID)
	require.Len(t, doc.VerificationMethod, 2)
	assert.Equal(t, []string{testDID + "#key-1", testDID + "#key-2"}, doc.AssertionMethod)

	active, err := keys.PublicKeyMultibase(ctx)
	require.NoError(t, err)
	assert.Equal(t, active, doc.VerificationMethod[1].PublicKeyMultibase)

	meta, err := keys.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.ActiveVersion)
	assert.Len(t, meta.Versions, 2)
}
