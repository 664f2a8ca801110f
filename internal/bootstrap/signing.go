// Package bootstrap builds the components shared by the server and the admin CLI.
package bootstrap

import (
	"context"
	"fmt"

	appservice "github.com/turtacn/certguard/internal/application/service"
	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/models"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
	"github.com/turtacn/certguard/internal/infrastructure/kms"
	"github.com/turtacn/certguard/pkg/logger"
)

// Signing is the configured signing backend together with its administration service.
type Signing struct {
	Signer *crypto.Signer
	Keys   *appservice.KeyManagementService
	// Vault is nil when the local key store is used.
	Vault *kms.VaultTransitClient
}

// Ping reports whether the backend is reachable. The local store is always reachable.
func (s *Signing) Ping(ctx context.Context) error {
	if s.Vault == nil {
		return nil
	}
	return s.Vault.Health(ctx)
}

// Close stops the vault token renewal, if any.
func (s *Signing) Close() {
	if s.Vault != nil {
		s.Vault.Close()
	}
}

// OpenSigning opens the vault transit backend when enabled, the local key store otherwise.
func OpenSigning(ctx context.Context, cfg *config.Config, audit domainService.AuditService, metrics domainService.Metrics, log logger.Logger) (*Signing, error) {
	opts := crypto.SignerOptions{
		IssuerDID:     cfg.Issuer.DID,
		Canonicalizer: crypto.NewJCSCanonicalizer(),
		Metrics:       metrics,
		Logger:        log,
	}
	policy := models.RotationPolicy{MaxAgeDays: cfg.Signing.MaxAgeDays, WarningThresholdDays: cfg.Signing.WarningThresholdDays}

	var (
		s         = &Signing{}
		lifecycle domainService.KeyLifecycle
		err       error
	)
	if cfg.Vault.Enabled {
		s.Vault, err = kms.NewVaultTransitClient(cfg.Vault, log, metrics)
		if err != nil {
			return nil, err
		}
		if err := s.Vault.Login(ctx); err != nil {
			return nil, fmt.Errorf("vault login: %w", err)
		}
		backend := crypto.NewVaultKeyBackend(s.Vault, cfg.Vault.PublicKeyCacheTTL)
		if s.Signer, err = crypto.NewVaultSigner(ctx, backend, opts); err != nil {
			s.Close()
			return nil, err
		}
		lifecycle = crypto.NewVaultKeyLifecycle(s.Vault, backend)
	} else {
		store, err := crypto.OpenKeyStore(crypto.KeyStoreOptions{
			Dir:          cfg.Signing.KeyDir,
			Passphrase:   cfg.Signing.Passphrase,
			AutoGenerate: cfg.Signing.AutoGenerate,
		})
		if err != nil {
			return nil, err
		}
		if s.Signer, err = crypto.NewLocalSigner(ctx, store, opts); err != nil {
			return nil, err
		}
		lifecycle = crypto.NewLocalKeyLifecycle(store)
	}

	s.Keys = appservice.NewKeyManagementService(lifecycle, s.Signer, policy, audit, nil, log)
	log.Info(ctx, "Signing backend ready",
		logger.String("backend", s.Signer.Backend()), logger.Int("active_version", s.Signer.KeyVersion()))
	return s, nil
}
