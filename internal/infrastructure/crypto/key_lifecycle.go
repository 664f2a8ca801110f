package crypto

import (
	"context"
	"fmt"

	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
)

// LocalKeyLifecycle exposes the version history of a KeyStore.
type LocalKeyLifecycle struct {
	store *KeyStore
}

var _ service.KeyLifecycle = (*LocalKeyLifecycle)(nil)

func NewLocalKeyLifecycle(store *KeyStore) *LocalKeyLifecycle {
	return &LocalKeyLifecycle{store: store}
}

func (l *LocalKeyLifecycle) Backend() string { return l.store.Name() }

func (l *LocalKeyLifecycle) Metadata(context.Context) (*models.KeyMetadata, error) {
	meta := l.store.Metadata()
	return &meta, nil
}

func (l *LocalKeyLifecycle) Rotate(context.Context) (models.KeyVersion, error) {
	return l.store.Rotate()
}

// VaultKeyAdmin is the part of the vault transit client that manages key versions.
type VaultKeyAdmin interface {
	Rotate(ctx context.Context) (int, error)
	KeyMetadata(ctx context.Context) (*models.KeyMetadata, error)
}

// VaultKeyLifecycle rotates the transit key and drops the cached public keys of backend afterwards.
type VaultKeyLifecycle struct {
	admin   VaultKeyAdmin
	backend *VaultKeyBackend
}

var _ service.KeyLifecycle = (*VaultKeyLifecycle)(nil)

func NewVaultKeyLifecycle(admin VaultKeyAdmin, backend *VaultKeyBackend) *VaultKeyLifecycle {
	return &VaultKeyLifecycle{admin: admin, backend: backend}
}

func (v *VaultKeyLifecycle) Backend() string { return "vault" }

func (v *VaultKeyLifecycle) Metadata(ctx context.Context) (*models.KeyMetadata, error) {
	return v.admin.KeyMetadata(ctx)
}

func (v *VaultKeyLifecycle) Rotate(ctx context.Context) (models.KeyVersion, error) {
	latest, err := v.admin.Rotate(ctx)
	if err != nil {
		return models.KeyVersion{}, err
	}
	if v.backend != nil {
		v.backend.Invalidate()
	}
	meta, err := v.admin.KeyMetadata(ctx)
	if err != nil {
		return models.KeyVersion{Version: latest}, nil
	}
	for _, kv := range meta.Versions {
		if kv.Version == latest {
			return kv, nil
		}
	}
	return models.KeyVersion{}, fmt.Errorf("rotated transit key version %d is missing", latest)
}
