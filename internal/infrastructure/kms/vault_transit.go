// Package kms talks to HashiCorp Vault: AppRole login with token renewal, the transit engine for
// Ed25519 signing, and KVv2 secret reads.
package kms

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

const defaultRequestTimeout = 5 * time.Second

// VaultTransitClient signs with a transit key and manages its versions.
// VaultTransitClient 通过 transit 引擎签名并管理密钥版本。
type VaultTransitClient struct {
	client  *vault.Client
	cfg     config.VaultConfig
	log     logger.Logger
	metrics service.Metrics

	mu      sync.Mutex
	stop    context.CancelFunc
	renewWG sync.WaitGroup
}

// NewVaultTransitClient builds the client. Call Login before use unless a static token is configured.
func NewVaultTransitClient(cfg config.VaultConfig, log logger.Logger, metrics service.Metrics) (*VaultTransitClient, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	vc.Timeout = cfg.RequestTimeout
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if metrics == nil {
		metrics = service.NewNoopMetrics()
	}
	return &VaultTransitClient{
		client:  client,
		cfg:     cfg,
		log:     log.WithComponent("VaultTransitClient"),
		metrics: metrics,
	}, nil
}

// Client exposes the underlying API client.
func (c *VaultTransitClient) Client() *vault.Client { return c.client }

func (c *VaultTransitClient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	start := time.Now()
	err := fn(ctx)
	c.metrics.RecordVaultAPI(op, time.Since(start), err)
	return err
}

// Login authenticates with AppRole and keeps the token renewed until Close. With a static token
// configured it does nothing.
func (c *VaultTransitClient) Login(ctx context.Context) error {
	if c.cfg.Token != "" {
		return nil
	}
	var secret *vault.Secret
	err := c.call(ctx, "approle_login", func(ctx context.Context) error {
		var err error
		secret, err = c.client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   c.cfg.RoleID,
			"secret_id": c.cfg.SecretID,
		})
		return err
	})
	if err != nil {
		return errors.ErrServiceUnavailable("vault").WithCause(err)
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return errors.ErrServiceUnavailable("vault").WithCause(fmt.Errorf("approle login returned no token"))
	}
	c.client.SetToken(secret.Auth.ClientToken)
	c.log.Info(ctx, "authenticated to vault with approle",
		logger.Duration("lease", time.Duration(secret.Auth.LeaseDuration)*time.Second),
		logger.Bool("renewable", secret.Auth.Renewable))

	if secret.Auth.Renewable {
		return c.startRenewal(secret)
	}
	return nil
}

func (c *VaultTransitClient) startRenewal(secret *vault.Secret) error {
	watcher, err := c.client.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: secret})
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.stop = cancel
	c.mu.Unlock()

	c.renewWG.Add(1)
	go func() {
		defer c.renewWG.Done()
		go watcher.Start()
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-watcher.DoneCh():
				if err != nil {
					c.log.Error(ctx, "vault token renewal stopped", err)
				}
				// Lease can no longer be renewed: log in again.
				if err := c.Login(ctx); err != nil {
					c.log.Error(ctx, "vault re-login failed", err)
				}
				return
			case renewal := <-watcher.RenewCh():
				c.log.Debug(ctx, "vault token renewed", logger.Time("at", renewal.RenewedAt))
			}
		}
	}()
	return nil
}

func (c *VaultTransitClient) transitPath(parts ...string) string {
	return path.Join(append([]string{c.cfg.TransitMount}, parts...)...)
}

// Sign signs data with an explicit key version and returns the raw Ed25519 signature.
func (c *VaultTransitClient) Sign(ctx context.Context, version int, data []byte) ([]byte, error) {
	var secret *vault.Secret
	err := c.call(ctx, "transit_sign", func(ctx context.Context) error {
		var err error
		secret, err = c.client.Logical().WriteWithContext(ctx, c.transitPath("sign", c.cfg.TransitKey), map[string]interface{}{
			"input":       base64.StdEncoding.EncodeToString(data),
			"key_version": version,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("transit sign returned no data")
	}
	raw, _ := secret.Data["signature"].(string)
	return ParseTransitSignature(raw)
}

// ParseTransitSignature decodes "vault:v{N}:{base64}".
func ParseTransitSignature(s string) ([]byte, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "vault" || !strings.HasPrefix(parts[1], "v") {
		return nil, fmt.Errorf("malformed transit signature")
	}
	return base64.StdEncoding.DecodeString(parts[2])
}

// PublicKeys returns every version of the transit key and the latest version.
func (c *VaultTransitClient) PublicKeys(ctx context.Context) (map[int]ed25519.PublicKey, int, error) {
	var secret *vault.Secret
	err := c.call(ctx, "transit_read_key", func(ctx context.Context) error {
		var err error
		secret, err = c.client.Logical().ReadWithContext(ctx, c.transitPath("keys", c.cfg.TransitKey))
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	if secret == nil || secret.Data == nil {
		return nil, 0, fmt.Errorf("transit key %q not found", c.cfg.TransitKey)
	}
	return parseTransitKeys(secret.Data)
}

// KeyMetadata returns the version history of the transit key. Vault never archives versions; every
// version below latest is reported archived so rotation health reads the same as for local keys.
func (c *VaultTransitClient) KeyMetadata(ctx context.Context) (*models.KeyMetadata, error) {
	var secret *vault.Secret
	err := c.call(ctx, "transit_read_key", func(ctx context.Context) error {
		var err error
		secret, err = c.client.Logical().ReadWithContext(ctx, c.transitPath("keys", c.cfg.TransitKey))
		return err
	})
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("transit key %q not found", c.cfg.TransitKey)
	}
	return parseTransitMetadata(secret.Data)
}

func parseTransitMetadata(data map[string]interface{}) (*models.KeyMetadata, error) {
	latest, err := toInt(data["latest_version"])
	if err != nil {
		return nil, fmt.Errorf("transit key has no latest_version: %w", err)
	}
	versions, _ := data["keys"].(map[string]interface{})
	meta := &models.KeyMetadata{ActiveVersion: latest, Algorithm: "Ed25519"}
	for v, raw := range versions {
		version, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		kv := models.KeyVersion{Version: version, Archived: version != latest}
		if entry, ok := raw.(map[string]interface{}); ok {
			if created, ok := entry["creation_time"].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
					kv.CreatedAt = t.UTC()
				}
			}
		}
		meta.Versions = append(meta.Versions, kv)
	}
	sort.Slice(meta.Versions, func(i, j int) bool { return meta.Versions[i].Version < meta.Versions[j].Version })
	return meta, nil
}

func parseTransitKeys(data map[string]interface{}) (map[int]ed25519.PublicKey, int, error) {
	latest, err := toInt(data["latest_version"])
	if err != nil {
		return nil, 0, fmt.Errorf("transit key has no latest_version: %w", err)
	}
	versions, ok := data["keys"].(map[string]interface{})
	if !ok {
		return nil, 0, fmt.Errorf("transit key has no keys")
	}
	keys := make(map[int]ed25519.PublicKey, len(versions))
	for v, raw := range versions {
		version, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		encoded, _ := entry["public_key"].(string)
		pub, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return nil, 0, fmt.Errorf("transit key version %d is not ed25519", version)
		}
		keys[version] = ed25519.PublicKey(pub)
	}
	return keys, latest, nil
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

// Rotate creates a new version of the transit key and returns the new latest version.
func (c *VaultTransitClient) Rotate(ctx context.Context) (int, error) {
	err := c.call(ctx, "transit_rotate", func(ctx context.Context) error {
		_, err := c.client.Logical().WriteWithContext(ctx, c.transitPath("keys", c.cfg.TransitKey, "rotate"), nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	_, latest, err := c.PublicKeys(ctx)
	return latest, err
}

// GetSecret reads a KVv2 secret from the configured mount.
func (c *VaultTransitClient) GetSecret(ctx context.Context, secretPath string) (map[string]interface{}, error) {
	var secret *vault.KVSecret
	err := c.call(ctx, "kv_get", func(ctx context.Context) error {
		var err error
		secret, err = c.client.KVv2(c.cfg.KVMount).Get(ctx, secretPath)
		return err
	})
	if err != nil {
		if stderrors.Is(err, vault.ErrSecretNotFound) {
			return nil, errors.ErrNotFound("vault secret", secretPath)
		}
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, errors.ErrNotFound("vault secret", secretPath)
	}
	return secret.Data, nil
}

// Health reports whether vault is initialized and unsealed.
func (c *VaultTransitClient) Health(ctx context.Context) error {
	var health *vault.HealthResponse
	err := c.call(ctx, "health", func(ctx context.Context) error {
		var err error
		health, err = c.client.Sys().HealthWithContext(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if !health.Initialized || health.Sealed {
		return fmt.Errorf("vault is not ready (initialized=%t sealed=%t)", health.Initialized, health.Sealed)
	}
	return nil
}

// Close stops token renewal.
func (c *VaultTransitClient) Close() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
	c.renewWG.Wait()
}
