package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/internal/infrastructure/crypto"
	"github.com/turtacn/certguard/pkg/constants"
)

func newKeyCmd() *cobra.Command {
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the credential signing key",
	}
	keyCmd.AddCommand(newKeyStatusCmd(), newKeyRotateCmd(), newKeyGenerateCmd(), newKeyPublicKeyCmd())
	return keyCmd
}

type keyStatus struct {
	Backend  string                `json:"backend"`
	Rotation models.RotationReport `json:"rotation"`
	Metadata *models.KeyMetadata   `json:"metadata,omitempty"`
}

func newKeyStatusCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active key version and its rotation health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			status := keyStatus{
				Backend:  env.signing.Keys.Backend(),
				Rotation: env.signing.Keys.RotationStatus(ctx),
			}
			if meta, err := env.signing.Keys.Metadata(ctx); err == nil {
				status.Metadata = meta
			}
			if err := printJSON(cmd.OutOrStdout(), status); err != nil {
				return err
			}
			if strict && status.Rotation.Status == constants.RotationCritical {
				return fmt.Errorf("signing key v%d is past its rotation deadline", status.Rotation.ActiveVersion)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when rotation is overdue")
	return cmd
}

func newKeyRotateCmd() *cobra.Command {
	var actor string
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Create a new key version and make it active",
		Long: `rotate creates version N+1 of the signing key. Older versions are archived
and keep verifying the credentials they signed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("rotation changes the key every new credential is signed with; pass --yes to proceed")
			}
			ctx := cmd.Context()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			kv, err := env.signing.Keys.Rotate(ctx, actor)
			if err != nil {
				return fmt.Errorf("rotate signing key: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), kv)
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "certadmin", "actor recorded in the audit log")
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm the rotation")
	return cmd
}

func newKeyGenerateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Initialize the local key store",
		Long: `generate creates version 1 of the signing key in the local key store.
An existing store is opened unchanged. Vault deployments manage keys in the transit engine instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Vault.Enabled {
				return fmt.Errorf("vault is enabled; create the key with the transit engine")
			}
			if dir == "" {
				dir = cfg.Signing.KeyDir
			}
			store, err := crypto.OpenKeyStore(crypto.KeyStoreOptions{
				Dir:          dir,
				Passphrase:   cfg.Signing.Passphrase,
				AutoGenerate: true,
			})
			if err != nil {
				return fmt.Errorf("open key store: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), store.Metadata())
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "key directory (defaults to signing.key_dir)")
	return cmd
}

func newKeyPublicKeyCmd() *cobra.Command {
	var didDocument bool
	cmd := &cobra.Command{
		Use:   "public-key",
		Short: "Print the active public key as multibase, or the issuer DID document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := openEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if didDocument {
				doc, err := env.signing.Keys.DIDDocument(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			}
			key, err := env.signing.Keys.PublicKeyMultibase(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().BoolVar(&didDocument, "did", false, "print the did:web document instead")
	return cmd
}

//Personal.AI order the ending
