package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/turtacn/certguard/internal/bootstrap"
	"github.com/turtacn/certguard/internal/config"
	domainService "github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/internal/infrastructure/audit"
	"github.com/turtacn/certguard/internal/infrastructure/cdn"
	"github.com/turtacn/certguard/internal/infrastructure/monitoring"
	"github.com/turtacn/certguard/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/certguard/pkg/logger"
)

var configFile string

// rootCmd represents the base command when the `certadmin` binary is called without any subcommands.
// rootCmd 代表在没有任何子命令的情况下调用 `certadmin` 二进制文件时的基本命令。
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "certadmin",
		Short: "Administer the certguard signing keys",
		Long: `certadmin performs offline administrative tasks on a certguard deployment,
such as inspecting and rotating the credential signing key.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to the configuration file")
	cmd.AddCommand(newKeyCmd())
	return cmd
}

// Execute parses the command line and runs the selected command. On error it prints the error and exits.
// Execute 解析命令行并执行相应的命令。如果发生错误，它会打印错误并退出。
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// environment is what a key command needs. Close releases it.
type environment struct {
	cfg     *config.Config
	log     logger.Logger
	signing *bootstrap.Signing
	closers []func() error
}

func (e *environment) Close() {
	e.signing.Close()
	e.closeAll()
}

// openEnvironment loads the config and opens the signing backend. The database is only opened
// when the audit sink writes to it, so rotations are recorded where the server records them.
func openEnvironment(ctx context.Context) (*environment, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := monitoring.NewZapLogger(cfg.Log).WithComponent("certadmin")
	env := &environment{cfg: cfg, log: log}

	var db *gorm.DB
	if cfg.Audit.Sink == audit.SinkDatabase {
		conn, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		env.closers = append(env.closers, conn.Close)
		db = conn.DB(ctx)
	}
	sink, closeSink, err := audit.NewAuditService(cfg.Audit, cfg.Kafka, db, log)
	if err != nil {
		env.closeAll()
		return nil, fmt.Errorf("init audit: %w", err)
	}
	env.closers = append(env.closers, closeSink)

	env.signing, err = bootstrap.OpenSigning(ctx, cfg, sink, domainService.NewNoopMetrics(), log)
	if err != nil {
		env.closeAll()
		return nil, fmt.Errorf("open signing backend: %w", err)
	}
	purger, err := cdn.NewCachePurger(ctx, cfg.CDN, log)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("init cdn purger: %w", err)
	}
	env.signing.Keys.WithCachePurger(purger)
	return env, nil
}

func (e *environment) closeAll() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
