// Package postgres provides the relational store of certguard on gorm.
// It manages the connection lifecycle, schema migration and the user, submission and
// certificate repositories. Production runs on PostgreSQL (pgx driver); tests use sqlite.
package postgres

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/models"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

const connectTimeout = 10 * time.Second

// DBConnection manages the gorm handle and the underlying connection pool.
type DBConnection struct {
	db     *gorm.DB
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection opens a PostgreSQL connection pool and performs an initial health check.
// When cfg.AutoMigrate is set the schema is migrated before returning.
//
// Parameters:
//   - ctx: Context for connection timeout control
//   - cfg: Database configuration including host, port, credentials, and pool settings
//   - log: Logger instance for connection lifecycle events
//
// Returns:
//   - *DBConnection: Initialized connection manager
//   - error: Connection establishment error if any
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrValidation("database configuration is required", nil)
	}

	log.Info(ctx, "Initializing PostgreSQL connection pool",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_open_conns", cfg.MaxOpenConns),
	)

	conn, err := Open(ctx, postgres.Open(cfg.GetDSN()), cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := conn.Migrate(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// Open wraps any gorm dialector. Tests pass sqlite.Open("file::memory:?cache=shared").
//
// Parameters:
//   - ctx: Context for the initial ping
//   - dialector: gorm dialector of the target database
//   - cfg: Pool settings; may be nil for defaults
//   - log: Logger instance
//
// Returns:
//   - *DBConnection: Initialized connection manager
//   - error: Connection establishment error if any
func Open(ctx context.Context, dialector gorm.Dialector, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		log.Error(ctx, "Failed to open database", err)
		return nil, errors.ErrServiceUnavailable("database").WithCause(err)
	}
	if cfg == nil {
		cfg = &config.DatabaseConfig{}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to access connection pool")
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	conn := &DBConnection{db: db, config: cfg, logger: log.WithComponent("postgres")}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return conn, nil
}

// DB returns the gorm handle bound to ctx.
func (c *DBConnection) DB(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx)
}

// Migrate creates or updates the tables and seeds the status list counter.
func (c *DBConnection) Migrate(ctx context.Context) error {
	err := c.DB(ctx).AutoMigrate(
		&models.User{},
		&models.Submission{},
		&models.Certificate{},
		&models.AuditEvent{},
		&statusListCounter{},
	)
	if err != nil {
		c.logger.Error(ctx, "Schema migration failed", err)
		return errors.WrapError(err, constants.ErrCodeInternal, "schema migration failed")
	}
	if err := seedCounter(c.DB(ctx)); err != nil {
		return errors.WrapError(err, constants.ErrCodeInternal, "failed to seed status list counter")
	}
	c.logger.Info(ctx, "Schema migrated")
	return nil
}

// Ping verifies database connectivity with SELECT 1.
//
// Parameters:
//   - ctx: Context for timeout control (recommended: 5-10 seconds)
//
// Returns:
//   - error: ServiceUnavailable if the database is unreachable or unresponsive
func (c *DBConnection) Ping(ctx context.Context) error {
	startTime := time.Now()
	var one int
	if err := c.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.logger.Error(ctx, "Database ping failed", err)
		return errors.ErrServiceUnavailable("database").WithCause(err)
	}

	latency := time.Since(startTime)
	if latency > 100*time.Millisecond {
		c.logger.Warn(ctx, "High database latency detected",
			logger.Int64("latency_ms", latency.Milliseconds()),
			logger.Int("threshold_ms", 100),
		)
	}
	return nil
}

// HealthCheck pings the database and reports connection pool statistics.
//
// Returns:
//   - map[string]interface{}: Health metrics including pool statistics
//   - error: Health check error if any
func (c *DBConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to access connection pool")
	}
	stats := sqlDB.Stats()
	info := map[string]interface{}{
		"status":           "healthy",
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": stats.WaitDuration.Milliseconds(),
	}
	if c.config.MaxOpenConns > 0 && stats.InUse >= c.config.MaxOpenConns {
		info["warning"] = "connection_pool_near_limit"
	}
	return info, nil
}

// Close shuts down the connection pool. Call it during application shutdown.
func (c *DBConnection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	c.logger.Info(context.Background(), "Closing database connection pool")
	return sqlDB.Close()
}

//Personal.AI order the ending
