// Package redis provides Redis connection management and the KVStore implementation
// backing sessions, refresh tokens, the token blacklist, lockout counters and the status list cache.
// It supports standalone, cluster, and sentinel deployment modes with connection pooling.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/pkg/logger"
)

// ConnectionMode defines Redis deployment mode
type ConnectionMode string

const (
	// ModeStandalone represents single Redis instance
	ModeStandalone ConnectionMode = "standalone"
	// ModeCluster represents Redis cluster mode
	ModeCluster ConnectionMode = "cluster"
	// ModeSentinel represents Redis sentinel mode for high availability
	ModeSentinel ConnectionMode = "sentinel"
)

// RedisConnection manages the Redis client lifecycle.
type RedisConnection struct {
	cfg    config.RedisConfig
	client redis.UniversalClient
	logger logger.Logger
}

// NewRedisConnection creates a new Redis connection manager instance.
func NewRedisConnection(cfg config.RedisConfig, log logger.Logger) *RedisConnection {
	return &RedisConnection{cfg: cfg, logger: log.WithComponent("RedisConnection")}
}

// Connect establishes Redis connection based on configured mode and verifies it with a ping.
func (rc *RedisConnection) Connect(ctx context.Context) error {
	if rc.client != nil {
		rc.logger.Warn(ctx, "Redis connection already initialized")
		return nil
	}

	var client redis.UniversalClient
	switch ConnectionMode(rc.cfg.Mode) {
	case ModeStandalone, "":
		client = rc.connectStandalone()
	case ModeCluster:
		if len(rc.cfg.Addresses) == 0 {
			return fmt.Errorf("cluster addresses not configured")
		}
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        rc.cfg.Addresses,
			Password:     rc.cfg.Password,
			PoolSize:     rc.cfg.PoolSize,
			MinIdleConns: rc.cfg.MinIdleConns,
			DialTimeout:  rc.cfg.DialTimeout,
			ReadTimeout:  rc.cfg.ReadTimeout,
			WriteTimeout: rc.cfg.WriteTimeout,
			TLSConfig:    rc.tlsConfig(),
		})
	case ModeSentinel:
		if rc.cfg.MasterName == "" {
			return fmt.Errorf("sentinel master name not configured")
		}
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    rc.cfg.MasterName,
			SentinelAddrs: rc.cfg.Addresses,
			Password:      rc.cfg.Password,
			DB:            rc.cfg.DB,
			PoolSize:      rc.cfg.PoolSize,
			MinIdleConns:  rc.cfg.MinIdleConns,
			DialTimeout:   rc.cfg.DialTimeout,
			ReadTimeout:   rc.cfg.ReadTimeout,
			WriteTimeout:  rc.cfg.WriteTimeout,
			TLSConfig:     rc.tlsConfig(),
		})
	default:
		return fmt.Errorf("unsupported Redis mode: %s", rc.cfg.Mode)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err, logger.String("mode", rc.cfg.Mode))
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	rc.client = client
	rc.logger.Info(ctx, "Redis connection established successfully",
		logger.String("mode", rc.cfg.Mode),
		logger.Int("pool_size", rc.cfg.PoolSize),
	)
	return nil
}

func (rc *RedisConnection) connectStandalone() redis.UniversalClient {
	addr := "localhost:6379"
	if len(rc.cfg.Addresses) > 0 {
		addr = rc.cfg.Addresses[0]
	}
	rc.logger.Info(context.Background(), "Connecting to Redis standalone",
		logger.String("addr", addr),
		logger.Int("db", rc.cfg.DB),
	)
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     rc.cfg.Password,
		DB:           rc.cfg.DB,
		PoolSize:     rc.cfg.PoolSize,
		MinIdleConns: rc.cfg.MinIdleConns,
		DialTimeout:  rc.cfg.DialTimeout,
		ReadTimeout:  rc.cfg.ReadTimeout,
		WriteTimeout: rc.cfg.WriteTimeout,
		TLSConfig:    rc.tlsConfig(),
	})
}

func (rc *RedisConnection) tlsConfig() *tls.Config {
	if !rc.cfg.EnableTLS {
		return nil
	}
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

// Client returns the underlying client. It is nil before Connect.
func (rc *RedisConnection) Client() redis.UniversalClient {
	return rc.client
}

// Ping checks connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if rc.client == nil {
		return fmt.Errorf("redis client not initialized")
	}
	return rc.client.Ping(ctx).Err()
}

// Close closes the client.
func (rc *RedisConnection) Close() error {
	if rc.client == nil {
		return nil
	}
	err := rc.client.Close()
	rc.client = nil
	if err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	rc.logger.Info(context.Background(), "Redis connection closed")
	return nil
}
