package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. CERTGUARD_JWT_ACCESS_SECRET.
const EnvPrefix = "CERTGUARD"

// LoadConfig loads the configuration from file and environment variables.
// An empty configFile searches ./, ./configs and /etc/certguard for config.yaml.
func LoadConfig(configFile string) (*Config, error) {
	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// WatchConfig re-reads the config file on change and hands the new, validated config to onChange.
// Invalid edits are logged and ignored.
func WatchConfig(configFile string, log logger.Logger, onChange func(*Config)) error {
	v, err := newViper(configFile)
	if err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		cfg, err := unmarshal(v)
		if err != nil {
			log.Error(ctx, "ignoring invalid config change", err, logger.String("file", e.Name))
			return
		}
		log.Info(ctx, "config reloaded", logger.String("file", e.Name), logger.String("op", e.Op.String()))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/certguard/")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to read config file")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "failed to unmarshal config")
	}
	cfg.Blacklist.FallbackMode = constants.FallbackMode(strings.ToUpper(string(cfg.Blacklist.FallbackMode)))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "certguard")
	v.SetDefault("database.database", "certguard")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.transit_mount", "transit")
	v.SetDefault("vault.transit_key", "certguard-signing")
	v.SetDefault("vault.kv_mount", "secret")
	v.SetDefault("vault.request_timeout", "5s")
	v.SetDefault("vault.public_key_cache_ttl", "5m")

	v.SetDefault("jwt.access_token_ttl", constants.AccessTokenDefaultTTL)
	v.SetDefault("jwt.refresh_token_ttl", constants.RefreshTokenDefaultTTL)
	v.SetDefault("jwt.issuer", constants.ServiceName)
	v.SetDefault("jwt.audience", "certguard-api")

	v.SetDefault("session.idle_timeout", constants.SessionIdleTimeoutDefault)
	v.SetDefault("session.absolute_timeout", constants.SessionAbsoluteTimeoutDefault)

	v.SetDefault("lockout.max_attempts", constants.LockoutMaxAttemptsDefault)
	v.SetDefault("lockout.window", constants.LockoutWindowDefault)
	v.SetDefault("lockout.duration", constants.LockoutDurationDefault)

	v.SetDefault("otp.issuer", "DHIS2 Certification")
	v.SetDefault("otp.max_failures", constants.OTPMaxFailuresDefault)
	v.SetDefault("otp.lockout_duration", constants.OTPLockoutDefault)

	v.SetDefault("blacklist.failure_threshold", constants.BlacklistFailureThresholdDefault)
	v.SetDefault("blacklist.recovery_timeout", constants.BlacklistRecoveryTimeoutDefault)
	v.SetDefault("blacklist.fallback_mode", string(constants.FallbackFailClosed))
	v.SetDefault("blacklist.local_max_size", constants.BlacklistLocalMaxSizeDefault)
	v.SetDefault("blacklist.sweep_interval", constants.BlacklistSweepInterval)

	v.SetDefault("signing.key_dir", "./keys")
	v.SetDefault("signing.auto_generate", true)
	v.SetDefault("signing.max_age_days", constants.KeyMaxAgeDaysDefault)
	v.SetDefault("signing.warning_threshold_days", constants.KeyWarningThresholdDaysDefault)

	v.SetDefault("issuer.name", "DHIS2 Server Certification Program")
	v.SetDefault("issuer.credential_validity", constants.CredentialValidityDefault)

	v.SetDefault("status_list.cache_ttl", constants.StatusListCacheTTLDefault)

	v.SetDefault("cdn.provider", "none")
	v.SetDefault("cdn.distribution_id", "")
	v.SetDefault("cdn.path_prefix", "")

	v.SetDefault("kafka.audit_topic", "certguard-audit")
	v.SetDefault("kafka.write_timeout", "5s")
	v.SetDefault("kafka.read_timeout", "5s")
	v.SetDefault("kafka.required_acks", -1)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "100ms")

	v.SetDefault("audit.sink", "log")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 10)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.sample_rate", 0.1)

	// Keys without a default are invisible to AutomaticEnv, so secrets get an empty one.
	for _, key := range []string{
		"database.password", "redis.password", "redis.master_name",
		"vault.address", "vault.namespace", "vault.role_id", "vault.secret_id", "vault.token",
		"jwt.access_secret", "jwt.refresh_secret", "otp.encryption_key", "signing.passphrase",
		"issuer.did", "issuer.base_url", "audit.hmac_secret", "tracing.jaeger_endpoint",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("redis.enable_tls", false)
	v.SetDefault("kafka.brokers", []string{})
}
