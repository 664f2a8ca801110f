package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Vault      VaultConfig      `mapstructure:"vault"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Session    SessionConfig    `mapstructure:"session"`
	Lockout    LockoutConfig    `mapstructure:"lockout"`
	OTP        OTPConfig        `mapstructure:"otp"`
	Blacklist  BlacklistConfig  `mapstructure:"blacklist"`
	Signing    SigningConfig    `mapstructure:"signing"`
	Issuer     IssuerConfig     `mapstructure:"issuer"`
	StatusList StatusListConfig `mapstructure:"status_list"`
	CDN        CDNConfig        `mapstructure:"cdn"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Audit      AuditConfig      `mapstructure:"audit"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// IsProduction reports whether debug surfaces (pprof, gin debug mode) must stay off.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Mode         string        `mapstructure:"mode"` // standalone, cluster, sentinel
	Addresses    []string      `mapstructure:"addresses"`
	MasterName   string        `mapstructure:"master_name"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnableTLS    bool          `mapstructure:"enable_tls"`
}

// VaultConfig configures the optional transit signer. When Enabled is false the local key store is used.
type VaultConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Address           string        `mapstructure:"address"`
	Namespace         string        `mapstructure:"namespace"`
	RoleID            string        `mapstructure:"role_id"`
	SecretID          string        `mapstructure:"secret_id"`
	Token             string        `mapstructure:"token"` // dev only, skips AppRole login
	TransitMount      string        `mapstructure:"transit_mount"`
	TransitKey        string        `mapstructure:"transit_key"`
	KVMount           string        `mapstructure:"kv_mount"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	PublicKeyCacheTTL time.Duration `mapstructure:"public_key_cache_ttl"`
}

type JWTConfig struct {
	AccessSecret    string        `mapstructure:"access_secret"`
	RefreshSecret   string        `mapstructure:"refresh_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
}

type SessionConfig struct {
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	AbsoluteTimeout time.Duration `mapstructure:"absolute_timeout"`
}

type LockoutConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
	Duration    time.Duration `mapstructure:"duration"`
}

type OTPConfig struct {
	EncryptionKey   string        `mapstructure:"encryption_key"` // 64 hex chars
	Issuer          string        `mapstructure:"issuer"`
	MaxFailures     int           `mapstructure:"max_failures"`
	LockoutDuration time.Duration `mapstructure:"lockout_duration"`
}

type BlacklistConfig struct {
	FailureThreshold int                    `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration          `mapstructure:"recovery_timeout"`
	FallbackMode     constants.FallbackMode `mapstructure:"fallback_mode"`
	LocalMaxSize     int                    `mapstructure:"local_max_size"`
	SweepInterval    time.Duration          `mapstructure:"sweep_interval"`
}

type SigningConfig struct {
	KeyDir               string `mapstructure:"key_dir"`
	Passphrase           string `mapstructure:"passphrase"`
	AutoGenerate         bool   `mapstructure:"auto_generate"`
	MaxAgeDays           int    `mapstructure:"max_age_days"`
	WarningThresholdDays int    `mapstructure:"warning_threshold_days"`
}

type IssuerConfig struct {
	DID                string        `mapstructure:"did"`
	Name               string        `mapstructure:"name"`
	BaseURL            string        `mapstructure:"base_url"`
	CredentialValidity time.Duration `mapstructure:"credential_validity"`
}

type StatusListConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// CDNConfig names the edge cache in front of the public documents. Provider is none, log or cloudfront.
type CDNConfig struct {
	Provider       string `mapstructure:"provider"`
	DistributionID string `mapstructure:"distribution_id"`
	// PathPrefix is prepended to purged paths when the service is mounted below the CDN root.
	PathPrefix string `mapstructure:"path_prefix"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	AuditTopic   string        `mapstructure:"audit_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// AuditConfig selects the audit sink: kafka, database or log.
type AuditConfig struct {
	Sink       string `mapstructure:"sink"`
	HMACSecret string `mapstructure:"hmac_secret"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	fields := map[string]string{}

	if c.JWT.AccessSecret == "" {
		fields["jwt.access_secret"] = "is required"
	}
	if c.JWT.RefreshSecret == "" {
		fields["jwt.refresh_secret"] = "is required"
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		fields["jwt.refresh_secret"] = "must differ from jwt.access_secret"
	}
	if c.Session.IdleTimeout <= 0 || c.Session.AbsoluteTimeout <= 0 {
		fields["session"] = "timeouts must be positive"
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteTimeout {
		fields["session.idle_timeout"] = "must not exceed session.absolute_timeout"
	}
	if key, err := hex.DecodeString(c.OTP.EncryptionKey); err != nil || len(key) != 32 {
		fields["otp.encryption_key"] = "must be 64 hex characters"
	}
	switch c.Blacklist.FallbackMode {
	case constants.FallbackFailClosed, constants.FallbackFailOpen:
	default:
		fields["blacklist.fallback_mode"] = "must be FAIL_CLOSED or FAIL_OPEN"
	}
	if c.Issuer.DID == "" {
		fields["issuer.did"] = "is required"
	}
	if c.Issuer.BaseURL == "" {
		fields["issuer.base_url"] = "is required"
	}
	if c.Vault.Enabled {
		if c.Vault.Address == "" {
			fields["vault.address"] = "is required when vault is enabled"
		}
		if c.Vault.Token == "" && (c.Vault.RoleID == "" || c.Vault.SecretID == "") {
			fields["vault.role_id"] = "role_id and secret_id are required when no token is set"
		}
	} else if c.Signing.KeyDir == "" {
		fields["signing.key_dir"] = "is required when vault is disabled"
	}
	if c.Signing.WarningThresholdDays >= c.Signing.MaxAgeDays {
		fields["signing.warning_threshold_days"] = "must be less than signing.max_age_days"
	}

	if len(fields) > 0 {
		return errors.ErrValidation("invalid configuration", fields)
	}
	return nil
}

//Personal.AI order the ending
