package audit

import (
	"gorm.io/gorm"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// Sink names accepted in audit.sink.
const (
	SinkKafka    = "kafka"
	SinkDatabase = "database"
	SinkLog      = "log"
)

// NewAuditService builds the configured sink behind the HMAC signer. The returned close func
// releases the Kafka writer and is a no-op for the other sinks.
func NewAuditService(cfg config.AuditConfig, kafkaCfg config.KafkaConfig, db *gorm.DB, log logger.Logger) (service.AuditService, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Sink {
	case SinkKafka:
		if len(kafkaCfg.Brokers) == 0 {
			return nil, noop, errors.ErrValidation("kafka.brokers is required for the kafka audit sink", nil)
		}
		producer := NewKafkaProducer(kafkaCfg, log)
		return NewSigningAuditService(producer, cfg.HMACSecret, log), producer.Close, nil
	case SinkDatabase:
		if db == nil {
			return nil, noop, errors.ErrValidation("database audit sink needs a database", nil)
		}
		return NewSigningAuditService(NewGormAuditService(db), cfg.HMACSecret, log), noop, nil
	case SinkLog, "":
		return NewSigningAuditService(NewLogAuditService(log), cfg.HMACSecret, log), noop, nil
	default:
		return nil, noop, errors.ErrValidation("unknown audit sink", map[string]string{"audit.sink": cfg.Sink})
	}
}
