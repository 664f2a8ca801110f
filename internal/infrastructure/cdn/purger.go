package cdn

import (
	"context"

	"github.com/turtacn/certguard/internal/config"
	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/errors"
	"github.com/turtacn/certguard/pkg/logger"
)

// Providers accepted in cdn.provider.
const (
	ProviderNone       = "none"
	ProviderLog        = "log"
	ProviderCloudFront = "cloudfront"
)

// LogPurger only logs the paths it would purge. It suits deployments without a CDN that still want
// a trace of when public documents changed.
type LogPurger struct {
	logger logger.Logger
}

func NewLogPurger(log logger.Logger) *LogPurger {
	return &LogPurger{logger: log.WithComponent("LogPurger")}
}

func (p *LogPurger) PurgePaths(ctx context.Context, paths ...string) error {
	p.logger.Info(ctx, "CDN purge skipped", logger.Any("paths", paths))
	return nil
}

// NewCachePurger builds the configured purger. "none" yields nil, which callers treat as no CDN.
func NewCachePurger(ctx context.Context, cfg config.CDNConfig, log logger.Logger) (service.CachePurger, error) {
	switch cfg.Provider {
	case ProviderNone, "":
		return nil, nil
	case ProviderLog:
		return NewLogPurger(log), nil
	case ProviderCloudFront:
		if cfg.DistributionID == "" {
			return nil, errors.ErrValidation("cdn.distribution_id is required for cloudfront", nil)
		}
		purger, err := NewCloudFrontPurger(ctx, cfg.DistributionID, cfg.PathPrefix, log)
		if err != nil {
			return nil, err
		}
		return purger, nil
	default:
		return nil, errors.ErrValidation("unknown cdn provider", map[string]string{"cdn.provider": cfg.Provider})
	}
}
