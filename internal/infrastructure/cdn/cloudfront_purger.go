// Package cdn purges the public documents of the service from the CDN in front of it.
package cdn

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"

	"github.com/turtacn/certguard/internal/domain/service"
	"github.com/turtacn/certguard/pkg/logger"
)

// CloudFrontClient is the part of the CloudFront client used for invalidations.
// CloudFrontClient 定义了 AWS CloudFront 客户端的 CreateInvalidation 方法的接口，便于在测试中模拟。
type CloudFrontClient interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

// CloudFrontPurger invalidates paths of one CloudFront distribution.
type CloudFrontPurger struct {
	client         CloudFrontClient
	distributionID string
	pathPrefix     string
	logger         logger.Logger
}

var _ service.CachePurger = (*CloudFrontPurger)(nil)

// NewCloudFrontPurger loads the AWS credentials from the default chain.
func NewCloudFrontPurger(ctx context.Context, distributionID, pathPrefix string, log logger.Logger) (*CloudFrontPurger, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewCloudFrontPurgerWithClient(cloudfront.NewFromConfig(cfg), distributionID, pathPrefix, log), nil
}

// NewCloudFrontPurgerWithClient uses client as is.
func NewCloudFrontPurgerWithClient(client CloudFrontClient, distributionID, pathPrefix string, log logger.Logger) *CloudFrontPurger {
	return &CloudFrontPurger{
		client:         client,
		distributionID: distributionID,
		pathPrefix:     pathPrefix,
		logger:         log.WithComponent("CloudFrontPurger"),
	}
}

// PurgePaths sends one invalidation batch for paths. Each call gets a fresh caller reference.
func (p *CloudFrontPurger) PurgePaths(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	items := make([]string, len(paths))
	for i, path := range paths {
		items[i] = p.pathPrefix + path
	}
	callerReference := uuid.NewString()
	quantity := int32(len(items))

	out, err := p.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: &p.distributionID,
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: &callerReference,
			Paths: &types.Paths{
				Quantity: &quantity,
				Items:    items,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create cloudfront invalidation for %v: %w", items, err)
	}

	fields := []logger.Field{logger.Any("paths", items)}
	if out != nil && out.Invalidation != nil && out.Invalidation.Id != nil {
		fields = append(fields, logger.String("invalidation_id", *out.Invalidation.Id))
	}
	p.logger.Info(ctx, "CloudFront invalidation created", fields...)
	return nil
}
