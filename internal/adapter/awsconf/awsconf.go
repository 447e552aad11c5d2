package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/V4T54L/audit-trail/internal/pkg/config"
)

// Load builds the shared aws.Config. Static credentials are used when both
// keys are set; otherwise the default provider chain applies.
func Load(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// Endpoint returns the custom endpoint (LocalStack, ElasticMQ, MinIO) or nil.
func Endpoint(cfg config.AWSConfig) *string {
	if cfg.EndpointURL == "" {
		return nil
	}
	return aws.String(cfg.EndpointURL)
}
