package s3

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the subset of *s3.Client used by ArchiveStore.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewAPI builds an S3 client. A non-nil endpoint targets MinIO or LocalStack.
func NewAPI(awsCfg aws.Config, endpoint *string, usePathStyle bool) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
			o.UsePathStyle = usePathStyle
		}
	})
}

// ArchiveStore implements domain.BlobStore on a single bucket.
type ArchiveStore struct {
	api    PutObjectAPI
	bucket string
	logger *slog.Logger
}

func NewArchiveStore(api PutObjectAPI, bucket string, logger *slog.Logger) *ArchiveStore {
	return &ArchiveStore{
		api:    api,
		bucket: bucket,
		logger: logger.With("component", "archive_store", "bucket", bucket),
	}
}

// Put writes body under key, overwriting any existing object.
func (s *ArchiveStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Info("uploaded archive object", "key", key, "size", len(body))
	return nil
}
