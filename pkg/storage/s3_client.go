package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectStore stores a file and returns the path it can later be referenced by.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Uploader is the subset of manager.Uploader used by S3Store.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Options configures the receipts bucket.
type S3Options struct {
	Region    string
	Bucket    string
	KeyPrefix string
	// Endpoint overrides the S3 endpoint (minio, localstack). Path-style
	// addressing is used whenever it is set.
	Endpoint string
}

type S3Store struct {
	uploader Uploader
	bucket   string
	prefix   string
}

// NewS3Client builds an S3Store from the default AWS credential chain.
func NewS3Client(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(manager.NewUploader(client), opts.Bucket, opts.KeyPrefix), nil
}

func NewS3Store(uploader Uploader, bucket, prefix string) *S3Store {
	return &S3Store{
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// Put streams body to the bucket and returns an s3:// path.
func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	fullKey := strings.TrimPrefix(path.Join(s.prefix, key), "/")
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(fullKey),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload object %s: %w", fullKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, fullKey), nil
}
