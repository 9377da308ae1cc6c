package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// clipCacheControl lets CDNs keep narration clips; a clip never changes once written
const clipCacheControl = "private, max-age=31536000, immutable"

// S3Storage keeps narration clips in an S3 bucket or an S3-compatible store
type S3Storage struct {
	client *s3.Client
	bucket string
}

// NewS3Storage builds the client from static keys when present, otherwise from
// the default AWS credential chain
func NewS3Storage(cfg StorageConfig) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			// MinIO, R2 and friends
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{client: client, bucket: cfg.S3Bucket}, nil
}

// Upload writes a clip under key
func (s *S3Storage) Upload(ctx context.Context, key string, contentType string, data io.Reader) (string, error) {
	if contentType == "" {
		contentType = contentTypeFor(key)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         data,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(clipCacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload clip %s: %w", key, err)
	}
	return key, nil
}

// Download opens a stored clip; a missing key maps to ErrObjectNotFound
func (s *S3Storage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storagePath),
	})
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, storagePath)
		}
		return nil, fmt.Errorf("failed to download clip %s: %w", storagePath, err)
	}
	return result.Body, nil
}

// Delete removes a clip; deleting a missing key is not an error
func (s *S3Storage) Delete(ctx context.Context, storagePath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storagePath),
	})
	if err != nil && !isMissing(err) {
		return fmt.Errorf("failed to delete clip %s: %w", storagePath, err)
	}
	return nil
}

func isMissing(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
