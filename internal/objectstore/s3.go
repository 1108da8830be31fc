package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"postflow/internal/config"
	"postflow/internal/services"
)

const stageName = "storage"

// Uploader stores bytes under key and returns a permanent public URL.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads objects with the AWS SDK.
type S3 struct {
	client    putObjectAPI
	bucket    string
	prefix    string
	publicURL string
}

// NewS3 builds an S3 uploader from configuration. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg config.Storage) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "storage.bucket is not set", nil)
	}
	if cfg.PublicBaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "storage.public_base_url is not set", nil)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "load aws config", "", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

func newS3(client putObjectAPI, cfg config.Storage) *S3 {
	return &S3{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		publicURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

func (s *S3) fullKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Put uploads body and returns its public URL.
func (s *S3) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "put", "key is required", nil)
	}
	fullKey := s.fullKey(key)
	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(fullKey),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", services.Wrap(services.ErrTimeout, stageName, "put", fullKey, err)
		}
		return "", services.Wrap(services.ErrTransient, stageName, "put", fullKey, err)
	}
	return fmt.Sprintf("%s/%s", s.publicURL, fullKey), nil
}
