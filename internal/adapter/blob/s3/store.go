package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bnema/tubeaudit/config"
	"github.com/bnema/tubeaudit/internal/adapter/http/validation"
	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/port"
)

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store keeps artifacts in an S3 bucket and serves them through presigned GETs.
type Store struct {
	client  objectAPI
	presign presigner
	bucket  string
}

func New(ctx context.Context, cfg config.S3Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info.Printf("S3 artifact store ready (bucket=%s region=%s)", cfg.Bucket, cfg.Region)
	return NewWithClient(client, s3.NewPresignClient(client), cfg.Bucket), nil
}

func NewWithClient(client objectAPI, p presigner, bucket string) *Store {
	return &Store{client: client, presign: p, bucket: bucket}
}

func buildAWSConfig(ctx context.Context, cfg config.S3Config) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	// Static credentials when provided, the default chain otherwise.
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, int64, error) {
	// Buffer so the SDK gets a seekable body with a known length.
	buf := &bytes.Buffer{}
	n, err := io.Copy(buf, r)
	if err != nil {
		return "", 0, fmt.Errorf("read artifact: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(n),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", 0, fmt.Errorf("put object %s: %w", key, err)
	}
	return key, n, nil
}

func (s *Store) Delete(ctx context.Context, location string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete object %s: %w", location, err)
	}
	return nil
}

func (s *Store) SignedURL(ctx context.Context, a *domain.Artifact, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(a.Location),
		ResponseContentDisposition: aws.String(validation.ContentDisposition(a.DownloadName(), false)),
		ResponseContentType:        aws.String(a.Type.ContentType()),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", a.Location, err)
	}
	return req.URL, nil
}

// isNotFound also matches on the error code because S3-compatible stores
// do not always produce the typed errors.
func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

var _ port.BlobStore = (*Store)(nil)
