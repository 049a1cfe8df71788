// Package s3 stores chunks as objects in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"image-vault/internal/blob"
)

// API is the subset of the S3 client the store uses.
type API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type Config struct {
	Region   string
	Bucket   string
	Prefix   string
	KMSKeyID string

	// Endpoint and static credentials are for S3-compatible stores such
	// as MinIO. When AccessKey is empty the default credential chain is
	// used.
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Store implements blob.Transport on S3.
type Store struct {
	client   API
	bucket   string
	prefix   string
	kmsKeyID string
}

// New builds an S3 client from cfg. The SDK's own retries are disabled
// because blob.Adapter retries chunks itself.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, cfg Config) *Store {
	return &Store{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   normalizePrefix(cfg.Prefix),
		kmsKeyID: strings.TrimSpace(cfg.KMSKeyID),
	}
}

func (s *Store) UploadChunk(ctx context.Context, data []byte) (blob.Handle, error) {
	d := time.Now().UTC()
	key := path.Join(fmt.Sprintf("%04d/%02d/%02d", d.Year(), d.Month(), d.Day()), uuid.NewString())

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(applyPrefix(s.prefix, key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	}
	if s.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(s.kmsKeyID)
	} else {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return blob.Handle{}, classify(ctx, "upload", fmt.Errorf("s3 put object bucket=%s key=%s: %w", s.bucket, key, err))
	}
	return blob.Handle{ID: key}, nil
}

func (s *Store) DownloadChunk(ctx context.Context, h blob.Handle) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(applyPrefix(s.prefix, h.ID)),
	})
	if err != nil {
		return nil, classify(ctx, "download", fmt.Errorf("s3 get object bucket=%s key=%s: %w", s.bucket, h.ID, err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify(ctx, "download", err)
	}
	return data, nil
}

func (s *Store) DeleteChunk(ctx context.Context, h blob.Handle) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(applyPrefix(s.prefix, h.ID)),
	})
	if err != nil {
		return classify(ctx, "delete", fmt.Errorf("s3 delete object bucket=%s key=%s: %w", s.bucket, h.ID, err))
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return classify(ctx, "ping", err)
	}
	return nil
}

var transientCodes = map[string]bool{
	"SlowDown":            true,
	"Throttling":          true,
	"ThrottlingException": true,
	"RequestTimeout":      true,
	"InternalError":       true,
	"ServiceUnavailable":  true,
}

func classify(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var noKey *s3types.NoSuchKey
	if errors.As(err, &noKey) {
		return blob.NotFound(op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "NoSuchKey" || code == "NotFound":
			return blob.NotFound(op, err)
		case transientCodes[code]:
			return blob.Transient(op, err, 0)
		}
	}

	var withStatus interface{ HTTPStatusCode() int }
	if errors.As(err, &withStatus) {
		switch status := withStatus.HTTPStatusCode(); {
		case status == http.StatusNotFound:
			return blob.NotFound(op, err)
		case status == http.StatusTooManyRequests || status >= 500:
			return blob.Transient(op, err, 0)
		default:
			return blob.Permanent(op, err)
		}
	}

	if apiErr != nil {
		return blob.Permanent(op, err)
	}
	// No response at all: the request never completed.
	return blob.Transient(op, err, 0)
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

func applyPrefix(prefix, key string) string {
	cleanPrefix := strings.Trim(prefix, "/")
	cleanKey := strings.TrimLeft(key, "/")
	if cleanPrefix == "" {
		return cleanKey
	}
	if cleanKey == "" {
		return cleanPrefix
	}
	return cleanPrefix + "/" + cleanKey
}

var _ blob.Transport = (*Store)(nil)
