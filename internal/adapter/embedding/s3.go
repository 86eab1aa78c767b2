package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"inu/internal/domain"
)

// S3Client abstracts the S3 API operations used by S3Source.
// The *s3.Client type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source downloads a model object from S3 or an S3-compatible store.
type S3Source struct {
	client S3Client
	bucket string
	key    string
}

func NewS3Source(client S3Client, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// NewS3SourceFromURL builds a source for s3://bucket/key, with credentials
// read from the standard AWS_* environment variables.
func NewS3SourceFromURL(u *url.URL, opts SourceOptions) (*S3Source, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 location %q: expected s3://bucket/key", u.String())
	}

	region := opts.S3Region
	if region == "" {
		region = firstEnv("AWS_REGION", "AWS_DEFAULT_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	s3opts := s3.Options{
		Region:      region,
		Credentials: aws.CredentialsProviderFunc(envCredentials),
	}
	if opts.S3Endpoint != "" {
		s3opts.BaseEndpoint = aws.String(opts.S3Endpoint)
		s3opts.UsePathStyle = true
	}

	return NewS3Source(s3.New(s3opts), bucket, key), nil
}

func (s *S3Source) Load(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("model %s: %w", s, os.ErrNotExist)
		}
		if isTimeout(err) {
			return nil, &domain.RetryableError{Op: "fetch model " + s.String(), Err: err}
		}
		return nil, fmt.Errorf("fetch model %s: %w", s, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", s, err)
	}
	return data, nil
}

func (s *S3Source) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

func envCredentials(ctx context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
