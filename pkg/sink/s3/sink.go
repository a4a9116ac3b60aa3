package s3

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/siftworks/siftx/pkg/sink"
)

// Sink delivers artifacts to an S3 bucket.
//
// Keys take the form <root>/<sha1(courseID)>/<filename>. The course
// identifier is hashed rather than embedded so course names never leak
// into the bucket key namespace; the dashboard computes the same hash
// when it builds download links.
type Sink struct {
	client   *s3.Client
	bucket   string
	rootPath string
}

var _ sink.Sink = (*Sink)(nil)

// New creates a new S3 sink with the given configuration.
//
// The sink uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &sink.StorageError{Op: "New", Kind: sink.KindS3, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Sink{
		client:   s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:   cfg.Bucket,
		rootPath: strings.Trim(cfg.RootPath, "/"),
	}, nil
}

func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}
	return awsCfg, nil
}

func (s *Sink) Close() error { return nil }

// KeyFor returns the bucket key an artifact would be delivered to.
func (s *Sink) KeyFor(courseID, filename string) string {
	sum := sha1.Sum([]byte(courseID))
	return path.Join(s.rootPath, hex.EncodeToString(sum[:]), filename)
}

// Store uploads the artifact. Content type is inferred from the filename
// extension; unknown extensions upload without one.
func (s *Sink) Store(ctx context.Context, courseID, filename string, content []byte) error {
	if strings.TrimSpace(filename) == "" {
		return s.wrapError(courseID, filename, errors.New("filename is required"))
	}

	key := s.KeyFor(courseID, filename)
	contentLength := int64(len(content))
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: &contentLength,
	}
	if ct := mime.TypeByExtension(path.Ext(filename)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return s.wrapError(courseID, filename, err)
	}
	return nil
}

// wrapError converts S3 errors to sink errors with appropriate sentinels.
func (s *Sink) wrapError(courseID, filename string, err error) error {
	wrapped := &sink.StorageError{
		Op:       "Store",
		Kind:     sink.KindS3,
		CourseID: courseID,
		Filename: filename,
		Err:      err,
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			wrapped.Err = sink.ErrBucketNotFound
		case "AccessDenied", "Forbidden":
			wrapped.Err = sink.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = sink.ErrInvalidCredentials
		case "ServiceUnavailable", "InternalError", "SlowDown":
			wrapped.Err = sink.ErrUnavailable
		}
	}
	return wrapped
}
