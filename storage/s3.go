package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/MapleMaven/esp32-sram-puf/interfaces"
)

// S3Backend persists enrollment records in Amazon S3 or a compatible
// object store: one object per key under <prefix>/<namespace>/<key>.
type S3Backend struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates an S3 storage backend. If accessKey and secretKey
// are empty, the default credential chain is used.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// Namespace returns the store scoped to the given namespace.
func (b *S3Backend) Namespace(name string) interfaces.KVStore {
	return typedKV{raw: &s3Store{backend: b, ns: name}}
}

// Available reports whether the bucket answers a HEAD request.
func (b *S3Backend) Available(ctx context.Context) bool {
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Debug("S3 bucket head failed", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s-%s", b.bucketName, b.prefix)
}

// LocationURI returns the URI that identifies this backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

// Close is a no-op; the S3 client holds no persistent connection.
func (b *S3Backend) Close() error {
	return nil
}

type s3Store struct {
	backend *S3Backend
	ns      string
}

func (s *s3Store) objectKey(key string) string {
	return path.Join(s.backend.prefix, s.ns, key)
}

func (s *s3Store) has(ctx context.Context, key string) (bool, error) {
	_, err := s.backend.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.backend.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return true, nil
}

func (s *s3Store) get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.backend.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.backend.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

func (s *s3Store) put(ctx context.Context, key string, value []byte) (int, error) {
	_, err := s.backend.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.backend.bucketName),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		s.backend.log.Error("Failed to write object",
			slog.String("key", s.objectKey(key)), "err", err)
		return 0, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return len(value), nil
}

func (s *s3Store) clear(ctx context.Context) error {
	prefix := path.Join(s.backend.prefix, s.ns) + "/"

	var continuation *string
	for {
		list, err := s.backend.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.backend.bucketName),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
		}

		for _, obj := range list.Contents {
			_, err := s.backend.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.backend.bucketName),
				Key:    obj.Key,
			})
			if err != nil {
				return fmt.Errorf("%w: delete %s: %v", interfaces.ErrBackendUnavailable, aws.StringValue(obj.Key), err)
			}
		}

		if list.IsTruncated == nil || !*list.IsTruncated {
			return nil
		}
		continuation = list.NextContinuationToken
	}
}

func isS3NotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
