package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/ruteri/seal-session/interfaces"
)

// S3Backend implements a storage backend using Amazon S3 or compatible services.
// Objects are written private; the sealed exports are never public-read.
type S3Backend struct {
	client      *s3.S3
	bucketName  string
	prefix      string
	log         *slog.Logger
	locationURI string
}

// NewS3Backend creates a new S3 storage backend.
// Without an access key the default AWS credential chain is used.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if accessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", accessKey, bucketName, prefix, region)
	}
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		// S3-compatible stores such as minio expect path-style addressing.
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg = cfg.WithCredentials(credentials.NewStaticCredentials(accessKey, secretKey, ""))
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Backend{
		client:      s3.New(sess),
		bucketName:  bucketName,
		prefix:      strings.Trim(prefix, "/"),
		log:         log,
		locationURI: uri,
	}, nil
}

// Fetch retrieves an object from S3 by session id.
// Returns ErrContentNotFound if the object doesn't exist.
func (b *S3Backend) Fetch(ctx context.Context, id interfaces.SessionID) ([]byte, error) {
	start := time.Now()
	key := b.getObjectKey(id)

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			b.log.Debug("Session not found in S3",
				slog.String("bucket", b.bucketName),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrContentNotFound
		}

		b.log.Error("Failed to get object from S3",
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	b.log.Debug("Fetched session from S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store uploads data under id, replacing any previous object.
func (b *S3Backend) Store(ctx context.Context, id interfaces.SessionID, data []byte) error {
	key := b.getObjectKey(id)

	_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(b.bucketName),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ACL:                  aws.String(s3.ObjectCannedACLPrivate),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}

	b.log.Debug("Stored session in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key))

	return nil
}

// Delete removes the object stored under id. S3 treats missing keys as deleted.
func (b *S3Backend) Delete(ctx context.Context, id interfaces.SessionID) error {
	_, err := b.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(b.getObjectKey(id)),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

// Available checks if the S3 backend is accessible by attempting to head the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) getObjectKey(id interfaces.SessionID) string {
	name := string(id) + sealedSuffix
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
