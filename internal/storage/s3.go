// Package storage uploads source survey files to object storage so the
// warehouse can load them from an external stage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	apperrors "eavsctl/pkg/errors"
)

// s3API is the subset of the S3 client the uploader uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader pushes local files into one bucket.
type Uploader struct {
	client s3API
	bucket string
}

// NewUploader builds an Uploader using the ambient AWS credential chain.
func NewUploader(ctx context.Context, bucket string) (*Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid,
			"Failed to load object storage credentials").
			WithSuggestions("Check AWS_PROFILE or the default credential chain")
	}
	return &Uploader{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// NewUploaderWithClient wraps an existing client. Used by tests.
func NewUploaderWithClient(client s3API, bucket string) *Uploader {
	return &Uploader{client: client, bucket: bucket}
}

// ObjectKey is the bucket layout convention: <year>/<section>.csv.
func ObjectKey(year, section string) string {
	return path.Join(year, section+".csv")
}

// Bucket returns the destination bucket name.
func (u *Uploader) Bucket() string {
	return u.bucket
}

// Upload puts one local file at the given key. A single blocking call; the
// caller records per-file failures and moves on.
func (u *Uploader) Upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeFileNotFound,
			fmt.Sprintf("Cannot open source file %s", localPath))
	}
	defer f.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUploadFailed,
			fmt.Sprintf("Failed to upload %s to s3://%s/%s", localPath, u.bucket, key)).
			WithContext("bucket", u.bucket).
			WithContext("key", key)
	}
	return nil
}
