package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
)

// S3Backend writes to an S3-compatible destination bucket: one session
// and client per backend instance, scoped to one bucket+region per run
// since the destination is fixed for the whole CollectionRequest.
type S3Backend struct {
	Bucket string
	Prefix string

	svc      *s3.S3
	uploader *s3manager.Uploader
}

var _ Backend = (*S3Backend)(nil)

// NewS3Backend creates an S3Backend for bucket, using region if set
// (otherwise the SDK's default resolution chain: default credentials
// file + environment variables).
func NewS3Backend(bucket, prefix, region string) (*S3Backend, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
		Config:            aws.Config{HTTPClient: cmn.NewClient(cmn.TransportArgs{})},
	})
	if err != nil {
		return nil, cmn.Wrap(cmn.KindStorageError, err)
	}
	cfg := &aws.Config{}
	if region != "" {
		cfg.Region = aws.String(region)
	}
	svc := s3.New(sess, cfg)
	return &S3Backend{
		Bucket:   bucket,
		Prefix:   prefix,
		svc:      svc,
		uploader: s3manager.NewUploaderWithClient(svc),
	}, nil
}

func (b *S3Backend) DestinationURI(targetKey string) string {
	return fmt.Sprintf("s3://%s/%s", b.Bucket, targetKey)
}

func (b *S3Backend) IsObjectStore() bool { return true }

func (b *S3Backend) Exists(ctx context.Context, uri string) (bool, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return false, cmn.Wrap(cmn.KindStorageError, err)
	}
	_, err = b.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if aerr, ok := err.(awserr.RequestFailure); ok && aerr.StatusCode() == 404 {
		return false, nil
	}
	return false, cmn.Wrap(cmn.KindStorageError, err)
}

func (b *S3Backend) Put(ctx context.Context, uri string, size int64, data Reader) error {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	r, ok := data.(io.Reader)
	if !ok {
		return cmn.Wrapf(cmn.KindStorageError, "destination reader does not implement io.Reader")
	}
	_, err = b.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	return nil
}

// PutManifest writes raw manifest bytes directly, bypassing s3manager's
// multipart machinery since manifests are always small.
func (b *S3Backend) PutManifest(ctx context.Context, key string, body []byte) error {
	_, err := b.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	return nil
}

// DeleteBestEffort deletes uri, swallowing the error -- used to clean up
// a target partially written by a Put that failed mid-stream. Never
// fails the task further: the original Put error is what gets reported.
func (b *S3Backend) DeleteBestEffort(ctx context.Context, uri string) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return
	}
	_, _ = b.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
}
