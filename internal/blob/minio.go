package blob

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"xhsmarket/pkg/config"
)

// MinIO stores objects in one S3-compatible bucket.
type MinIO struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinIO connects and creates the bucket when missing.
func NewMinIO(ctx context.Context, cfg config.BlobConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "could not check bucket '%s'", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "could not create bucket '%s'", cfg.Bucket)
		}
	}

	publicURL := cfg.PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.Secure {
			scheme = "https"
		}
		publicURL = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}

	return &MinIO{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

func (b *MinIO) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (b *MinIO) Get(ctx context.Context, key string) (io.ReadCloser, *Info, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil, errors.Wrapf(ErrNotFound, "could not find object '%s'", key)
		}
		return nil, nil, errors.WithStack(err)
	}

	return obj, &Info{Key: key, Size: stat.Size, ContentType: stat.ContentType}, nil
}

func (b *MinIO) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (b *MinIO) URL(key string) string {
	return joinURL(b.publicURL, key)
}

var _ Store = &MinIO{}
