package worker

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/archonhq/archon/config"
	"github.com/archonhq/archon/errors"
)

// ObjectStorage rehydrates large job payloads and stores generated
// artifacts. Queue messages stay small; anything big travels as an object
// key instead.
type ObjectStorage interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// MinioStorage is the S3-compatible ObjectStorage implementation
type MinioStorage struct {
	api    *minio.Client
	bucket string
}

var _ ObjectStorage = (*MinioStorage)(nil)

func NewMinioStorage(cfg config.Storage) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object storage client")
	}
	return &MinioStorage{api: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStorage) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get object %s", key)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, obj); err != nil {
		return nil, errors.Wrapf(err, "failed to read object %s", key)
	}
	return buf.Bytes(), nil
}

func (s *MinioStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", errors.Wrapf(err, "failed to put object %s", key)
	}
	return key, nil
}
