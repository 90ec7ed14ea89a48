package artifact

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinioStorage keeps every artifact in one bucket, using the folder as the
// object key prefix.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Infof("minio bucket %s created", cfg.Bucket)
	}

	return &MinioStorage{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(folder Folder, name string) string {
	return path.Join(string(folder), name)
}

func (m *MinioStorage) Save(ctx context.Context, folder Folder, name string, r io.Reader) error {
	if err := checkName(folder, name); err != nil {
		return err
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, objectKey(folder, name), r, -1,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s: %w", objectKey(folder, name), err)
	}
	return nil
}

func (m *MinioStorage) Open(ctx context.Context, folder Folder, name string) (io.ReadCloser, error) {
	if err := checkName(folder, name); err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey(folder, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; Stat surfaces a missing key
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (m *MinioStorage) Remove(ctx context.Context, folder Folder, name string) error {
	if err := checkName(folder, name); err != nil {
		return err
	}
	return m.client.RemoveObject(ctx, m.bucket, objectKey(folder, name), minio.RemoveObjectOptions{})
}
