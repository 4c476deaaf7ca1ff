package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nerrad567/facility-core/internal/infrastructure/config"
)

// Upload is an image received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store keeps entity images in an S3-compatible bucket and hands out
// public URLs rooted at the configured CDN.
//
// A Store built from a disabled config rejects uploads with ErrDisabled
// and treats deletes as no-ops.
type Store struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// New creates a store from the media configuration.
func New(cfg config.MediaConfig) (*Store, error) {
	if !cfg.Enabled {
		return &Store{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}

	baseURL := strings.TrimSuffix(cfg.CDNURL, "/")
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &Store{client: client, bucket: cfg.Bucket, baseURL: baseURL}, nil
}

// Enabled reports whether uploads are possible.
func (s *Store) Enabled() bool {
	return s.client != nil
}

// UploadImage stores file under ownerKey/folder/ with a fresh name and
// returns its public URL. The original extension is kept.
func (s *Store) UploadImage(ctx context.Context, ownerKey, folder string, file Upload) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}

	key := objectKey(ownerKey, folder, file.Filename)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, file.Body, file.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, key, err)
	}
	return s.baseURL + "/" + key, nil
}

// DeleteImage removes the object behind a URL returned by UploadImage.
func (s *Store) DeleteImage(ctx context.Context, url string) error {
	if !s.Enabled() || url == "" {
		return nil
	}
	key, ok := s.keyFromURL(url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

func (s *Store) keyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

func objectKey(ownerKey, folder, filename string) string {
	return path.Join(ownerKey, folder, uuid.NewString()+strings.ToLower(path.Ext(filename)))
}
