package imagestore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	mio "github.com/you-humble/genstudio/internal/libs/minio"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// minioStore holds conditioning images uploaded with a submission. The
// provider fetches the image itself, so Save returns a presigned URL valid
// long enough to cover the generation run.
type minioStore struct {
	db        *minio.Client
	bucket    string
	urlExpiry time.Duration
}

func NewMinIOStore(ctx context.Context, cfg mio.Config, urlExpiry time.Duration) (*minioStore, error) {
	client, err := mio.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if urlExpiry <= 0 {
		urlExpiry = 24 * time.Hour
	}

	return &minioStore{
		db:        client,
		bucket:    cfg.Bucket,
		urlExpiry: urlExpiry,
	}, nil
}

func (s *minioStore) SaveImage(
	ctx context.Context,
	reader io.Reader,
	filename string,
	size int64,
) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	objectName := uuid.NewString() + ext

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	putSize := size
	if putSize <= 0 {
		putSize = -1
	}

	_, err := s.db.PutObject(ctx, s.bucket, objectName, reader, putSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put image object: %w", err)
	}

	u, err := s.db.PresignedGetObject(ctx, s.bucket, objectName, s.urlExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign image url: %w", err)
	}

	return u.String(), nil
}
