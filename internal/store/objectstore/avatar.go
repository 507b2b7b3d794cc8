package objectstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"
)

// AvatarURLExpiry is the longest presign S3 accepts.
const AvatarURLExpiry = 7 * 24 * time.Hour

// MaxAvatarBytes bounds uploads accepted by the profile route.
const MaxAvatarBytes = 5 << 20

var allowedAvatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// AvatarStore keeps investor profile pictures.
type AvatarStore interface {
	Put(ctx context.Context, investorID string, r io.Reader, size int64, contentType string) (string, error)
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(cctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(cctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// AvatarKey names a new object for investorID; every upload gets its own key
// so cached profile URLs never point at replaced bytes.
func AvatarKey(investorID, contentType string) (string, error) {
	ext, ok := allowedAvatarTypes[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("unsupported avatar type %q", contentType)
	}
	return path.Join("avatars", investorID, ulid.Make().String()+ext), nil
}

func AllowedAvatarType(contentType string) bool {
	_, ok := allowedAvatarTypes[strings.ToLower(contentType)]
	return ok
}

func (m *MinioStore) Put(ctx context.Context, investorID string, r io.Reader, size int64, contentType string) (string, error) {
	key, err := AvatarKey(investorID, contentType)
	if err != nil {
		return "", err
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return key, nil
}

func (m *MinioStore) URL(ctx context.Context, key string) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, AvatarURLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
