// Package blob implements the object-storage collaborator for post images.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store uploads post images to an S3-compatible object store and hands back
// their public URLs.
type Store struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// New creates an object store client. publicBase is the externally
// reachable base URL objects are served from.
func New(endpoint, accessKey, secretKey, bucket, publicBase string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &Store{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func objectName(ownerID, imageID, mediaType string) string {
	ext := ""
	switch mediaType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	}
	return ownerID + "/" + imageID + ext
}

// Upload stores an image under the owning entity's prefix and returns its
// public URL.
func (s *Store) Upload(ctx context.Context, ownerID, imageID string, data []byte, mediaType string) (string, error) {
	name := objectName(ownerID, imageID, mediaType)
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mediaType,
	})
	if err != nil {
		return "", fmt.Errorf("upload object %s: %w", name, err)
	}
	return s.publicBase + "/" + s.bucket + "/" + name, nil
}

// Delete removes every stored variant of the image. Media type is not
// recorded server-side, so all known extensions are attempted.
func (s *Store) Delete(ctx context.Context, ownerID, imageID string) error {
	names, err := s.ListObjects(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, name := range names {
		if !strings.HasPrefix(name, ownerID+"/"+imageID) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete object %s: %w", name, err)
		}
	}
	return nil
}

// ListObjects lists object names stored under the owning entity's prefix.
func (s *Store) ListObjects(ctx context.Context, ownerID string) ([]string, error) {
	var names []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    ownerID + "/",
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects for %s: %w", ownerID, object.Err)
		}
		names = append(names, object.Key)
	}
	return names, nil
}
