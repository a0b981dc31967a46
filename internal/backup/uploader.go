package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// Prefix is the folder backups are written under.
const Prefix = "backups/"

// Store is the object storage used for off-site backups.
type Store interface {
	// Upload writes state as a dated export and returns its gs:// URI.
	Upload(ctx context.Context, state domain.ApplicationState, now time.Time) (string, error)
	// Download fetches the bytes of a gs:// URI.
	Download(ctx context.Context, uri string) ([]byte, error)
}

// Uploader copies exports into a Cloud Storage bucket.
// It assumes Application Default Credentials are configured.
type Uploader struct {
	client *storage.Client
	bucket string
}

// NewUploader creates a storage client bound to bucket.
func NewUploader(ctx context.Context, bucket string) (*Uploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Uploader{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (u *Uploader) Close() error {
	return u.client.Close()
}

func (u *Uploader) Upload(ctx context.Context, state domain.ApplicationState, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := Export(&buf, state); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	objectName := Prefix + FileName(now)
	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, &buf); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy backup to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return "gs://" + u.bucket + "/" + objectName, nil
}

func (u *Uploader) Download(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	rc, err := u.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading bytes: %w", err)
	}
	return data, nil
}

// ParseURI splits gs://bucket/path/to/object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// BaseName returns the file name of a gs:// URI.
// e.g., "gs://bucket/backups/jar_backup_2025-03-14.json" → "jar_backup_2025-03-14.json"
func BaseName(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

var _ Store = (*Uploader)(nil)
