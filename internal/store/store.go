// Package store is the object store client. It durably stores raw uploads in
// GCS and hands back an opaque reference; nothing else in the pipeline ever
// reads the bytes again.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"

	"github.com/docuquery/docflow/internal/gcp"
)

const (
	maxUploadAttempts = 4
	initialBackoff    = 1 * time.Second
	attemptTimeout    = 50 * time.Second
)

// Client uploads documents to a single GCS bucket.
type Client struct {
	storageClient *storage.Client
	bucket        string
}

func New(storageClient *storage.Client, bucket string) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a store client")
	}
	return &Client{storageClient: storageClient, bucket: bucket}, nil
}

// Upload stores the content under a fresh object name and returns its
// gs:// reference. Transient failures are retried with doubling backoff;
// content must be rewindable so an attempt can restart from the beginning.
func (c *Client) Upload(ctx context.Context, content io.ReadSeeker, fileName string) (string, error) {
	objectName := fmt.Sprintf("%s/%s", uuid.NewString(), sanitizeName(fileName))
	bucketHandle := c.storageClient.Bucket(c.bucket)

	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		err := func() error {
			if _, err := content.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("could not rewind content: %w", err)
			}
			writeCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
			defer cancel()
			return gcp.WriteObjectOnce(writeCtx, bucketHandle, objectName, content)
		}()
		if err == nil {
			return fmt.Sprintf("gs://%s/%s", c.bucket, objectName), nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"object", objectName,
			"attempt", attempt,
			"maxAttempts", maxUploadAttempts,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("upload of %s failed after all retries: %w", objectName, lastErr)
}

// Exists reports whether the object behind a gs:// reference is still there.
// Used by operator tooling to cross-check registered jobs.
func (c *Client) Exists(ctx context.Context, fileRef string) (bool, error) {
	bucket, object, err := ParseRef(fileRef)
	if err != nil {
		return false, err
	}
	_, err = c.storageClient.Bucket(bucket).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", fileRef, err)
	}
	return true, nil
}

// ParseRef splits a gs://bucket/object reference.
func ParseRef(fileRef string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(fileRef, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// reference: %q", fileRef)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed object reference: %q", fileRef)
	}
	return bucket, object, nil
}

func sanitizeName(fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "document.pdf"
	}
	return base
}
