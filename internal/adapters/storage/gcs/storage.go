package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
)

// Storage keeps uploaded documents in a Google Cloud Storage bucket.
type Storage struct {
	client *storage.Client
	bucket string
}

// NewStorage creates a GCS-backed Storage. With an empty credentialsFile the client falls back to
// Application Default Credentials.
func NewStorage(ctx context.Context, bucket, credentialsFile string) (*Storage, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Storage{client: client, bucket: bucket}, nil
}

// Close releases the underlying client.
func (s *Storage) Close() error {
	return s.client.Close()
}

// Store uploads doc to documents/<uuid>/<file name> and returns its gs:// URI.
func (s *Storage) Store(ctx context.Context, doc domain.DocumentUpload) (string, error) {
	objectName := path.Join("documents", uuid.NewString(), path.Base(strings.ReplaceAll(doc.FileName, "\\", "/")))

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = doc.MediaType
	w.Metadata = map[string]string{"original_name": doc.FileName}

	if _, err := w.Write(doc.Content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write object %q: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload of %q: %w", objectName, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Fetch downloads the object behind a gs:// URI.
func (s *Storage) Fetch(ctx context.Context, ref string) (*domain.DocumentUpload, error) {
	bucket, objectName, err := splitURI(ref)
	if err != nil {
		return nil, err
	}

	obj := s.client.Bucket(bucket).Object(objectName)
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: document %q", apperrors.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("open object %q: %w", ref, err)
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", ref, err)
	}
	return &domain.DocumentUpload{
		FileName:  path.Base(objectName),
		MediaType: r.Attrs.ContentType,
		Size:      int64(len(content)),
		Content:   content,
	}, nil
}

// splitURI turns gs://bucket/path/to/file.pdf into its bucket and object name.
func splitURI(uri string) (string, string, error) {
	trimmed, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: invalid GCS URI %q", apperrors.ErrValidation, uri)
	}
	bucket, objectName, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || objectName == "" {
		return "", "", fmt.Errorf("%w: invalid GCS URI (no object path) %q", apperrors.ErrValidation, uri)
	}
	return bucket, objectName, nil
}
