package local

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/SscSPs/movement_intake/internal/apperrors"
	"github.com/SscSPs/movement_intake/internal/core/domain"
)

const refScheme = "file://"

// Storage keeps uploaded documents on a filesystem rooted at a base directory.
type Storage struct {
	fs   afero.Fs
	base string
}

// NewStorage returns a Storage rooted at base on fs. The directory is created if missing.
func NewStorage(fs afero.Fs, base string) (*Storage, error) {
	if err := fs.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir %q: %w", base, err)
	}
	return &Storage{fs: fs, base: base}, nil
}

// NewOSStorage is NewStorage on the host filesystem.
func NewOSStorage(base string) (*Storage, error) {
	return NewStorage(afero.NewOsFs(), base)
}

// Store writes doc under documents/<uuid>/<file name> and returns a file:// reference.
func (s *Storage) Store(ctx context.Context, doc domain.DocumentUpload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := sanitizeFileName(doc.FileName)
	object := path.Join("documents", uuid.NewString(), name)
	target := filepath.Join(s.base, filepath.FromSlash(object))

	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, target, doc.Content, 0o644); err != nil {
		return "", fmt.Errorf("write document %q: %w", object, err)
	}
	return refScheme + object, nil
}

// Fetch reads back a document written by Store.
func (s *Storage) Fetch(ctx context.Context, ref string) (*domain.DocumentUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	object, ok := strings.CutPrefix(ref, refScheme)
	if !ok || object == "" || strings.Contains(object, "..") {
		return nil, fmt.Errorf("%w: invalid document reference %q", apperrors.ErrValidation, ref)
	}
	target := filepath.Join(s.base, filepath.FromSlash(object))

	exists, err := afero.Exists(s.fs, target)
	if err != nil {
		return nil, fmt.Errorf("stat document %q: %w", object, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: document %q", apperrors.ErrNotFound, ref)
	}
	content, err := afero.ReadFile(s.fs, target)
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", object, err)
	}

	name := path.Base(object)
	return &domain.DocumentUpload{
		FileName:  name,
		MediaType: mime.TypeByExtension(path.Ext(name)),
		Size:      int64(len(content)),
		Content:   content,
	}, nil
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return name
}
