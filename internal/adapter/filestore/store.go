// Package filestore keeps submission files and test scripts below MEDIA_ROOT.
package filestore

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"gitlab.com/opensubmit.net/internal/core/ports/primary"
	"gitlab.com/opensubmit.net/internal/core/ports/secondary"
	"gitlab.com/opensubmit.net/internal/static/errs"
)

var _ secondary.ArtifactStore = (*LocalStore)(nil)

// LocalStore is an ArtifactStore on the local filesystem.
// Stored paths are relative to root and use forward slashes.
type LocalStore struct {
	root   string
	logger primary.Logger
}

func NewLocalStore(root string, logger primary.Logger) *LocalStore {
	return &LocalStore{
		root:   root,
		logger: logger,
	}
}

func (s *LocalStore) Save(ctx context.Context, name string, content io.Reader) (string, string, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." {
		return "", "", fmt.Errorf("invalid file name %q: %w", name, errs.ErrInvalidArgument)
	}

	rel := path.Join("submissions", uuid.NewString(), base)
	full, err := s.resolve(rel)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		s.logger.Error("Failed to create media directory", "path", rel, "error", err)
		return "", "", fmt.Errorf("failed to create media directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		s.logger.Error("Failed to create media file", "path", rel, "error", err)
		return "", "", fmt.Errorf("failed to create media file: %w", err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(f, hasher), content); err != nil {
		s.logger.Error("Failed to write media file", "path", rel, "error", err)
		return "", "", fmt.Errorf("failed to write media file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", "", fmt.Errorf("failed to flush media file: %w", err)
	}

	return rel, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (s *LocalStore) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("media file %s: %w", rel, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open media file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Checksum(ctx context.Context, rel string) (string, error) {
	r, err := s.Open(ctx, rel)
	if err != nil {
		return "", err
	}
	defer r.Close()

	return Checksum(r)
}

func (s *LocalStore) Remove(ctx context.Context, rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to remove media file", "path", rel, "error", err)
		return fmt.Errorf("failed to remove media file: %w", err)
	}
	return nil
}

// Checksum hashes r with blake3 and returns the hex digest
func Checksum(r io.Reader) (string, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// resolve maps a stored path below root, rejecting anything that escapes it
func (s *LocalStore) resolve(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" || strings.Contains(rel, "..") {
		return "", fmt.Errorf("invalid media path %q: %w", rel, errs.ErrInvalidArgument)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
