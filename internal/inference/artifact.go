package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/storage"
)

// ArtifactResolver finds model weights on disk, downloading "s3://" locations
// into a local cache first.
type ArtifactResolver struct {
	store    storage.ObjectStore
	cacheDir string
	logger   *slog.Logger
}

func NewArtifactResolver(store storage.ObjectStore, cacheDir string, logger *slog.Logger) *ArtifactResolver {
	return &ArtifactResolver{store: store, cacheDir: cacheDir, logger: observability.LoggerOrDiscard(logger)}
}

func (r *ArtifactResolver) Resolve(ctx context.Context, location string) (string, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return "", fmt.Errorf("%w: model path is required", ErrModelUnavailable)
	}

	key, isObject, err := storage.ParseObjectURI(location)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if !isObject {
		if err := checkModelFile(location); err != nil {
			return "", err
		}
		return location, nil
	}
	return r.fetch(ctx, key)
}

func (r *ArtifactResolver) fetch(ctx context.Context, key string) (string, error) {
	if r.store == nil {
		return "", fmt.Errorf("%w: no object store configured for %q", ErrModelUnavailable, key)
	}
	localPath, err := storage.CachePath(r.cacheDir, key)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	info, err := r.store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: model object %q missing", ErrModelUnavailable, key)
		}
		return "", fmt.Errorf("stat model object: %w: %w", ErrModelUnavailable, err)
	}
	if cached, err := os.Stat(localPath); err == nil && cached.Mode().IsRegular() && cached.Size() == info.Size {
		return localPath, nil
	}

	r.logger.InfoContext(ctx, "downloading model artifact",
		slog.String("key", key),
		slog.Int64("size_bytes", info.Size),
		slog.String("path", localPath),
	)
	reader, err := r.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("get model object: %w: %w", ErrModelUnavailable, err)
	}
	defer func() { _ = reader.Close() }()

	if err := writeFileAtomic(localPath, reader); err != nil {
		return "", fmt.Errorf("cache model artifact: %w: %w", ErrModelUnavailable, err)
	}
	return localPath, nil
}

func checkModelFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: model file missing at %s", ErrModelUnavailable, path)
		}
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: model path %s is a directory", ErrModelUnavailable, path)
	}
	return nil
}

// writeFileAtomic never leaves a partial file at path.
func writeFileAtomic(path string, reader io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	tmpPath := file.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
