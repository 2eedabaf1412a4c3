package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/application/port"
	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// LocalPhotoStorage implements port.PhotoStorage on the local filesystem.
// The client uses the same type as its photo handle store.
type LocalPhotoStorage struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalPhotoStorage creates a photo store rooted at baseDir
func NewLocalPhotoStorage(baseDir string, logger *zap.Logger) *LocalPhotoStorage {
	return &LocalPhotoStorage{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Store writes content under a fresh name in the trip's folder and returns its file id
func (s *LocalPhotoStorage) Store(ctx context.Context, tripCode string, content []byte) (string, error) {
	if tripCode == "" || strings.ContainsAny(tripCode, `/\`) {
		return "", fmt.Errorf("%w: invalid trip code %q", entity.ErrValidation, tripCode)
	}
	fileID := tripCode + "/" + uuid.NewString()

	fullPath, err := s.resolve(fileID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create photo directory",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write photo",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write photo: %w", err)
	}

	s.logger.Debug("Photo stored",
		zap.String("file_id", fileID),
		zap.Int("size", len(content)))
	return fileID, nil
}

// Load reads the photo behind fileID
func (s *LocalPhotoStorage) Load(ctx context.Context, fileID string) ([]byte, error) {
	fullPath, err := s.resolve(fileID)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: photo %s", entity.ErrNotFound, fileID)
	}
	if err != nil {
		s.logger.Error("Failed to read photo",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	return content, nil
}

// Release deletes the photo; releasing a missing photo succeeds
func (s *LocalPhotoStorage) Release(ctx context.Context, fileID string) error {
	fullPath, err := s.resolve(fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete photo",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete photo: %w", err)
	}

	s.logger.Debug("Photo released", zap.String("file_id", fileID))
	return nil
}

// List walks the photo directory and returns every stored file id
func (s *LocalPhotoStorage) List(ctx context.Context) ([]port.StoredPhoto, error) {
	var photos []port.StoredPhoto
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return ctx.Err()
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		photos = append(photos, port.StoredPhoto{
			FileID:  filepath.ToSlash(rel),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("Failed to list photos", zap.String("base_dir", s.baseDir), zap.Error(err))
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	return photos, nil
}

// resolve maps a file id to a path that must stay inside baseDir
func (s *LocalPhotoStorage) resolve(fileID string) (string, error) {
	if fileID == "" {
		return "", fmt.Errorf("%w: empty file id", entity.ErrValidation)
	}

	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.FromSlash(fileID)))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: file id escapes photo directory: %s", entity.ErrValidation, fileID)
	}
	return absPath, nil
}

var (
	_ port.PhotoStorage   = (*LocalPhotoStorage)(nil)
	_ port.PhotoInventory = (*LocalPhotoStorage)(nil)
)
