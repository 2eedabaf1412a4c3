package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/trip-expense/internal/application/port"
)

// PhotoReferences lists the photo file ids still in use
type PhotoReferences interface {
	PhotoFileIDs(ctx context.Context) ([]string, error)
}

// PhotoStore is the storage side of the sweep
type PhotoStore interface {
	port.PhotoInventory
	Release(ctx context.Context, fileID string) error
}

// PhotoSweeperConfig holds sweep timing
type PhotoSweeperConfig struct {
	Interval time.Duration
	// Grace protects files of uploads whose transaction has not committed yet
	Grace time.Duration
}

// PhotoSweeper periodically releases stored photos no expense references,
// such as files left behind when a process died between store and commit.
type PhotoSweeper struct {
	refs   PhotoReferences
	photos PhotoStore
	config PhotoSweeperConfig
	now    func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPhotoSweeper creates a sweeper; zero config values get defaults
func NewPhotoSweeper(refs PhotoReferences, photos PhotoStore, config PhotoSweeperConfig, logger *zap.Logger) *PhotoSweeper {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Grace <= 0 {
		config.Grace = 10 * time.Minute
	}
	return &PhotoSweeper{
		refs:   refs,
		photos: photos,
		config: config,
		now:    time.Now,
		logger: logger,
	}
}

// Start launches the sweep loop
func (s *PhotoSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("photo sweeper is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("PhotoSweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("grace", s.config.Grace))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep
func (s *PhotoSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("PhotoSweeper stopped")
	return nil
}

// Name returns the worker name for identification
func (s *PhotoSweeper) Name() string {
	return "PhotoSweeper"
}

func (s *PhotoSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("Photo sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep releases unreferenced photos older than the grace period and
// returns how many were released
func (s *PhotoSweeper) Sweep(ctx context.Context) (int, error) {
	stored, err := s.photos.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list stored photos: %w", err)
	}
	if len(stored) == 0 {
		return 0, nil
	}

	ids, err := s.refs.PhotoFileIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list referenced photos: %w", err)
	}
	referenced := make(map[string]bool, len(ids))
	for _, id := range ids {
		referenced[id] = true
	}

	cutoff := s.now().Add(-s.config.Grace)
	released := 0
	for _, photo := range stored {
		if referenced[photo.FileID] || photo.ModTime.After(cutoff) {
			continue
		}
		if err := s.photos.Release(ctx, photo.FileID); err != nil {
			s.logger.Warn("Failed to release orphaned photo",
				zap.String("file_id", photo.FileID),
				zap.Error(err))
			continue
		}
		released++
	}

	if released > 0 {
		s.logger.Info("Orphaned photos released",
			zap.Int("released", released),
			zap.Int("stored", len(stored)))
	}
	return released, nil
}
