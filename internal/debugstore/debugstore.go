// Package debugstore keeps classified crops on disk for offline review and retraining.
package debugstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store writes images asynchronously so a slow disk never delays a response.
type Store struct {
	dir string
	log *zap.SugaredLogger
	wg  sync.WaitGroup
}

// New creates dir if needed.
func New(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create debug dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

// Save schedules image for writing as <uuid>_<value>.png and returns the chosen path.
// The caller keeps ownership of image; it is copied before returning.
func (s *Store) Save(image []byte, value int) string {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%d.png", uuid.New(), value))
	data := append([]byte(nil), image...)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := os.WriteFile(path, data, 0644); err != nil {
			s.log.Warnw("failed to persist debug image", "path", path, "error", err)
		}
	}()
	return path
}

// Close waits for pending writes.
func (s *Store) Close() {
	s.wg.Wait()
}
