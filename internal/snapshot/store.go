package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ScreenshotMeta describes one stored screenshot.
type ScreenshotMeta struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TabID     string    `json:"tab_id"`
	URL       string    `json:"url,omitempty"`
	Title     string    `json:"title,omitempty"`
	Format    string    `json:"format"`
	SizeBytes int       `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Store manages screenshot files on disk, one image per capture with a
// JSON metadata sidecar.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("screenshot store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("invalid screenshot id: %q", id)
	}
	return nil
}

// Save writes both the image file and metadata sidecar.
func (s *Store) Save(meta ScreenshotMeta, imageData []byte) error {
	if err := s.validateID(meta.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath := filepath.Join(s.dir, meta.ID+"."+meta.Format)
	jsonPath := filepath.Join(s.dir, meta.ID+".json")

	if err := os.WriteFile(imgPath, imageData, 0o644); err != nil {
		return fmt.Errorf("screenshot store: write image: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("screenshot store: marshal meta: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		_ = os.Remove(imgPath)
		return fmt.Errorf("screenshot store: write meta: %w", err)
	}

	return nil
}

// Get reads screenshot metadata by ID.
func (s *Store) Get(id string) (ScreenshotMeta, error) {
	if err := s.validateID(id); err != nil {
		return ScreenshotMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	jsonPath := filepath.Join(s.dir, id+".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ScreenshotMeta{}, fmt.Errorf("screenshot not found: %s", id)
		}
		return ScreenshotMeta{}, fmt.Errorf("screenshot store: read meta: %w", err)
	}

	var meta ScreenshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return ScreenshotMeta{}, fmt.Errorf("screenshot store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns screenshots for a session sorted by creation time
// (newest first). An empty sessionID lists everything.
func (s *Store) List(sessionID string) ([]ScreenshotMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("screenshot store: glob: %w", err)
	}

	metas := make([]ScreenshotMeta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta ScreenshotMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		if sessionID != "" && meta.SessionID != sessionID {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})

	return metas, nil
}

// ReadImage reads the raw image bytes and returns the format.
func (s *Store) ReadImage(id string) ([]byte, string, error) {
	meta, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	imgPath := filepath.Join(s.dir, id+"."+meta.Format)
	data, err := os.ReadFile(imgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("screenshot image not found: %s", id)
		}
		return nil, "", fmt.Errorf("screenshot store: read image: %w", err)
	}
	return data, meta.Format, nil
}

// Delete removes both the image and metadata files.
func (s *Store) Delete(id string) error {
	if err := s.validateID(id); err != nil {
		return err
	}

	// Read meta first to know the format.
	meta, err := s.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imgPath := filepath.Join(s.dir, id+"."+meta.Format)
	jsonPath := filepath.Join(s.dir, id+".json")

	if err := os.Remove(imgPath); err != nil && !os.IsNotExist(err) {
		slog.Debug("screenshot image cleanup failed", "id", id, "error", err)
	}
	_ = os.Remove(jsonPath)
	return nil
}

// DeleteSession removes every screenshot belonging to a session, used
// when the session itself is closed.
func (s *Store) DeleteSession(sessionID string) error {
	metas, err := s.List(sessionID)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		if err := s.Delete(meta.ID); err != nil {
			slog.Debug("screenshot cleanup failed", "id", meta.ID, "error", err)
		}
	}
	return nil
}
