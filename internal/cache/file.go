package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// File stores the state as <dir>/<StorageKey>.json.
type File struct {
	path string
	log  zerolog.Logger
	mu   sync.Mutex
}

// NewFile returns a file cache rooted at dir. The directory is created lazily.
func NewFile(dir string, log zerolog.Logger) *File {
	return &File{
		path: filepath.Join(dir, StorageKey+".json"),
		log:  log,
	}
}

// Path is the cache file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Read() (domain.ApplicationState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn().Err(err).Str("path", f.path).Msg("Failed to read state cache")
		}
		return domain.ApplicationState{}, false
	}
	s, ok := decode(data)
	if !ok {
		f.log.Warn().Str("path", f.path).Msg("Ignoring corrupt state cache")
	}
	return s, ok
}

func (f *File) Write(state domain.ApplicationState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.write(state); err != nil {
		f.log.Warn().Err(err).Str("path", f.path).Msg("Failed to write state cache")
	}
}

func (f *File) write(state domain.ApplicationState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), StorageKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

var _ Cache = (*File)(nil)
