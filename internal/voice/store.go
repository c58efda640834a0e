package voice

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// AudioStore writes synthesized audio to disk and serves it back out
// under /audio/... and /audio/rejections/....
type AudioStore struct {
	baseDir string
}

// NewAudioStore ensures baseDir and baseDir/rejections exist.
func NewAudioStore(baseDir string) (*AudioStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "rejections"), 0o755); err != nil {
		return nil, fmt.Errorf("voice: create audio dirs: %w", err)
	}
	return &AudioStore{baseDir: baseDir}, nil
}

// Save writes audio under the given subdirectory ("" for top-level,
// "rejections" for the rejection stock) and returns the generated
// filename and its public URL.
func (s *AudioStore) Save(subdir string, audio []byte) (filename, url string, err error) {
	filename = uuid.NewString() + ".mp3"
	dir := s.baseDir
	urlPrefix := "/audio/"
	if subdir != "" {
		dir = filepath.Join(s.baseDir, subdir)
		urlPrefix = "/audio/" + subdir + "/"
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", "", fmt.Errorf("voice: write audio file: %w", err)
	}
	return filename, urlPrefix + filename, nil
}

// Exists reports whether a previously saved audio file is still present.
func (s *AudioStore) Exists(subdir, filename string) bool {
	dir := s.baseDir
	if subdir != "" {
		dir = filepath.Join(s.baseDir, subdir)
	}
	_, err := os.Stat(filepath.Join(dir, filename))
	return err == nil
}

// Path returns the filesystem path for a stored file, for serving via
// http.ServeFile.
func (s *AudioStore) Path(subdir, filename string) string {
	if subdir != "" {
		return filepath.Join(s.baseDir, subdir, filename)
	}
	return filepath.Join(s.baseDir, filename)
}
