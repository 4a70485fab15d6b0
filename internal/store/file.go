package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
)

var safeFileName = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// FileBackend stores one JSON document per session in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Save writes the session document atomically.
func (b *FileBackend) Save(_ context.Context, s *domain.Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := writeFileAtomic(b.path(s.ID), data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", s.ID, err)
	}
	return nil
}

// LoadAll reads every session document. Unreadable files are skipped.
func (b *FileBackend) LoadAll(_ context.Context) ([]*domain.Session, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	var out []*domain.Session
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".tmp_") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(b.dir, name))
		if err != nil {
			slog.Warn("Skipping unreadable session file", "file", name, "error", err)
			continue
		}
		var s domain.Session
		if err := json.Unmarshal(data, &s); err != nil || s.ID == "" {
			slog.Warn("Skipping malformed session file", "file", name, "error", err)
			continue
		}
		out = append(out, &s)
	}
	return out, nil
}

// Ping checks the directory is still there.
func (b *FileBackend) Ping(_ context.Context) error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("stat session directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("session path %s is not a directory", b.dir)
	}
	return nil
}

// Close is a no-op.
func (b *FileBackend) Close() error {
	return nil
}

// path maps a session id to a file name that cannot escape the directory.
func (b *FileBackend) path(id string) string {
	name := id
	if !safeFileName.MatchString(id) {
		sum := sha256.Sum256([]byte(id))
		name = "s_" + hex.EncodeToString(sum[:16])
	}
	return filepath.Join(b.dir, name+".json")
}

// writeFileAtomic writes to a temp file in the same directory, syncs it and
// renames it over path, so readers see either the old or the new document.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp_session_*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
