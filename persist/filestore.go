package persist

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// FileStore keeps blobs in a directory under content-addressed names.
// Storing the same bytes twice yields the same URL.
type FileStore struct {
	Dir string
	// BaseURL prefixes returned URLs. When empty, file:// URLs are returned.
	BaseURL string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file store: %w", err)
	}
	return &FileStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Key returns the file name data is stored under.
func Key(data []byte, suggestedName string) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:16]) + "-" + sanitizeName(suggestedName)
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "._")
	if s == "" {
		s = "document"
	}
	if !strings.HasSuffix(strings.ToLower(s), ".pdf") {
		s += ".pdf"
	}
	return s
}

// Store writes data atomically and returns its URL.
func (s *FileStore) Store(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := Key(data, suggestedName)
	path := filepath.Join(s.Dir, key)
	if _, err := os.Stat(path); err != nil {
		tmp, err := os.CreateTemp(s.Dir, ".upload-*")
		if err != nil {
			return "", err
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return "", err
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			os.Remove(tmp.Name())
			return "", err
		}
	}
	if s.BaseURL == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
	}
	return s.BaseURL + "/" + url.PathEscape(key), nil
}

// Open returns the path of a stored key. Keys that were never stored, and
// names that cannot be keys, yield ErrNotFound.
func (s *FileStore) Open(key string) (string, error) {
	if key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	path := filepath.Join(s.Dir, key)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("key %q: %w", key, ErrNotFound)
		}
		return "", err
	}
	return path, nil
}
