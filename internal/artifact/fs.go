package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FSStore keeps artifacts under a root directory on the local filesystem,
// mapping keys directly to relative paths. Locators are file:// URLs.
type FSStore struct {
	root string
}

// NewFSStore creates (if needed) the root directory and returns a store
// rooted there.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact root: %w", err)
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Put(_ context.Context, key string, data []byte) (string, error) {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", key, err)
	}
	return s.Locator(key), nil
}

func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return data, nil
}

func (s *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	// The prefix may end mid-filename (e.g. ".../final_translated_chunk_"),
	// so walk the deepest existing directory and filter.
	dir := filepath.Dir(filepath.FromSlash(prefix))
	base := filepath.Join(s.root, dir)

	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("listing artifacts under %s: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *FSStore) Locator(key string) string {
	return "file://" + filepath.ToSlash(s.path(key))
}

// SignedURL on the filesystem backend is the plain file locator; there is
// nothing to sign.
func (s *FSStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return s.Locator(key), nil
}
