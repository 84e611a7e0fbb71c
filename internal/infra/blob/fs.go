package blob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filesystem stores objects as files under a directory root. Keys map to
// relative paths; content types are not preserved across restarts.
type Filesystem struct {
	root string
}

// NewFilesystem constructs a filesystem store rooted at root (default
// ./archive).
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "archive"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Filesystem{root: root}, nil
}

// Driver reports the backend kind.
func (f *Filesystem) Driver() Driver { return DriverFilesystem }

func (f *Filesystem) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(f.root, filepath.FromSlash(key)), nil
}

// Put writes payload to the file mapped from key.
func (f *Filesystem) Put(_ context.Context, key string, payload []byte, contentType string) (Info, error) {
	path, err := f.path(key)
	if err != nil {
		return Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return Info{}, fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o640); err != nil {
		return Info{}, fmt.Errorf("write object: %w", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{Key: key, Size: st.Size(), ContentType: contentType, LastModified: st.ModTime().UTC()}, nil
}

// Get reads the object mapped from key.
func (f *Filesystem) Get(_ context.Context, key string) (Info, []byte, error) {
	path, err := f.path(key)
	if err != nil {
		return Info{}, nil, err
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return Info{}, nil, fmt.Errorf("read object %s: %w", key, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, nil, err
	}
	return Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}, payload, nil
}

// List walks the root and returns objects whose keys start with prefix.
func (f *Filesystem) List(_ context.Context, prefix string) ([]Info, error) {
	var out []Info
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		st, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the object mapped from key, reporting whether it existed.
func (f *Filesystem) Delete(_ context.Context, key string) (bool, error) {
	path, err := f.path(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
