package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalStore implements ObjectStorage using the local filesystem.
// This is primarily used for testing and development.
type LocalStore struct {
	basePath string
	mu       sync.RWMutex
	etags    map[string]string
}

// NewLocalStore creates a new local filesystem store rooted at basePath.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &LocalStore{
		basePath: basePath,
		etags:    make(map[string]string),
	}, nil
}

// Get returns the object's bytes and its etag.
func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("%w: %v", ErrGetFailed, err)
	}

	l.mu.RLock()
	etag := l.etags[key]
	l.mu.RUnlock()
	if etag == "" {
		// Object predates this process; derive the etag from content.
		etag = contentETag(data)
		l.mu.Lock()
		l.etags[key] = etag
		l.mu.Unlock()
	}
	return data, etag, nil
}

// Put stores the object unconditionally.
func (l *LocalStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	return l.PutIf(ctx, key, data, "")
}

// PutIf stores the object only when the current etag matches expected.
func (l *LocalStore) PutIf(ctx context.Context, key string, data []byte, expected string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if expected != "" {
		current, exists := l.etags[key]
		if !exists || current != expected {
			return "", ErrPreconditionFailed
		}
	}

	fullPath := l.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPutFailed, err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPutFailed, err)
	}

	etag := contentETag(data)
	l.etags[key] = etag
	return etag, nil
}

// Delete removes an object. Missing objects are ignored, matching S3.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(l.fullPath(key)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}

	l.mu.Lock()
	delete(l.etags, key)
	l.mu.Unlock()
	return nil
}

// Exists checks if an object exists in local storage.
func (l *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(l.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns all keys under the given prefix.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := filepath.Walk(l.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Clear removes all objects. This is useful for test cleanup.
func (l *LocalStore) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.RemoveAll(l.basePath); err != nil {
		return err
	}
	if err := os.MkdirAll(l.basePath, 0755); err != nil {
		return err
	}
	l.etags = make(map[string]string)
	return nil
}

func (l *LocalStore) fullPath(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

func contentETag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
