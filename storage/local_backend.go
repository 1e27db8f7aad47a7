package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/karrick/godirwalk"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
)

// LocalBackend writes to a local filesystem destination root.
type LocalBackend struct {
	Root string

	mu       sync.RWMutex
	prewalked bool
	seen     map[string]struct{} // relative paths confirmed to exist, filled by Prewalk
}

var _ Backend = (*LocalBackend)(nil)

func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{Root: root}
}

func (b *LocalBackend) DestinationURI(targetKey string) string {
	return "file://" + filepath.Join(b.Root, targetKey)
}

func (b *LocalBackend) IsObjectStore() bool { return false }

func (b *LocalBackend) pathFor(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// Prewalk walks the destination root once with godirwalk (a faster
// alternative to filepath.Walk for large trees) and records every
// regular file it finds. Exists calls after Prewalk answer from this
// in-memory set instead of issuing one os.Stat per task -- this only
// pays off because the executor's incremental-skip phase probes many
// keys under the same root up front.
func (b *LocalBackend) Prewalk() error {
	seen := make(map[string]struct{}, 4096)
	err := godirwalk.Walk(b.Root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			isDir, err := de.IsDirOrSymlinkToDir()
			if err != nil || isDir {
				return nil //nolint:nilerr // unreadable entries just aren't "seen"
			}
			rel, err := filepath.Rel(b.Root, osPathname)
			if err != nil {
				return nil //nolint:nilerr
			}
			seen[rel] = struct{}{}
			return nil
		},
		ErrorCallback: func(_ string, _ error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
	if err != nil && !os.IsNotExist(err) {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	b.mu.Lock()
	b.seen = seen
	b.prewalked = true
	b.mu.Unlock()
	return nil
}

func (b *LocalBackend) Exists(_ context.Context, uri string) (bool, error) {
	p := b.pathFor(uri)
	b.mu.RLock()
	prewalked := b.prewalked
	seen := b.seen
	b.mu.RUnlock()
	if prewalked {
		rel, err := filepath.Rel(b.Root, p)
		if err == nil {
			_, ok := seen[rel]
			return ok, nil
		}
	}
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, cmn.Wrap(cmn.KindStorageError, err)
}

func (b *LocalBackend) Put(_ context.Context, uri string, _ int64, data Reader) error {
	p := b.pathFor(uri)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return cmn.Wrap(cmn.KindStorageError, fmt.Errorf("write %s: %w", p, err))
	}
	return nil
}

// DeleteBestEffort removes the file at uri, ignoring errors.
func (b *LocalBackend) DeleteBestEffort(_ context.Context, uri string) {
	_ = os.Remove(b.pathFor(uri))
}
