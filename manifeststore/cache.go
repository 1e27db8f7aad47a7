package manifeststore

import (
	"strings"
	"time"

	"github.com/tidwall/buntdb"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
)

// ExistenceCache is a local, best-effort record of destination keys
// already known to exist, backed by BuntDB. The incremental-skip phase
// consults it before paying for a network round trip: a cache miss falls
// through to a live probe, while a cache hit is taken as "exists" without
// re-checking the destination until the entry's TTL expires. The Workflow
// Orchestrator wraps a Backend with one of these when a cache path is
// configured.
type ExistenceCache struct {
	db *buntdb.DB
}

const autoShrinkSize = 1 << 20 // 1MiB

// OpenExistenceCache opens (creating if absent) a BuntDB file at path.
// path == ":memory:" opens a process-local, non-persisted instance,
// useful for one-off runs that don't want to leave a cache file behind.
func OpenExistenceCache(path string) (*ExistenceCache, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.Wrap(cmn.KindStorageError, err)
	}
	db.SetConfig(buntdb.Config{
		SyncPolicy:           buntdb.EverySecond,
		AutoShrinkMinSize:    autoShrinkSize,
		AutoShrinkPercentage: 50,
	})
	return &ExistenceCache{db: db}, nil
}

func (c *ExistenceCache) Close() error { return c.db.Close() }

// Known reports whether uri was previously recorded as existing.
func (c *ExistenceCache) Known(uri string) bool {
	var found bool
	_ = c.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(uri)
		found = err == nil
		return nil
	})
	return found
}

// Record marks uri as confirmed to exist, with a TTL so a long-lived
// cache doesn't grow unbounded across many runs against the same
// destination.
func (c *ExistenceCache) Record(uri string, ttl time.Duration) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		opts := &buntdb.SetOptions{Expires: ttl > 0, TTL: ttl}
		_, _, err := tx.Set(uri, "1", opts)
		return err
	})
}

// Forget removes uri from the cache; called when a partial write is
// cleaned up at rest, so a stale cache hit doesn't mask the fact that
// the destination no longer has the object.
func (c *ExistenceCache) Forget(uri string) error {
	err := c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(uri)
		return err
	})
	if err != nil && err != buntdb.ErrNotFound {
		return cmn.Wrap(cmn.KindStorageError, err)
	}
	return nil
}

// CountPrefix returns how many cached keys start with prefix, mostly
// useful for diagnostics/tests.
func (c *ExistenceCache) CountPrefix(prefix string) int {
	n := 0
	_ = c.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, _ string) bool {
			if strings.HasPrefix(key, prefix) {
				n++
			}
			return true
		})
	})
	return n
}
