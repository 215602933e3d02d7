// Package mtimecache implements ravel's mtime-indexed hash cache: a single-
// table SQLite database, opened in WAL mode, mapping an absolute path to the
// mtime/hash/size last observed for it. It is grounded in the teacher-pack's
// database.go (mattcburns-shoal-provision/internal/database), adapted from a
// multi-table provisioning schema down to the one table this cache needs.
package mtimecache

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ravel-dvc/ravel/internal/rverr"
)

// Row is one mtime-cache entry: a cache hint, never authoritative.
type Row struct {
	Path      string
	Mtime     float64
	Hash      string
	Size      int64
	UpdatedAt float64
}

// Cache is a handle to the mtime hash cache's backing database. Each Cache
// holds one *sql.DB; database/sql's own connection pool, combined with the
// WAL journal mode, gives concurrent readers and a single serialized writer
// without any additional locking in this package.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path in WAL
// mode with a bounded busy-timeout, realizing spec.md §4.B's "writer
// contention uses a lock with a bounded wait (default 30s)" requirement as
// a SQLite pragma rather than application-level retry logic.
func Open(path string) (*Cache, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open mtime cache database: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *Cache) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS mtime_cache (
    path       TEXT PRIMARY KEY,
    mtime      REAL NOT NULL,
    hash       TEXT NOT NULL,
    size       INTEGER NOT NULL,
    updated_at REAL NOT NULL
);`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("unable to migrate mtime cache schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get looks up path, returning (nil, nil) if no row exists.
func (c *Cache) Get(path string) (*Row, error) {
	row := c.db.QueryRow(
		`SELECT path, mtime, hash, size, updated_at FROM mtime_cache WHERE path = ?`,
		path,
	)
	var r Row
	if err := row.Scan(&r.Path, &r.Mtime, &r.Hash, &r.Size, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to query mtime cache: %w", err)
	}
	return &r, nil
}

// Put inserts or replaces the row for path.
func (c *Cache) Put(path string, mtime float64, hash string, size int64) error {
	now := float64(time.Now().UnixNano()) / 1e9
	_, err := c.db.Exec(
		`INSERT INTO mtime_cache (path, mtime, hash, size, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, hash = excluded.hash,
		     size = excluded.size, updated_at = excluded.updated_at`,
		path, mtime, hash, size, now,
	)
	if err != nil {
		return fmt.Errorf("unable to write mtime cache row: %w", err)
	}
	return nil
}

// Delete removes the row for path, reporting whether one existed.
func (c *Cache) Delete(path string) (bool, error) {
	result, err := c.db.Exec(`DELETE FROM mtime_cache WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("unable to delete mtime cache row: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unable to determine rows affected: %w", err)
	}
	return affected > 0, nil
}

// Clear removes every row, returning the number removed.
func (c *Cache) Clear() (int64, error) {
	result, err := c.db.Exec(`DELETE FROM mtime_cache`)
	if err != nil {
		return 0, fmt.Errorf("unable to clear mtime cache: %w", err)
	}
	return result.RowsAffected()
}

// Hasher computes a (hash, size) pair for a path, as provided by
// internal/objhash.Hash.
type Hasher func(path string) (hash string, size int64, err error)

// HashCached implements spec.md §4.B's hash_cached consumer protocol: stat
// the path; on a cache hit with a matching mtime, return the cached row;
// otherwise rehash, update the cache, and return the fresh value. The cache
// is advisory only — a stale or wrong row is corrected on the next rehash,
// never treated as ground truth beyond the mtime comparison that gates it.
func (c *Cache) HashCached(path string, hasher Hasher) (hash string, size int64, cached bool, err error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", 0, false, &rverr.NotFound{Path: path}
		}
		return "", 0, false, statErr
	}
	currentMtime := float64(info.ModTime().UnixNano()) / 1e9

	row, err := c.Get(path)
	if err != nil {
		return "", 0, false, err
	}
	if row != nil && row.Mtime == currentMtime {
		return row.Hash, row.Size, true, nil
	}

	hash, size, err = hasher(path)
	if err != nil {
		return "", 0, false, err
	}
	if err := c.Put(path, currentMtime, hash, size); err != nil {
		return "", 0, false, err
	}
	return hash, size, false, nil
}
