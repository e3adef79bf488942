// Package cache provides persistent state shared between packaging runs.
//
// Two kinds of data live in one BoltDB file:
//
//  1. Minified sources, keyed by an xxh3 hash of the original content. A new
//     upstream release usually changes only a handful of files, so most of the
//     vendor tree is served from here on rebuilds.
//  2. Build history: one Record per successful archive.
//
// Cache misses and store failures never fail a build; the minifier is simply
// run again.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DefaultCacheDir is the default cache directory name
	DefaultCacheDir = ".pharpack-cache"

	minifiedBucket = "minified"
	buildsBucket   = "builds"
)

var buckets = []string{minifiedBucket, buildsBucket}

// Cache manages minified sources and build history using BoltDB
type Cache struct {
	db   *bbolt.DB
	root string // Root directory for cache (.pharpack-cache/)

	hits   int
	misses int
}

// New creates a new cache instance
// If cacheDir is empty, uses DefaultCacheDir in current working directory
func New(cacheDir string) (*Cache, error) {
	if cacheDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}

		cacheDir = filepath.Join(cwd, DefaultCacheDir)
	}

	// Ensure cache directory exists
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Open BoltDB
	dbPath := filepath.Join(cacheDir, "cache.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache buckets: %w", err)
	}

	return &Cache{
		db:   db,
		root: cacheDir,
	}, nil
}

// Close closes the cache database
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}

	return nil
}

// Dir returns the cache directory
func (c *Cache) Dir() string {
	return c.root
}

// GetMinified returns the cached minified form of content
// The second return value is false on a cache miss
func (c *Cache) GetMinified(content []byte) ([]byte, bool, error) {
	key := ContentKey(content)

	var out []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(minifiedBucket)).Get([]byte(key))
		if data != nil {
			// bbolt memory is only valid inside the transaction
			out = append([]byte{}, data...)
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return out, out != nil, nil
}

// PutMinified stores the minified form of content
func (c *Cache) PutMinified(content, minified []byte) error {
	key := ContentKey(content)

	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(minifiedBucket)).Put([]byte(key), minified)
	})
}

// Memoize wraps a minifier so results are served from and stored in the cache.
// Cache errors are reported to onError (if non-nil) and the minifier runs as usual.
func (c *Cache) Memoize(fn func([]byte) []byte, onError func(error)) func([]byte) []byte {
	report := func(err error) {
		if onError != nil {
			onError(err)
		}
	}

	return func(content []byte) []byte {
		cached, ok, err := c.GetMinified(content)
		if err != nil {
			report(fmt.Errorf("failed to read minify cache: %w", err))
		}

		if ok {
			c.hits++
			return cached
		}

		c.misses++

		out := fn(content)
		if err := c.PutMinified(content, out); err != nil {
			report(fmt.Errorf("failed to write minify cache: %w", err))
		}

		return out
	}
}

// Hits returns how many Memoize lookups were served from the cache
func (c *Cache) Hits() int {
	return c.hits
}

// Misses returns how many Memoize lookups ran the minifier
func (c *Cache) Misses() int {
	return c.misses
}

// Append records a finished build, filling in its ID
func (c *Cache) Append(r Record) (Record, error) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}

	r.ID = RecordID(r.Digest, r.Timestamp)

	data, err := json.Marshal(r)
	if err != nil {
		return r, err
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(buildsBucket)).Put(recordKey(r), data)
	})
	if err != nil {
		return r, fmt.Errorf("failed to store build record: %w", err)
	}

	return r, nil
}

// History returns recorded builds, newest first
// A limit of zero or less returns every record
func (c *Cache) History(limit int) ([]Record, error) {
	var records []Record

	err := c.db.View(func(tx *bbolt.Tx) error {
		cur := tx.Bucket([]byte(buildsBucket)).Cursor()

		for k, v := cur.Last(); k != nil; k, v = cur.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}

			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to decode build record %s: %w", k, err)
			}

			records = append(records, r)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Stats summarizes the cache contents
type Stats struct {
	Minified int
	Builds   int
	Size     int64
}

// Stats returns cache statistics
func (c *Cache) Stats() (Stats, error) {
	var s Stats

	err := c.db.View(func(tx *bbolt.Tx) error {
		s.Minified = tx.Bucket([]byte(minifiedBucket)).Stats().KeyN
		s.Builds = tx.Bucket([]byte(buildsBucket)).Stats().KeyN
		s.Size = tx.Size()
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	return s, nil
}

// Clear removes all minified sources and build records
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}

			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return err
			}
		}

		return nil
	})
}
