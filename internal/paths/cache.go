package paths

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketName    = "path_resolutions"
	cacheFileName = "paths.db"
)

// Cache persists path resolutions between runs, keyed by snapshot root and
// normalized legacy path.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (or creates) the cache database inside dir.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(filepath.Join(dir, cacheFileName), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open path cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(root, normalized string) []byte {
	return []byte(root + "\x00" + normalized)
}

// Get returns a cached resolution.
func (c *Cache) Get(root, normalized string) (Resolution, bool) {
	var res Resolution
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		data := bucket.Get(cacheKey(root, normalized))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &res); err != nil {
			return err
		}
		found = true
		return nil
	})
	return res, found
}

// Put stores a resolution.
func (c *Cache) Put(root, normalized string, res Resolution) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		data, err := json.Marshal(res)
		if err != nil {
			return err
		}
		return bucket.Put(cacheKey(root, normalized), data)
	})
}

// Reset drops every resolution recorded for root. Scans call it so the
// cache never outlives the snapshot contents it was computed from.
func (c *Cache) Reset(root string) (int, error) {
	removed := 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		prefix := []byte(root + "\x00")
		var keys [][]byte
		cur := bucket.Cursor()
		for k, _ := cur.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cur.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
