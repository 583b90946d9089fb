// Package replay implements the single-use token-id ledger that prevents a
// capability token from being redeemed twice (§4.4).
package replay

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
)

var log = btclog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(logger btclog.Logger) { log = logger }

// Cache is a durable, single-writer, single-use token-id ledger, keyed by
// token_id and storing each entry's expiry. It is exclusively owned by the
// one executor process that mediates all reads/writes to it (§3 Ownership).
type Cache struct {
	mu   sync.Mutex
	path string
}

// NewCache returns a Cache backed by the JSON file at path. The file is not
// read until the first CheckAndAdd call.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// CheckAndAdd atomically purges expired entries, then inserts token_id if
// and only if it is not already present. It returns false if token_id was
// already present (a replay), true if the insertion succeeded (§4.4).
func (c *Cache) CheckAndAdd(tokenID []byte, expiresAt uint32, now int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return false, err
	}

	for k, exp := range entries {
		if int64(exp) < now {
			delete(entries, k)
		}
	}

	key := hexKey(tokenID)
	if _, present := entries[key]; present {
		log.Debugf("replay detected for token_id=%s", key)
		return false, nil
	}

	entries[key] = expiresAt
	if err := c.save(entries); err != nil {
		return false, err
	}
	log.Debugf("recorded token_id=%s expires_at=%d", key, expiresAt)
	return true, nil
}

func (c *Cache) load() (map[string]uint32, error) {
	entries := map[string]uint32{}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, errors.Errorf("replay cache: reading %s: %v", c.path, err)
	}
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		// A corrupt cache file is treated as empty rather than fatal,
		// mirroring the reference implementation's defensive load.
		log.Warnf("replay cache: ignoring unparsable file %s: %v", c.path, err)
		return map[string]uint32{}, nil
	}
	return entries, nil
}

// save rewrites the entire cache file via write-to-temp-then-rename, so a
// crash mid-write never yields a torn file (§4.4, §9).
func (c *Cache) save(entries map[string]uint32) error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Errorf("replay cache: creating directory: %v", err)
		}
	}

	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Errorf("replay cache: encoding: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".replay-cache-*.tmp")
	if err != nil {
		return errors.Errorf("replay cache: creating temp file: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Errorf("replay cache: writing temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("replay cache: closing temp file: %v", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return errors.Errorf("replay cache: renaming into place: %v", err)
	}
	return nil
}

func hexKey(tokenID []byte) string {
	return hex.EncodeToString(tokenID)
}
