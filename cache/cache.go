// Package cache provides a TTL key-value cache for derived results.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// TTLs per result kind.
const (
	DefaultTTL     = 5 * time.Minute
	TranslationTTL = 10 * time.Minute
	GrammarTTL     = 30 * time.Minute
	DictionaryTTL  = time.Hour
	ImageTTL       = time.Hour

	// CleanupInterval is how often expired entries are purged.
	CleanupInterval = 5 * time.Minute
)

// Entry is a cached value with its lifetime.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (e *Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache is a badger-backed store with self-expiring entries.
// A nil *Cache is valid and always misses.
type Cache struct {
	db *badger.DB

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
}

// New opens a cache at path. An empty path keeps everything in memory.
func New(path string) (*Cache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Cache{db: db}, nil
}

// Start runs periodic cleanup until Close. Calling it twice is a no-op.
func (c *Cache) Start(interval time.Duration) {
	if c == nil {
		return
	}
	if interval <= 0 {
		interval = CleanupInterval
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go c.loop(interval, c.stop, c.done)
}

func (c *Cache) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := c.Purge()
			if err != nil {
				slog.Warn("purge cache", "error", err)
			} else if n > 0 {
				slog.Debug("purged cache", "removed", n)
			}
			if err := c.db.RunValueLogGC(0.5); err != nil &&
				!errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
				slog.Warn("cache value log gc", "error", err)
			}
		}
	}
}

// Close stops cleanup and closes the database.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	if c.started {
		close(c.stop)
		<-c.done
		c.started = false
	}
	c.mu.Unlock()

	return c.db.Close()
}

// Get returns the live entry for key.
func (c *Cache) Get(key string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}

	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			slog.Warn("read cache", "key", key, "error", err)
		}
		return nil, false
	}
	if entry.expired(time.Now()) {
		return nil, false
	}
	return &entry, true
}

// Set stores entry under key for ttl. A non-positive ttl uses DefaultTTL.
func (c *Cache) Set(key string, entry *Entry, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.ExpiresAt = now.Add(ttl)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	// Badger expiry has second granularity; round up so it never
	// drops an entry before ExpiresAt.
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data).WithTTL(ttl + time.Second)
		return txn.SetEntry(e)
	})
}

// GetJSON decodes the cached value for key into v.
func (c *Cache) GetJSON(key string, v any) bool {
	entry, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(entry.Data, v); err != nil {
		slog.Warn("decode cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON encodes v and stores it under key.
func (c *Cache) SetJSON(key string, v any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.Set(key, &Entry{Data: data}, ttl)
}

// Delete removes key.
func (c *Cache) Delete(key string) error {
	if c == nil {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	return c.db.DropAll()
}

// Purge deletes expired entries and returns how many were removed.
func (c *Cache) Purge() (int, error) {
	if c == nil {
		return 0, nil
	}

	now := time.Now()
	var stale [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry Entry
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil || entry.expired(now) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("delete expired: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}
	return len(stale), nil
}

// Len counts stored keys, including expired ones not yet purged.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	n := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Keys
// ─────────────────────────────────────────────────────────────────────────────

const keyTextPrefix = 100

// GenerateKey hashes parts into a fixed-length key.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TranslationKey derives the key of a single-shot translation from the
// source language, the sorted target set and the leading text.
func TranslationKey(source string, targets []string, text string) string {
	sorted := slices.Clone(targets)
	slices.Sort(sorted)
	return fmt.Sprintf("translation:%s:%s:%s", source, strings.Join(sorted, ","), prefix(text, keyTextPrefix))
}

// GrammarKey derives the key of a grammar correction.
func GrammarKey(text string) string {
	return "grammar:" + GenerateKey(text)
}

// DictionaryKey derives the key of a dictionary lookup.
func DictionaryKey(text, target string) string {
	return "dictionary:" + target + ":" + GenerateKey(text)
}

// ImageKey derives the key of an image analysis.
func ImageKey(imageURL, prompt string, languages []string) string {
	sorted := slices.Clone(languages)
	slices.Sort(sorted)
	return "image:" + GenerateKey(imageURL, prompt, strings.Join(sorted, ","))
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
