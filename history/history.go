// Package history keeps completed translations in a flat badger-backed list.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"go.aimuz.me/polyvox/internal/types"
)

// DefaultLimit caps the number of kept entries.
const DefaultLimit = 100

const keyPrefix = "history:"

// ErrNotFound is returned by Remove for unknown ids.
var ErrNotFound = errors.New("history entry not found")

// Store is safe for concurrent use.
type Store struct {
	db    *badger.DB
	limit int
	now   func() time.Time

	mu sync.Mutex
}

// Open opens a store at path. An empty path keeps entries in memory.
func Open(path string, limit int) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{db: db, limit: limit, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Add stores an entry built from a completed pass. Translations with blank
// text are dropped; when none remain nothing is stored and ok is false.
func (s *Store) Add(e types.HistoryEntry) (stored types.HistoryEntry, ok bool, err error) {
	if s == nil {
		return e, false, nil
	}

	e.InputText = strings.TrimSpace(e.InputText)
	e.Translations = slices.DeleteFunc(slices.Clone(e.Translations), func(t types.TranslationResult) bool {
		return strings.TrimSpace(t.Text) == ""
	})
	if e.InputText == "" || len(e.Translations) == 0 {
		return e, false, nil
	}

	e.ID = uuid.NewString()
	e.Timestamp = s.now().UnixMilli()

	data, err := json.Marshal(e)
	if err != nil {
		return e, false, fmt.Errorf("marshal history entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), data)
	})
	if err != nil {
		return e, false, fmt.Errorf("store history entry: %w", err)
	}
	if err := s.trim(); err != nil {
		return e, true, err
	}
	return e, true, nil
}

// List returns entries newest first.
func (s *Store) List() ([]types.HistoryEntry, error) {
	if s == nil {
		return nil, nil
	}

	var out []types.HistoryEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the last key with the prefix.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			var e types.HistoryEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

// Remove deletes the entry with id.
func (s *Store) Remove(id string) error {
	entries, err := s.List()
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(entries, func(e types.HistoryEntry) bool { return e.ID == id })
	if idx < 0 {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(entries[idx]))
	})
}

// Clear deletes every entry.
func (s *Store) Clear() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.DropPrefix([]byte(keyPrefix))
}

// trim drops the oldest entries beyond the limit. Callers hold s.mu.
func (s *Store) trim() error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for len(keys) > s.limit {
			if err := txn.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
		}
		return nil
	})
}

// entryKey orders entries by timestamp; the id breaks ties.
func entryKey(e types.HistoryEntry) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", keyPrefix, e.Timestamp, e.ID)
}
