package management

import (
	"fmt"
	"sort"
	"sync"

	bolt "go.etcd.io/bbolt"

	"docguard/internal/logger"
)

// WordStore persists operator keywords across restarts, keyed by their
// lower-cased form. Implementations must be safe for concurrent use.
type WordStore interface {
	// Put stores word under key, replacing any previous spelling.
	Put(key, word string) error
	Delete(key string) error
	// Load returns every stored word, ordered by key.
	Load() ([]string, error)
	Close() error
}

// --- memoryStore ---------------------------------------------------------

// memoryStore keeps words in memory only. Used in tests and when no
// database path is configured.
type memoryStore struct {
	mu    sync.RWMutex
	words map[string]string
}

// NewMemoryStore returns a WordStore that forgets everything on exit.
func NewMemoryStore() WordStore {
	return &memoryStore{words: make(map[string]string)}
}

func (s *memoryStore) Put(key, word string) error {
	s.mu.Lock()
	s.words[key] = word
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.words, key)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Load() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.words))
	for k := range s.words {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.words[k]
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

// --- boltStore -----------------------------------------------------------

const vocabularyBucket = "vocabulary"

// boltStore is a WordStore backed by an embedded bbolt database.
type boltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the bbolt database at path and ensures
// the vocabulary bucket exists.
func OpenBoltStore(path string, log *logger.Logger) (WordStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary db %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(vocabularyBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create vocabulary bucket: %w", err)
	}

	if log != nil {
		log.Infof("store_open", "vocabulary db opened at %s", path)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Put(key, word string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(vocabularyBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", vocabularyBucket)
		}
		return b.Put([]byte(key), []byte(word))
	})
}

func (s *boltStore) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(vocabularyBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Load walks the bucket in key order, which bbolt keeps sorted.
func (s *boltStore) Load() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(vocabularyBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			out = append(out, string(v))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	return out, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
