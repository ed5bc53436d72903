package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tueje/internal/kv"
)

// Store keeps snapshots in process memory.
type Store struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

// NewFromFiles seeds the store from <key>.json files found in base. Missing
// or unreadable directories yield an empty store.
func NewFromFiles(base string) *Store {
	s := New()
	entries, err := os.ReadDir(base)
	if err != nil {
		return s
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(base, e.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable seed file", "file", e.Name(), "error", err)
			continue
		}
		s.items[strings.TrimSuffix(e.Name(), ".json")] = b
	}
	return s
}

func (s *Store) View(_ context.Context, fn func(kv.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.ErrClosed
	}
	return fn(reader(s.items))
}

func (s *Store) Update(_ context.Context, fn func(kv.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	tx := &tx{base: s.items, writes: map[string][]byte{}, deletes: map[string]struct{}{}}
	if err := fn(tx); err != nil {
		return err
	}
	for k := range tx.deletes {
		delete(s.items, k)
	}
	for k, v := range tx.writes {
		s.items[k] = v
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type reader map[string][]byte

func (r reader) Get(key string) ([]byte, bool, error) {
	v, ok := r[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// tx buffers writes so a failed Update leaves the store untouched.
type tx struct {
	base    map[string][]byte
	writes  map[string][]byte
	deletes map[string]struct{}
}

func (t *tx) Get(key string) ([]byte, bool, error) {
	if _, gone := t.deletes[key]; gone {
		return nil, false, nil
	}
	if v, ok := t.writes[key]; ok {
		return append([]byte(nil), v...), true, nil
	}
	return reader(t.base).Get(key)
}

func (t *tx) Put(key string, value []byte) error {
	delete(t.deletes, key)
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *tx) Delete(key string) error {
	delete(t.writes, key)
	t.deletes[key] = struct{}{}
	return nil
}
