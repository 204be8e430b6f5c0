package mem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warriorguo/nodesync/store"
)

var (
	_ store.Store = &memStore{}
)

const separator = "|"

func NewMemStore() store.Store {
	return NewMemStoreWithErrHandler(nil)
}

// NewMemStoreWithErrHandler returns a store whose every call also returns
// the result of errHandler, so tests can inject failures.
func NewMemStoreWithErrHandler(errHandler func() error) store.Store {
	if errHandler == nil {
		errHandler = func() error { return nil }
	}
	return &memStore{
		values:     make(map[string][]byte),
		errHandler: errHandler,
	}
}

/**
 * memStore keeps records in a map, for tests and single process setups
 * where losing the records on restart is fine.
 */
type memStore struct {
	mu sync.Mutex

	errHandler func() error
	values     map[string][]byte
}

func (m *memStore) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sb strings.Builder
	for _, key := range m.sortedKeysLocked() {
		fmt.Fprintf(&sb, "%s: %s\n", key, m.values[key])
	}
	return sb.String()
}

func (m *memStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, exists := m.values[prefix+separator+key]
	if !exists {
		return nil, m.errHandler()
	}
	return append([]byte(nil), value...), m.errHandler()
}

func (m *memStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[prefix+separator+key] = append([]byte(nil), value...)
	return m.errHandler()
}

func (m *memStore) Remove(ctx context.Context, prefix, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, prefix+separator+key)
	return m.errHandler()
}

// List walks keys in order. The iterator runs without the lock held so it
// may call back into the store.
func (m *memStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	m.mu.Lock()
	prefix += separator
	matched := make([]string, 0)
	for _, key := range m.sortedKeysLocked() {
		if rest, found := strings.CutPrefix(key, prefix); found {
			matched = append(matched, rest)
		}
	}
	m.mu.Unlock()

	for _, key := range matched {
		if !iterator(key) {
			break
		}
	}
	return m.errHandler()
}

func (m *memStore) sortedKeysLocked() []string {
	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
