package credential

import "context"

// memoryBackend is a volatile, process-local backend. It satisfies the
// backend interface so other packages' tests can build a real Store
// without touching the filesystem or an OS keyring.
type memoryBackend struct {
	n     string
	items map[Key]string
}

func newMemoryBackend(n string) *memoryBackend {
	return &memoryBackend{n: n, items: map[Key]string{}}
}

func (m *memoryBackend) name() string { return m.n }

func (m *memoryBackend) store(_ context.Context, key Key, value string) error {
	m.items[key] = value
	return nil
}

func (m *memoryBackend) retrieve(_ context.Context, key Key) (string, error) {
	v, ok := m.items[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryBackend) delete(_ context.Context, key Key) error {
	delete(m.items, key)
	return nil
}

func (m *memoryBackend) list(_ context.Context) ([]Key, error) {
	keys := make([]Key, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	return keys, nil
}

// NewInMemoryForTest builds a Store backed entirely by volatile in-memory
// tiers, for use by other packages' tests that need a working Store
// without persistence.
func NewInMemoryForTest() (*Store, error) {
	return New("keyring", newMemoryBackend("keyring"), newMemoryBackend("encrypted"), newMemoryBackend("plain"))
}
