package db

import "sync"

// MemoryBackend keeps namespace documents in process memory. Used by tests
// and as a fallback when no durable path is configured. An optional byte
// quota makes the capacity path testable.
type MemoryBackend struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	quota int
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: map[string][]byte{}}
}

// NewMemoryBackendWithQuota caps the total stored bytes at quota.
func NewMemoryBackendWithQuota(quota int) *MemoryBackend {
	return &MemoryBackend{docs: map[string][]byte{}, quota: quota}
}

func (b *MemoryBackend) Read(namespace string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc, ok := b.docs[namespace]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), doc...), nil
}

func (b *MemoryBackend) Write(namespace string, doc []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.quota > 0 {
		total := len(doc)
		for name, d := range b.docs {
			if name != namespace {
				total += len(d)
			}
		}
		if total > b.quota {
			return ErrCapacity
		}
	}
	b.docs[namespace] = append([]byte(nil), doc...)
	return nil
}

func (b *MemoryBackend) Namespaces() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.docs))
	for name := range b.docs {
		names = append(names, name)
	}
	return names, nil
}

func (b *MemoryBackend) Close() error { return nil }
