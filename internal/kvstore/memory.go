package kvstore

import (
	"sync"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
)

// MemoryStore keeps preferences in process memory. All browsing contexts that
// share one MemoryStore behave like tabs of the same storage origin.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string]string
	maxBytes int
	notifier notifier
}

// NewMemoryStore creates an empty store. maxBytes of 0 disables the quota.
func NewMemoryStore(maxBytes int) *MemoryStore {
	return &MemoryStore{
		data:     make(map[string]string),
		maxBytes: maxBytes,
	}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(origin, key, value string) error {
	s.mu.Lock()
	old, existed := s.data[key]
	if s.maxBytes > 0 {
		next := size(s.data) + len(key) + len(value)
		if existed {
			next -= len(key) + len(old)
		}
		if next > s.maxBytes {
			s.mu.Unlock()
			return rerrors.NewStorage(BackendMemory, key, rerrors.ErrQuotaExceeded)
		}
	}
	s.data[key] = value
	s.mu.Unlock()

	if !existed || old != value {
		s.notifier.notify(Change{Key: key, Value: value, Origin: origin})
	}
	return nil
}

func (s *MemoryStore) All() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(origin string, fn func(Change)) func() {
	return s.notifier.subscribe(origin, fn)
}

func (s *MemoryStore) Backend() string { return BackendMemory }

func (s *MemoryStore) Close() error {
	s.notifier.closeAll()
	return nil
}

// Unavailable is a store that refuses every operation, the way browser
// storage behaves when disabled or in some private browsing modes.
type Unavailable struct{}

func (Unavailable) Get(key string) (string, bool, error) {
	return "", false, rerrors.NewStorage(BackendNone, key, nil)
}

func (Unavailable) Set(origin, key, value string) error {
	return rerrors.NewStorage(BackendNone, key, nil)
}

func (Unavailable) All() (map[string]string, error) {
	return nil, rerrors.NewStorage(BackendNone, "", nil)
}

func (Unavailable) Subscribe(origin string, fn func(Change)) func() { return func() {} }

func (Unavailable) Backend() string { return BackendNone }

func (Unavailable) Close() error { return nil }
