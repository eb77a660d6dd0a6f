package exchange

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FileStore is the capability interface over the remote forecast file
// exchange. Names are slash-separated paths relative to the store root.
type FileStore interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Download(ctx context.Context, name string) ([]byte, error)
	Upload(ctx context.Context, name string, data []byte) error
}

// MemoryFileStore is an in-process FileStore used by tests.
type MemoryFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemoryFileStore creates an empty in-memory store.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: map[string][]byte{}}
}

func (s *MemoryFileStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for name := range s.files {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryFileStore) Download(_ context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("file %q not found", name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryFileStore) Upload(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.files[name] = stored
	return nil
}
