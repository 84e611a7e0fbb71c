package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and ephemeral deployments.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	info    Info
	payload []byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

// Driver reports the backend kind.
func (m *Memory) Driver() Driver { return DriverMemory }

// Put stores payload under key, overwriting any existing object.
func (m *Memory) Put(_ context.Context, key string, payload []byte, contentType string) (Info, error) {
	if key == "" {
		return Info{}, fmt.Errorf("empty key")
	}
	info := Info{
		Key:          key,
		Size:         int64(len(payload)),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}
	m.mu.Lock()
	m.objects[key] = memoryObject{info: info, payload: append([]byte(nil), payload...)}
	m.mu.Unlock()
	return info, nil
}

// Get returns the object stored under key.
func (m *Memory) Get(_ context.Context, key string) (Info, []byte, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return Info{}, nil, fmt.Errorf("object %s not found", key)
	}
	return obj.info, append([]byte(nil), obj.payload...), nil
}

// List returns objects whose keys start with prefix, ordered by key.
func (m *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.objects))
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the object under key, reporting whether it existed.
func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}
