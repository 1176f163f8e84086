package api

import (
	"sort"
	"strings"
	"sync"
)

// ResourceKeyHeader carries resource keys for files shared by link
const ResourceKeyHeader = "X-Goog-Drive-Resource-Keys"

// ResourceKeyManager remembers resource keys seen in share links and API responses
type ResourceKeyManager struct {
	mu    sync.RWMutex
	cache map[string]string
}

func NewResourceKeyManager() *ResourceKeyManager {
	return &ResourceKeyManager{cache: make(map[string]string)}
}

// AddKey records the resource key for fileID; empty keys are ignored
func (m *ResourceKeyManager) AddKey(fileID, resourceKey string) {
	if fileID == "" || resourceKey == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[fileID] = resourceKey
}

func (m *ResourceKeyManager) GetKey(fileID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.cache[fileID]
	return key, ok
}

// BuildHeader returns the header value for the given files, or "" when none has a key
func (m *ResourceKeyManager) BuildHeader(fileIDs ...string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pairs []string
	for _, id := range fileIDs {
		if key, ok := m.cache[id]; ok {
			pairs = append(pairs, id+"/"+key)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}
