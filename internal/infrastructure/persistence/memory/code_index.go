package memory

import (
	"context"
	"sync"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
)

// CodeIndex is a map-backed group.CodeIndex.
type CodeIndex struct {
	mu      sync.RWMutex
	entries map[group.GroupCode]shared.GroupID
}

// NewCodeIndex creates an empty CodeIndex.
func NewCodeIndex() *CodeIndex {
	return &CodeIndex{entries: make(map[group.GroupCode]shared.GroupID)}
}

// Put implements group.CodeIndex.
func (i *CodeIndex) Put(_ context.Context, code group.GroupCode, id shared.GroupID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.entries[code] = id
	return nil
}

// Lookup implements group.CodeIndex.
func (i *CodeIndex) Lookup(_ context.Context, code group.GroupCode) (shared.GroupID, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	id, ok := i.entries[code]
	return id, ok, nil
}

// Remove implements group.CodeIndex.
func (i *CodeIndex) Remove(_ context.Context, code group.GroupCode) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.entries, code)
	return nil
}
