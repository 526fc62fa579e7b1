// Package memory provides an in-process group repository for development
// and tests. State is kept as snapshots so callers never share memory with
// the stored aggregates.
package memory

import (
	"context"
	"sync"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
)

// GroupRepository implements group.Repository on a map guarded by a mutex.
// Update holds the lock for the whole callback, which serializes writers.
type GroupRepository struct {
	mu     sync.Mutex
	groups map[shared.GroupID]group.Snapshot
	opts   []group.Option
}

// NewGroupRepository creates an empty repository. The options are applied to
// every group it loads.
func NewGroupRepository(opts ...group.Option) *GroupRepository {
	return &GroupRepository{
		groups: make(map[shared.GroupID]group.Snapshot),
		opts:   opts,
	}
}

// Create implements group.Repository.
func (r *GroupRepository) Create(ctx context.Context, g *group.Group) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[g.ID()]; ok {
		return shared.ErrGroupAlreadyExists
	}
	if _, ok := r.findByCode(g.Code()); ok {
		return shared.ErrGroupAlreadyExists
	}

	r.groups[g.ID()] = g.Snapshot()
	return nil
}

// GetByID implements group.Repository.
func (r *GroupRepository) GetByID(ctx context.Context, id shared.GroupID) (*group.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	snap, ok := r.groups[id]
	r.mu.Unlock()

	if !ok {
		return nil, shared.ErrGroupNotFound
	}
	return group.FromSnapshot(snap, r.opts...)
}

// GetByCode implements group.Repository.
func (r *GroupRepository) GetByCode(ctx context.Context, code group.GroupCode) (*group.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	snap, ok := r.findByCode(code)
	r.mu.Unlock()

	if !ok {
		return nil, shared.ErrGroupNotFound
	}
	return group.FromSnapshot(snap, r.opts...)
}

// Update implements group.Repository.
func (r *GroupRepository) Update(ctx context.Context, id shared.GroupID, fn func(g *group.Group) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.groups[id]
	if !ok {
		return shared.ErrGroupNotFound
	}

	g, err := group.FromSnapshot(snap, r.opts...)
	if err != nil {
		return err
	}

	if err := fn(g); err != nil {
		return err
	}

	if other, ok := r.findByCode(g.Code()); ok && other.ID != id {
		return shared.ErrGroupAlreadyExists
	}

	r.groups[id] = g.Snapshot()
	return nil
}

// Delete implements group.Repository.
func (r *GroupRepository) Delete(ctx context.Context, id shared.GroupID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.groups[id]; !ok {
		return shared.ErrGroupNotFound
	}
	delete(r.groups, id)
	return nil
}

// Len returns the number of stored groups.
func (r *GroupRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func (r *GroupRepository) findByCode(code group.GroupCode) (group.Snapshot, bool) {
	for _, snap := range r.groups {
		if snap.Code == code {
			return snap, true
		}
	}
	return group.Snapshot{}, false
}
