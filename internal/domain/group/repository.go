package group

import (
	"context"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists Group aggregates together with their sessions.
type Repository interface {
	// Create stores a new group.
	// Returns shared.ErrGroupAlreadyExists if the id or code is taken.
	Create(ctx context.Context, g *Group) error

	// GetByID loads a group.
	// Returns shared.ErrGroupNotFound if the group does not exist.
	GetByID(ctx context.Context, id shared.GroupID) (*Group, error)

	// GetByCode loads a group by its lookup code.
	// Returns shared.ErrGroupNotFound if no group carries the code.
	GetByCode(ctx context.Context, code GroupCode) (*Group, error)

	// Update loads the group, runs fn and persists the result in one
	// transaction. Concurrent updates of the same group are serialized.
	// Nothing is persisted when fn returns an error.
	Update(ctx context.Context, id shared.GroupID, fn func(g *Group) error) error

	// Delete removes the group and cascades to its sessions.
	// Returns shared.ErrGroupNotFound if the group does not exist.
	Delete(ctx context.Context, id shared.GroupID) error
}

// CodeIndex caches GroupCode to GroupID lookups in front of the repository.
// It may lose entries at any time; the repository stays authoritative.
type CodeIndex interface {
	Put(ctx context.Context, code GroupCode, id shared.GroupID) error
	Lookup(ctx context.Context, code GroupCode) (shared.GroupID, bool, error)
	Remove(ctx context.Context, code GroupCode) error
}

// UpdateKeepingPrunes is Update for pass and attendance transitions. When fn
// is rejected with a state conflict the group is still saved, so expired
// passes pruned during fn stay pruned, and the conflict is returned after
// the commit. Pass and attendance operations change nothing but expired
// passes before they reject.
func UpdateKeepingPrunes(ctx context.Context, repo Repository, id shared.GroupID, fn func(g *Group) error) error {
	var rejected error
	err := repo.Update(ctx, id, func(g *Group) error {
		if err := fn(g); err != nil {
			if !shared.IsStateConflict(err) {
				return err
			}
			rejected = err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return rejected
}
