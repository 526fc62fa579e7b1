package query

import (
	"context"
	"fmt"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET GROUP QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// GetGroupQuery loads a group by id.
type GetGroupQuery struct {
	GroupID string
}

// GetGroupByCodeQuery loads a group by its shareable code.
type GetGroupByCodeQuery struct {
	Code string
}

// GetGroupHandler serves group lookups. The code index is consulted first
// and refilled on a miss.
type GetGroupHandler struct {
	repo  group.Repository
	index group.CodeIndex
	log   *logger.Logger
}

// NewGetGroupHandler creates a GetGroupHandler. index and log may be nil.
func NewGetGroupHandler(repo group.Repository, index group.CodeIndex, log *logger.Logger) *GetGroupHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetGroupHandler{repo: repo, index: index, log: log}
}

// Handle executes GetGroupQuery.
func (h *GetGroupHandler) Handle(ctx context.Context, q GetGroupQuery) (*GroupView, error) {
	id, err := shared.ParseGroupID(q.GroupID)
	if err != nil {
		return nil, err
	}

	g, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}

	view := newGroupView(g)
	return &view, nil
}

// HandleByCode executes GetGroupByCodeQuery.
func (h *GetGroupHandler) HandleByCode(ctx context.Context, q GetGroupByCodeQuery) (*GroupView, error) {
	code, err := group.ParseCode(q.Code)
	if err != nil {
		return nil, err
	}

	if g := h.fromIndex(ctx, code); g != nil {
		view := newGroupView(g)
		return &view, nil
	}

	g, err := h.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get group by code: %w", err)
	}

	if h.index != nil {
		if err := h.index.Put(ctx, code, g.ID()); err != nil {
			h.log.Warn("code index refill failed", logger.GroupCode(code.String()), logger.Err(err))
		}
	}

	view := newGroupView(g)
	return &view, nil
}

// fromIndex resolves code through the index. Stale or unreadable entries
// fall through to the repository.
func (h *GetGroupHandler) fromIndex(ctx context.Context, code group.GroupCode) *group.Group {
	if h.index == nil {
		return nil
	}

	id, ok, err := h.index.Lookup(ctx, code)
	if err != nil {
		h.log.Warn("code index lookup failed", logger.GroupCode(code.String()), logger.Err(err))
		return nil
	}
	if !ok {
		return nil
	}

	g, err := h.repo.GetByID(ctx, id)
	if err != nil || g.Code() != code {
		_ = h.index.Remove(ctx, code)
		return nil
	}
	return g
}
