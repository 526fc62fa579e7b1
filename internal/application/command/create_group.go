package command

import (
	"context"
	"fmt"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GROUP LIFECYCLE COMMANDS
// Create, rename and delete study groups. The code index is refreshed after
// every change that affects the GroupCode.
// ══════════════════════════════════════════════════════════════════════════════

// CreateGroupCommand creates a study group with an optional initial roster.
type CreateGroupCommand struct {
	Name       string
	StudentIDs []string
}

// CreateGroupResult describes the created group.
type CreateGroupResult struct {
	GroupID shared.GroupID
	Code    group.GroupCode
	Name    string
}

// RenameGroupCommand changes the display name. The code is kept unless
// RecomputeCode is set.
type RenameGroupCommand struct {
	GroupID       string
	Name          string
	RecomputeCode bool
}

// DeleteGroupCommand destroys a group together with its sessions.
type DeleteGroupCommand struct {
	GroupID string
}

// GroupHandler handles the group lifecycle commands.
type GroupHandler struct {
	repo  group.Repository
	index group.CodeIndex
	opts  []group.Option
	deps  Deps
}

// NewGroupHandler creates a GroupHandler. index may be nil.
func NewGroupHandler(repo group.Repository, index group.CodeIndex, deps Deps, opts ...group.Option) *GroupHandler {
	return &GroupHandler{repo: repo, index: index, opts: opts, deps: deps.withDefaults()}
}

// HandleCreate executes CreateGroupCommand.
func (h *GroupHandler) HandleCreate(ctx context.Context, cmd CreateGroupCommand) (*CreateGroupResult, error) {
	students, err := parseUserIDs("CreateGroup", cmd.StudentIDs)
	if err != nil {
		return nil, err
	}

	g, err := group.New(cmd.Name, h.opts...)
	if err != nil {
		return nil, err
	}
	for _, id := range students {
		g.AddStudent(id)
	}

	if err := h.repo.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}

	h.indexPut(ctx, g.Code(), g.ID())

	h.deps.Logger.Info("group created",
		logger.GroupID(g.ID().String()),
		logger.GroupCode(g.Code().String()),
		logger.Int("students", len(students)),
	)
	h.deps.publish(ctx, shared.NewGroupCreatedEvent(g.ID(), g.Code().String(), g.Name(), h.deps.now()))

	return &CreateGroupResult{GroupID: g.ID(), Code: g.Code(), Name: g.Name()}, nil
}

// HandleRename executes RenameGroupCommand.
func (h *GroupHandler) HandleRename(ctx context.Context, cmd RenameGroupCommand) (*CreateGroupResult, error) {
	id, err := parseGroupID("RenameGroup", cmd.GroupID)
	if err != nil {
		return nil, err
	}

	var (
		oldCode group.GroupCode
		result  CreateGroupResult
	)
	err = h.repo.Update(ctx, id, func(g *group.Group) error {
		oldCode = g.Code()
		if err := g.Rename(cmd.Name); err != nil {
			return err
		}
		if cmd.RecomputeCode {
			g.RecomputeCode()
		}
		result = CreateGroupResult{GroupID: g.ID(), Code: g.Code(), Name: g.Name()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rename group: %w", err)
	}

	if oldCode != result.Code {
		h.indexRemove(ctx, oldCode)
		h.indexPut(ctx, result.Code, result.GroupID)
	}

	h.deps.Logger.Info("group renamed",
		logger.GroupID(id.String()),
		logger.GroupCode(result.Code.String()),
	)
	return &result, nil
}

// HandleDelete executes DeleteGroupCommand.
func (h *GroupHandler) HandleDelete(ctx context.Context, cmd DeleteGroupCommand) error {
	id, err := parseGroupID("DeleteGroup", cmd.GroupID)
	if err != nil {
		return err
	}

	g, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if err := h.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}

	h.indexRemove(ctx, g.Code())
	h.deps.Logger.Info("group deleted", logger.GroupID(id.String()))
	return nil
}

func (h *GroupHandler) indexPut(ctx context.Context, code group.GroupCode, id shared.GroupID) {
	if h.index == nil {
		return
	}
	if err := h.index.Put(ctx, code, id); err != nil {
		h.deps.Logger.Warn("code index update failed", logger.GroupCode(code.String()), logger.Err(err))
	}
}

func (h *GroupHandler) indexRemove(ctx context.Context, code group.GroupCode) {
	if h.index == nil {
		return
	}
	if err := h.index.Remove(ctx, code); err != nil {
		h.deps.Logger.Warn("code index removal failed", logger.GroupCode(code.String()), logger.Err(err))
	}
}
