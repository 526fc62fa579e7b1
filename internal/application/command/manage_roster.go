package command

import (
	"context"
	"fmt"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// RosterCommand adds or removes one student.
type RosterCommand struct {
	GroupID   string
	StudentID string
}

// SetStudentsCommand replaces the whole roster.
type SetStudentsCommand struct {
	GroupID    string
	StudentIDs []string
}

// RosterResult reports the roster after the change.
type RosterResult struct {
	Changed    bool
	StudentIDs []shared.UserID
}

// RosterHandler handles roster commands.
type RosterHandler struct {
	repo group.Repository
	deps Deps
}

// NewRosterHandler creates a RosterHandler.
func NewRosterHandler(repo group.Repository, deps Deps) *RosterHandler {
	return &RosterHandler{repo: repo, deps: deps.withDefaults()}
}

// HandleAdd registers a student. Adding a registered student is a no-op.
func (h *RosterHandler) HandleAdd(ctx context.Context, cmd RosterCommand) (*RosterResult, error) {
	return h.mutate(ctx, "AddStudent", cmd, func(g *group.Group, id shared.UserID) bool {
		return g.AddStudent(id)
	})
}

// HandleRemove unregisters a student. Past attendances are kept.
func (h *RosterHandler) HandleRemove(ctx context.Context, cmd RosterCommand) (*RosterResult, error) {
	return h.mutate(ctx, "RemoveStudent", cmd, func(g *group.Group, id shared.UserID) bool {
		return g.RemoveStudent(id)
	})
}

// HandleSet replaces the roster; an empty roster is rejected.
func (h *RosterHandler) HandleSet(ctx context.Context, cmd SetStudentsCommand) (*RosterResult, error) {
	gid, err := parseGroupID("SetStudents", cmd.GroupID)
	if err != nil {
		return nil, err
	}
	students, err := parseUserIDs("SetStudents", cmd.StudentIDs)
	if err != nil {
		return nil, err
	}

	var result RosterResult
	err = h.repo.Update(ctx, gid, func(g *group.Group) error {
		if err := g.SetStudents(students); err != nil {
			return err
		}
		result = RosterResult{Changed: true, StudentIDs: g.StudentIDs()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set students: %w", err)
	}

	h.deps.Logger.Info("roster replaced", logger.GroupID(gid.String()), logger.Int("students", len(result.StudentIDs)))
	return &result, nil
}

func (h *RosterHandler) mutate(ctx context.Context, op string, cmd RosterCommand, fn func(*group.Group, shared.UserID) bool) (*RosterResult, error) {
	gid, err := parseGroupID(op, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	sid, err := parseUserID(op, "student id", cmd.StudentID)
	if err != nil {
		return nil, err
	}

	var result RosterResult
	err = h.repo.Update(ctx, gid, func(g *group.Group) error {
		result.Changed = fn(g, sid)
		result.StudentIDs = g.StudentIDs()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if result.Changed {
		h.deps.Logger.Info("roster changed",
			logger.GroupID(gid.String()),
			logger.UserID(sid.String()),
			logger.Operation(op),
		)
	}
	return &result, nil
}
