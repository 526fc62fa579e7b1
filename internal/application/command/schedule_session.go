package command

import (
	"context"
	"fmt"
	"time"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION SCHEDULING COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleSessionCommand adds a session to a group.
type ScheduleSessionCommand struct {
	GroupID  string
	Type     string
	Location string
	Begins   time.Time
	Ends     time.Time
}

// ScheduleSessionResult identifies the scheduled session.
type ScheduleSessionResult struct {
	GroupID   shared.GroupID
	SessionID shared.SessionID
}

// UpdateSessionCommand edits a session. Nil fields are left unchanged; when
// both bounds are given they are applied together.
type UpdateSessionCommand struct {
	GroupID   string
	SessionID string
	Type      *string
	Location  *string
	Begins    *time.Time
	Ends      *time.Time
}

// RemoveSessionCommand destroys one session.
type RemoveSessionCommand struct {
	GroupID   string
	SessionID string
}

// UnscheduleCommand destroys every session of a group.
type UnscheduleCommand struct {
	GroupID string
}

// SessionHandler handles the scheduling commands.
type SessionHandler struct {
	repo group.Repository
	deps Deps
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(repo group.Repository, deps Deps) *SessionHandler {
	return &SessionHandler{repo: repo, deps: deps.withDefaults()}
}

// HandleSchedule executes ScheduleSessionCommand.
func (h *SessionHandler) HandleSchedule(ctx context.Context, cmd ScheduleSessionCommand) (*ScheduleSessionResult, error) {
	gid, err := parseGroupID("ScheduleSession", cmd.GroupID)
	if err != nil {
		return nil, err
	}

	var sid shared.SessionID
	err = h.repo.Update(ctx, gid, func(g *group.Group) error {
		var err error
		sid, err = g.AddSession(group.SessionType(cmd.Type), cmd.Location, cmd.Begins, cmd.Ends)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session: %w", err)
	}

	h.deps.Logger.Info("session scheduled",
		logger.GroupID(gid.String()),
		logger.SessionID(sid.String()),
		logger.String("type", cmd.Type),
	)
	h.deps.publish(ctx, shared.NewSessionScheduledEvent(gid, sid, cmd.Begins, cmd.Ends, h.deps.now()))

	return &ScheduleSessionResult{GroupID: gid, SessionID: sid}, nil
}

// HandleUpdate executes UpdateSessionCommand. Either every change applies or
// none does.
func (h *SessionHandler) HandleUpdate(ctx context.Context, cmd UpdateSessionCommand) error {
	gid, err := parseGroupID("UpdateSession", cmd.GroupID)
	if err != nil {
		return err
	}
	sid, err := parseSessionID("UpdateSession", cmd.SessionID)
	if err != nil {
		return err
	}

	err = h.repo.Update(ctx, gid, func(g *group.Group) error {
		s, err := g.Session(sid)
		if err != nil {
			return err
		}

		if cmd.Type != nil {
			if err := g.RepurposeSession(sid, group.SessionType(*cmd.Type)); err != nil {
				return err
			}
		}
		if cmd.Location != nil {
			if err := g.RelocateSession(sid, *cmd.Location); err != nil {
				return err
			}
		}
		if cmd.Begins != nil || cmd.Ends != nil {
			begins, ends := s.Begins(), s.Ends()
			if cmd.Begins != nil {
				begins = *cmd.Begins
			}
			if cmd.Ends != nil {
				ends = *cmd.Ends
			}
			if err := g.RescheduleSession(sid, begins, ends); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	h.deps.Logger.Info("session updated", logger.GroupID(gid.String()), logger.SessionID(sid.String()))
	return nil
}

// HandleRemove executes RemoveSessionCommand.
func (h *SessionHandler) HandleRemove(ctx context.Context, cmd RemoveSessionCommand) error {
	gid, err := parseGroupID("RemoveSession", cmd.GroupID)
	if err != nil {
		return err
	}
	sid, err := parseSessionID("RemoveSession", cmd.SessionID)
	if err != nil {
		return err
	}

	err = h.repo.Update(ctx, gid, func(g *group.Group) error {
		if !g.RemoveSession(sid) {
			return shared.ErrSessionNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove session: %w", err)
	}

	h.deps.Logger.Info("session removed", logger.GroupID(gid.String()), logger.SessionID(sid.String()))
	return nil
}

// HandleUnschedule executes UnscheduleCommand.
func (h *SessionHandler) HandleUnschedule(ctx context.Context, cmd UnscheduleCommand) error {
	gid, err := parseGroupID("Unschedule", cmd.GroupID)
	if err != nil {
		return err
	}

	var removed int
	err = h.repo.Update(ctx, gid, func(g *group.Group) error {
		removed = len(g.Sessions())
		g.Unschedule()
		return nil
	})
	if err != nil {
		return fmt.Errorf("unschedule: %w", err)
	}

	h.deps.Logger.Info("group unscheduled", logger.GroupID(gid.String()), logger.Int("sessions", removed))
	return nil
}
