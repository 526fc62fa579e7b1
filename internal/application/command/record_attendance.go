package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE COMMANDS
// Two paths record attendance:
//   - RedeemPass: the session redeems a code (Session.Attend).
//   - RecordAttendance: the group gatekeeps expiry, duplicates and roster
//     membership before recording (Group.Attend).
// Both land in the same session-scoped attendance set.
// ══════════════════════════════════════════════════════════════════════════════

// RedeemPassCommand redeems a pass code within a session.
type RedeemPassCommand struct {
	GroupID   string
	SessionID string
	Code      string
}

// AttendanceResult carries the recorded attendance.
type AttendanceResult struct {
	GroupID    shared.GroupID
	Attendance group.Attendance
}

// AttendanceHandler handles the attendance commands.
type AttendanceHandler struct {
	repo group.Repository
	deps Deps
}

// NewAttendanceHandler creates an AttendanceHandler.
func NewAttendanceHandler(repo group.Repository, deps Deps) *AttendanceHandler {
	return &AttendanceHandler{repo: repo, deps: deps.withDefaults()}
}

// HandleRedeem executes RedeemPassCommand.
func (h *AttendanceHandler) HandleRedeem(ctx context.Context, cmd RedeemPassCommand) (*AttendanceResult, error) {
	gid, sid, code, err := parseAttendanceInput("RedeemPass", cmd.GroupID, cmd.SessionID, cmd.Code)
	if err != nil {
		return nil, err
	}

	return h.record(ctx, "RedeemPass", gid, sid, func(g *group.Group, s *group.Session) (group.Attendance, error) {
		return s.Attend(code)
	})
}

// RecordAttendanceCommand records attendance through the group gatekeeper.
type RecordAttendanceCommand struct {
	GroupID   string
	SessionID string
	Code      string
}

// HandleRecord executes RecordAttendanceCommand.
func (h *AttendanceHandler) HandleRecord(ctx context.Context, cmd RecordAttendanceCommand) (*AttendanceResult, error) {
	gid, sid, code, err := parseAttendanceInput("RecordAttendance", cmd.GroupID, cmd.SessionID, cmd.Code)
	if err != nil {
		return nil, err
	}

	return h.record(ctx, "RecordAttendance", gid, sid, func(g *group.Group, s *group.Session) (group.Attendance, error) {
		pass, ok := s.FindPass(code)
		if !ok {
			return group.Attendance{}, shared.ErrInvalidPassCode
		}
		return g.Attend(pass)
	})
}

func (h *AttendanceHandler) record(
	ctx context.Context,
	op string,
	gid shared.GroupID,
	sid shared.SessionID,
	fn func(*group.Group, *group.Session) (group.Attendance, error),
) (*AttendanceResult, error) {
	var attendance group.Attendance
	err := group.UpdateKeepingPrunes(ctx, h.repo, gid, func(g *group.Group) error {
		s, err := g.Session(sid)
		if err != nil {
			return err
		}
		attendance, err = fn(g, s)
		return err
	})
	if err != nil {
		h.deps.Logger.Warn("attendance rejected",
			logger.GroupID(gid.String()),
			logger.SessionID(sid.String()),
			logger.Operation(op),
			logger.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	h.deps.Logger.Info("attendance recorded",
		logger.GroupID(gid.String()),
		logger.SessionID(sid.String()),
		logger.UserID(attendance.UserID.String()),
	)
	h.deps.publish(ctx, shared.NewAttendanceRecordedEvent(gid, sid, attendance.UserID, attendance.RecordedAt))

	return &AttendanceResult{GroupID: gid, Attendance: attendance}, nil
}

func parseAttendanceInput(op, rawGroup, rawSession, rawCode string) (shared.GroupID, shared.SessionID, string, error) {
	gid, err := parseGroupID(op, rawGroup)
	if err != nil {
		return "", "", "", err
	}
	sid, err := parseSessionID(op, rawSession)
	if err != nil {
		return "", "", "", err
	}
	code := strings.ToUpper(strings.TrimSpace(rawCode))
	if err := shared.NotBlank("command", op, "code", code); err != nil {
		return "", "", "", err
	}
	return gid, sid, code, nil
}
