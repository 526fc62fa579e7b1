package query

import (
	"context"
	"fmt"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
)

// ListAttendancesQuery lists a group's attendances. StudentID and SessionID
// narrow the result; both may be set.
type ListAttendancesQuery struct {
	GroupID   string
	StudentID string
	SessionID string
}

// AttendancesHandler serves the group-level attendance projection.
type AttendancesHandler struct {
	repo group.Repository
}

// NewAttendancesHandler creates an AttendancesHandler.
func NewAttendancesHandler(repo group.Repository) *AttendancesHandler {
	return &AttendancesHandler{repo: repo}
}

// Handle executes ListAttendancesQuery.
func (h *AttendancesHandler) Handle(ctx context.Context, q ListAttendancesQuery) ([]AttendanceView, error) {
	gid, err := shared.ParseGroupID(q.GroupID)
	if err != nil {
		return nil, err
	}

	var (
		studentID shared.UserID
		sessionID shared.SessionID
	)
	if q.StudentID != "" {
		if studentID, err = shared.ParseUserID(q.StudentID); err != nil {
			return nil, err
		}
	}
	if q.SessionID != "" {
		if sessionID, err = shared.ParseSessionID(q.SessionID); err != nil {
			return nil, err
		}
	}

	g, err := h.repo.GetByID(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("list attendances: %w", err)
	}

	var attendances []group.Attendance
	switch {
	case !sessionID.IsEmpty():
		attendances = g.AttendancesOfSession(sessionID)
	case !studentID.IsEmpty():
		attendances = g.AttendancesOfStudent(studentID)
	default:
		attendances = g.Attendances()
	}

	if !sessionID.IsEmpty() && !studentID.IsEmpty() {
		filtered := attendances[:0]
		for _, a := range attendances {
			if a.UserID == studentID {
				filtered = append(filtered, a)
			}
		}
		attendances = filtered
	}

	return newAttendanceViews(attendances), nil
}
