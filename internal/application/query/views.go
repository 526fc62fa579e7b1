// Package query contains read operations (CQRS - Queries).
package query

import (
	"time"

	"github.com/kleo-app/kleo/internal/domain/group"
)

// GroupView is the read model of a group.
type GroupView struct {
	ID           string   `json:"id"`
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	StudentIDs   []string `json:"student_ids"`
	SessionCount int      `json:"session_count"`
}

// SessionView is the read model of a session.
type SessionView struct {
	ID                string    `json:"id"`
	GroupID           string    `json:"group_id"`
	Type              string    `json:"type"`
	Location          string    `json:"location"`
	Begins            time.Time `json:"begins"`
	Ends              time.Time `json:"ends"`
	AttendanceCount   int       `json:"attendance_count"`
	OutstandingPasses int       `json:"outstanding_passes"`
}

// AttendanceView is the read model of an attendance fact.
type AttendanceView struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

func newGroupView(g *group.Group) GroupView {
	students := g.StudentIDs()
	ids := make([]string, 0, len(students))
	for _, id := range students {
		ids = append(ids, id.String())
	}
	return GroupView{
		ID:           g.ID().String(),
		Code:         g.Code().String(),
		Name:         g.Name(),
		StudentIDs:   ids,
		SessionCount: len(g.Sessions()),
	}
}

// newSessionView counts live passes only; expired ones are pending pruning.
func newSessionView(g *group.Group, s *group.Session, now time.Time) SessionView {
	live := 0
	for _, p := range s.Passes() {
		if !p.IsExpired(now) {
			live++
		}
	}
	return SessionView{
		ID:                s.ID().String(),
		GroupID:           g.ID().String(),
		Type:              string(s.Type()),
		Location:          s.Location(),
		Begins:            s.Begins(),
		Ends:              s.Ends(),
		AttendanceCount:   len(s.Attendances()),
		OutstandingPasses: live,
	}
}

func newAttendanceViews(in []group.Attendance) []AttendanceView {
	out := make([]AttendanceView, 0, len(in))
	for _, a := range in {
		out = append(out, AttendanceView{
			SessionID:  a.SessionID.String(),
			UserID:     a.UserID.String(),
			RecordedAt: a.RecordedAt,
		})
	}
	return out
}
