package group

import (
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// Snapshot is the storage shape of a Group. Repositories translate between
// snapshots and their own records; snapshots never share memory with the
// aggregate they were taken from.
type Snapshot struct {
	ID         shared.GroupID
	Code       GroupCode
	Name       string
	StudentIDs []shared.UserID
	Sessions   []SessionSnapshot
}

// SessionSnapshot is the storage shape of a Session.
type SessionSnapshot struct {
	ID          shared.SessionID
	Type        SessionType
	Location    string
	Begins      time.Time
	Ends        time.Time
	Passes      []Pass
	Attendances []Attendance
}

// Snapshot copies the aggregate state.
func (g *Group) Snapshot() Snapshot {
	snap := Snapshot{
		ID:         g.id,
		Code:       g.code,
		Name:       g.name,
		StudentIDs: g.StudentIDs(),
		Sessions:   make([]SessionSnapshot, 0, len(g.sessions)),
	}
	for _, s := range g.sessions {
		snap.Sessions = append(snap.Sessions, s.snapshot())
	}
	return snap
}

func (s *Session) snapshot() SessionSnapshot {
	return SessionSnapshot{
		ID:          s.id,
		Type:        s.sessionType,
		Location:    s.location,
		Begins:      s.begins,
		Ends:        s.ends,
		Passes:      s.Passes(),
		Attendances: s.Attendances(),
	}
}

// FromSnapshot rebuilds a Group, re-checking the construction invariants.
// A stored code is kept as is; an empty one is derived from the name.
func FromSnapshot(snap Snapshot, opts ...Option) (*Group, error) {
	g, err := NewWithID(snap.ID, snap.Name, opts...)
	if err != nil {
		return nil, err
	}
	if snap.Code != "" {
		g.code = snap.Code
	}

	for _, id := range snap.StudentIDs {
		g.AddStudent(id)
	}

	for _, ss := range snap.Sessions {
		s, err := NewSession(ss.ID, ss.Type, ss.Location, ss.Begins, ss.Ends)
		if err != nil {
			return nil, err
		}
		s.rt = g.rt
		s.passes = append([]Pass(nil), ss.Passes...)
		s.attendances = append([]Attendance(nil), ss.Attendances...)
		g.sessions = append(g.sessions, s)
	}

	return g, nil
}
