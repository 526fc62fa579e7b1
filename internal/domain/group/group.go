package group

import (
	"sort"
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// Group is the aggregate root of a study group. It owns the student roster
// and the ordered sessions, and gatekeeps membership-scoped attendance.
// Group-level attendance is a projection over the sessions' attendance sets.
type Group struct {
	id       shared.GroupID
	code     GroupCode
	name     string
	students map[shared.UserID]struct{}
	sessions []*Session
	rt       Runtime
}

// New creates a group with a fresh id.
func New(name string, opts ...Option) (*Group, error) {
	return NewWithID("", name, opts...)
}

// NewWithID creates a group, generating an id when none is given.
func NewWithID(id shared.GroupID, name string, opts ...Option) (*Group, error) {
	if err := shared.NotBlank("group", "New", "name", name); err != nil {
		return nil, err
	}

	if id.IsEmpty() {
		id = shared.NewGroupID()
	}

	return &Group{
		id:       id,
		code:     DeriveCode(name),
		name:     name,
		students: make(map[shared.UserID]struct{}),
		rt:       newRuntime(opts...),
	}, nil
}

// Use rebinds the runtime of the group and every session it owns. It is
// called after loading a group from storage.
func (g *Group) Use(opts ...Option) {
	for _, opt := range opts {
		opt(&g.rt)
	}
	for _, s := range g.sessions {
		s.rt = g.rt
	}
}

// ID returns the group identifier.
func (g *Group) ID() shared.GroupID { return g.id }

// Code returns the lookup code.
func (g *Group) Code() GroupCode { return g.code }

// Name returns the display name.
func (g *Group) Name() string { return g.name }

// Rename replaces the display name. The code is kept.
func (g *Group) Rename(name string) error {
	if err := shared.NotBlank("group", "Rename", "name", name); err != nil {
		return err
	}
	g.name = name
	return nil
}

// RecomputeCode derives the code again from the current name.
func (g *Group) RecomputeCode() GroupCode {
	g.code = DeriveCode(g.name)
	return g.code
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER
// ══════════════════════════════════════════════════════════════════════════════

// AddStudent registers a student and reports whether the roster changed.
func (g *Group) AddStudent(studentID shared.UserID) bool {
	if studentID.IsEmpty() {
		return false
	}
	if _, ok := g.students[studentID]; ok {
		return false
	}
	g.students[studentID] = struct{}{}
	return true
}

// RemoveStudent unregisters a student and reports whether the roster changed.
func (g *Group) RemoveStudent(studentID shared.UserID) bool {
	if _, ok := g.students[studentID]; !ok {
		return false
	}
	delete(g.students, studentID)
	return true
}

// IsStudentRegistered reports roster membership.
func (g *Group) IsStudentRegistered(studentID shared.UserID) bool {
	_, ok := g.students[studentID]
	return ok
}

// StudentIDs returns the roster sorted by id.
func (g *Group) StudentIDs() []shared.UserID {
	out := make([]shared.UserID, 0, len(g.students))
	for id := range g.students {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetStudents replaces the roster. An empty set is rejected.
func (g *Group) SetStudents(studentIDs []shared.UserID) error {
	roster := make(map[shared.UserID]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		if !id.IsEmpty() {
			roster[id] = struct{}{}
		}
	}
	if len(roster) == 0 {
		return shared.ErrEmptyRoster
	}
	g.students = roster
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// AddSession schedules a new session and returns its id.
func (g *Group) AddSession(sessionType SessionType, location string, begins, ends time.Time) (shared.SessionID, error) {
	return g.AddSessionWithID("", sessionType, location, begins, ends)
}

// AddSessionWithID schedules a session under the given id. Nothing is
// appended when validation fails.
func (g *Group) AddSessionWithID(id shared.SessionID, sessionType SessionType, location string, begins, ends time.Time) (shared.SessionID, error) {
	if !id.IsEmpty() {
		if _, err := g.Session(id); err == nil {
			return "", shared.NewDomainError("group", "AddSession", shared.ErrAlreadyExists, "session id already scheduled")
		}
	}

	s, err := NewSession(id, sessionType, location, begins, ends)
	if err != nil {
		return "", err
	}
	s.rt = g.rt

	g.sessions = append(g.sessions, s)
	return s.id, nil
}

// Sessions returns the sessions in scheduling order. The slice is a copy but
// the sessions are the group's own: mutate them only inside
// Repository.Update, anything else is lost on the next load.
func (g *Group) Sessions() []*Session {
	out := make([]*Session, len(g.sessions))
	copy(out, g.sessions)
	return out
}

// SessionsOfType returns the sessions of one type in scheduling order, with
// the same sharing as Sessions.
func (g *Group) SessionsOfType(sessionType SessionType) []*Session {
	out := make([]*Session, 0)
	for _, s := range g.sessions {
		if s.sessionType == sessionType {
			out = append(out, s)
		}
	}
	return out
}

// Session finds an owned session. The pointer is shared as with Sessions.
func (g *Group) Session(id shared.SessionID) (*Session, error) {
	for _, s := range g.sessions {
		if s.id == id {
			return s, nil
		}
	}
	return nil, shared.ErrSessionNotFound
}

// RepurposeSession changes the type of an owned session.
func (g *Group) RepurposeSession(id shared.SessionID, sessionType SessionType) error {
	s, err := g.Session(id)
	if err != nil {
		return err
	}
	return s.Repurpose(sessionType)
}

// RelocateSession moves an owned session.
func (g *Group) RelocateSession(id shared.SessionID, location string) error {
	s, err := g.Session(id)
	if err != nil {
		return err
	}
	return s.SetLocation(location)
}

// RescheduleSession replaces both bounds of an owned session.
func (g *Group) RescheduleSession(id shared.SessionID, begins, ends time.Time) error {
	s, err := g.Session(id)
	if err != nil {
		return err
	}
	return s.Reschedule(begins, ends)
}

// RemoveSession destroys one session together with its passes and
// attendances.
func (g *Group) RemoveSession(id shared.SessionID) bool {
	for i, s := range g.sessions {
		if s.id == id {
			g.sessions = append(g.sessions[:i], g.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// Unschedule destroys every session of the group.
func (g *Group) Unschedule() {
	g.sessions = nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// Attend records attendance for the pass holder. Checks run in order and the
// first failure wins: expiry, duplicate attendance, roster membership. An
// expired pass is pruned from its session.
func (g *Group) Attend(pass Pass) (Attendance, error) {
	if pass.IsExpired(g.rt.Clock.Now()) {
		if s, err := g.Session(pass.SessionID); err == nil {
			s.dropPass(pass)
		}
		return Attendance{}, shared.ErrExpiredPass
	}
	if g.HasAttended(pass.StudentID(), pass.SessionID) {
		return Attendance{}, shared.ErrDuplicateAttendance
	}
	if !g.IsStudentRegistered(pass.StudentID()) {
		return Attendance{}, shared.ErrNotRegistered
	}

	s, err := g.Session(pass.SessionID)
	if err != nil {
		return Attendance{}, err
	}

	return s.record(pass.StudentID()), nil
}

// HasAttended reports whether the student attended the given session.
func (g *Group) HasAttended(studentID shared.UserID, sessionID shared.SessionID) bool {
	s, err := g.Session(sessionID)
	if err != nil {
		return false
	}
	return s.HasAttended(studentID)
}

// Attendances returns every attendance across the group's sessions.
func (g *Group) Attendances() []Attendance {
	out := make([]Attendance, 0)
	for _, s := range g.sessions {
		out = append(out, s.attendances...)
	}
	return out
}

// AttendancesOfStudent returns the student's attendances across sessions.
func (g *Group) AttendancesOfStudent(studentID shared.UserID) []Attendance {
	out := make([]Attendance, 0)
	for _, s := range g.sessions {
		if a, ok := s.Attendance(studentID); ok {
			out = append(out, a)
		}
	}
	return out
}

// AttendancesOfSession returns the attendances of one session. An unknown
// session yields an empty list.
func (g *Group) AttendancesOfSession(sessionID shared.SessionID) []Attendance {
	s, err := g.Session(sessionID)
	if err != nil {
		return []Attendance{}
	}
	return s.Attendances()
}
