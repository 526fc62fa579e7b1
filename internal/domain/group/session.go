package group

import (
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// SessionType classifies what happens in a session.
type SessionType string

const (
	SessionTutorial SessionType = "tutorial"
	SessionExercise SessionType = "exercise"
	SessionLecture  SessionType = "lecture"
	SessionExam     SessionType = "exam"
)

// IsValid checks that the type is one of the known values.
func (t SessionType) IsValid() bool {
	switch t {
	case SessionTutorial, SessionExercise, SessionLecture, SessionExam:
		return true
	default:
		return false
	}
}

// Session owns a time window plus the passes issued and attendances recorded
// for it. Invariant: ends is strictly after begins.
type Session struct {
	id          shared.SessionID
	sessionType SessionType
	location    string
	begins      time.Time
	ends        time.Time
	passes      []Pass
	attendances []Attendance
	rt          Runtime
}

// NewSession creates a session, generating an id when none is given.
func NewSession(id shared.SessionID, sessionType SessionType, location string, begins, ends time.Time, opts ...Option) (*Session, error) {
	if err := validateType("NewSession", sessionType); err != nil {
		return nil, err
	}
	if err := shared.NotBlank("session", "NewSession", "location", location); err != nil {
		return nil, err
	}
	if err := shared.EndsAfterBegins("session", "NewSession", begins, ends); err != nil {
		return nil, err
	}

	if id.IsEmpty() {
		id = shared.NewSessionID()
	}

	return &Session{
		id:          id,
		sessionType: sessionType,
		location:    location,
		begins:      begins,
		ends:        ends,
		rt:          newRuntime(opts...),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() shared.SessionID { return s.id }

// Type returns the session type.
func (s *Session) Type() SessionType { return s.sessionType }

// Location returns where the session takes place.
func (s *Session) Location() string { return s.location }

// Begins returns the start of the session window.
func (s *Session) Begins() time.Time { return s.begins }

// Ends returns the end of the session window.
func (s *Session) Ends() time.Time { return s.ends }

// SetLocation moves the session.
func (s *Session) SetLocation(location string) error {
	if err := shared.NotBlank("session", "SetLocation", "location", location); err != nil {
		return err
	}
	s.location = location
	return nil
}

// SetBegins changes the start, checked against the current end.
func (s *Session) SetBegins(begins time.Time) error {
	if err := shared.EndsAfterBegins("session", "SetBegins", begins, s.ends); err != nil {
		return err
	}
	s.begins = begins
	return nil
}

// SetEnds changes the end, checked against the current start.
func (s *Session) SetEnds(ends time.Time) error {
	if err := shared.EndsAfterBegins("session", "SetEnds", s.begins, ends); err != nil {
		return err
	}
	s.ends = ends
	return nil
}

// Reschedule replaces both bounds at once. The pair is checked before either
// bound changes, so moving a session past its old end is allowed.
func (s *Session) Reschedule(begins, ends time.Time) error {
	if err := shared.EndsAfterBegins("session", "Reschedule", begins, ends); err != nil {
		return err
	}
	s.begins = begins
	s.ends = ends
	return nil
}

// Repurpose changes the session type.
func (s *Session) Repurpose(sessionType SessionType) error {
	if err := validateType("Repurpose", sessionType); err != nil {
		return err
	}
	s.sessionType = sessionType
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PASSES
// ══════════════════════════════════════════════════════════════════════════════

// AddPass issues a pass allowing requestee's attendance to be recorded.
// Expired passes of the requestee are pruned on the way.
func (s *Session) AddPass(requesterID, requesteeID shared.UserID) (Pass, error) {
	if err := shared.NotEmptyID("session", "AddPass", "requester id", requesterID.String()); err != nil {
		return Pass{}, err
	}
	if err := shared.NotEmptyID("session", "AddPass", "requestee id", requesteeID.String()); err != nil {
		return Pass{}, err
	}

	if s.hasLivePass(requesteeID) {
		return Pass{}, shared.ErrLivePassExists
	}
	if s.HasAttended(requesteeID) {
		return Pass{}, shared.ErrAlreadyAttended
	}

	code, err := s.drawCode()
	if err != nil {
		return Pass{}, err
	}

	now := s.rt.Clock.Now()
	pass := Pass{
		SessionID:   s.id,
		RequesterID: requesterID,
		RequesteeID: requesteeID,
		Code:        code,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.rt.PassValidity),
	}
	s.passes = append(s.passes, pass)

	return pass, nil
}

// Pass looks up a live pass by code. An expired match is pruned and reported
// as missing.
func (s *Session) Pass(code string) (Pass, bool) {
	now := s.rt.Clock.Now()
	for i, p := range s.passes {
		if p.Code != code {
			continue
		}
		if p.IsExpired(now) {
			s.passes = append(s.passes[:i], s.passes[i+1:]...)
			return Pass{}, false
		}
		return p, true
	}
	return Pass{}, false
}

// FindPass looks up a pass by code without checking or pruning expiry, for
// callers that classify an expired pass themselves.
func (s *Session) FindPass(code string) (Pass, bool) {
	for _, p := range s.passes {
		if p.Code == code {
			return p, true
		}
	}
	return Pass{}, false
}

// dropPass removes the stored pass equal to pass, if any.
func (s *Session) dropPass(pass Pass) {
	for i, p := range s.passes {
		if p.Equal(pass) {
			s.passes = append(s.passes[:i], s.passes[i+1:]...)
			return
		}
	}
}

// Passes returns a copy of the outstanding passes, expired ones included
// until a lookup prunes them.
func (s *Session) Passes() []Pass {
	out := make([]Pass, len(s.passes))
	copy(out, s.passes)
	return out
}

func (s *Session) hasLivePass(requesteeID shared.UserID) bool {
	now := s.rt.Clock.Now()
	live := false
	kept := s.passes[:0]
	for _, p := range s.passes {
		if p.RequesteeID == requesteeID {
			if p.IsExpired(now) {
				continue
			}
			live = true
		}
		kept = append(kept, p)
	}
	s.passes = kept
	return live
}

func (s *Session) drawCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.rt.Codes.NewCode()
		if err != nil {
			return "", shared.WrapError("session", "AddPass", shared.ErrStateConflict, "code generation failed", err)
		}
		if !s.codeInUse(code) {
			return code, nil
		}
	}
	return "", shared.ErrCodeExhausted
}

func (s *Session) codeInUse(code string) bool {
	for _, p := range s.passes {
		if p.Code == code {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// Attend redeems a pass by code and records the requestee's attendance.
// The pass is left in place; a repeated redemption fails on the attendance
// check.
func (s *Session) Attend(code string) (Attendance, error) {
	pass, ok := s.Pass(code)
	if !ok {
		return Attendance{}, shared.ErrInvalidPassCode
	}

	if s.HasAttended(pass.RequesteeID) {
		return Attendance{}, shared.ErrAlreadyAttended
	}

	return s.record(pass.RequesteeID), nil
}

// AttendPass redeems the given pass by its code.
func (s *Session) AttendPass(pass Pass) (Attendance, error) {
	return s.Attend(pass.Code)
}

// HasAttended reports whether the user has an attendance for this session.
func (s *Session) HasAttended(userID shared.UserID) bool {
	_, ok := s.Attendance(userID)
	return ok
}

// Attendance returns the user's attendance, if any.
func (s *Session) Attendance(userID shared.UserID) (Attendance, bool) {
	for _, a := range s.attendances {
		if a.UserID == userID {
			return a, true
		}
	}
	return Attendance{}, false
}

// Attendances returns a copy of the recorded attendances.
func (s *Session) Attendances() []Attendance {
	out := make([]Attendance, len(s.attendances))
	copy(out, s.attendances)
	return out
}

// record appends an attendance; callers check uniqueness first.
func (s *Session) record(userID shared.UserID) Attendance {
	a := Attendance{
		SessionID:  s.id,
		UserID:     userID,
		RecordedAt: s.rt.Clock.Now(),
	}
	s.attendances = append(s.attendances, a)
	return a
}

func validateType(op string, t SessionType) error {
	if !t.IsValid() {
		return shared.NewDomainError("session", op, shared.ErrValidation, "unknown session type")
	}
	return nil
}
