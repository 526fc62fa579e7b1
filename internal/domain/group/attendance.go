package group

import (
	"time"

	"github.com/kleo-app/kleo/internal/domain/shared"
)

// Attendance is the immutable fact that a user attended a session.
type Attendance struct {
	SessionID  shared.SessionID
	UserID     shared.UserID
	RecordedAt time.Time
}

// Equal compares attendances field by field.
func (a Attendance) Equal(o Attendance) bool {
	return a.SessionID == o.SessionID && a.UserID == o.UserID && a.RecordedAt.Equal(o.RecordedAt)
}
