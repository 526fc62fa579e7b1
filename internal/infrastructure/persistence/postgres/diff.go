package postgres

import (
	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
)

// statement is one parameterized write.
type statement struct {
	sql  string
	args []any
}

const (
	sqlInsertGroup = `INSERT INTO groups (id, code, name) VALUES ($1, $2, $3)`
	sqlUpdateGroup = `UPDATE groups SET code = $2, name = $3, updated_at = NOW() WHERE id = $1`

	sqlInsertStudent = `INSERT INTO group_students (group_id, user_id) VALUES ($1, $2)`
	sqlDeleteStudent = `DELETE FROM group_students WHERE group_id = $1 AND user_id = $2`

	sqlInsertSession = `INSERT INTO sessions (id, group_id, position, type, location, begins_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	sqlUpdateSession = `UPDATE sessions SET position = $2, type = $3, location = $4, begins_at = $5, ends_at = $6
		WHERE id = $1`
	sqlDeleteSession = `DELETE FROM sessions WHERE id = $1`

	sqlInsertPass = `INSERT INTO session_passes (session_id, code, requester_id, requestee_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	sqlDeletePass = `DELETE FROM session_passes WHERE session_id = $1 AND code = $2`

	sqlInsertAttendance = `INSERT INTO session_attendances (session_id, user_id, recorded_at) VALUES ($1, $2, $3)`
	sqlDeleteAttendance = `DELETE FROM session_attendances WHERE session_id = $1 AND user_id = $2`
)

// diffSnapshots lists the writes that turn before into after. An empty
// before stands for a group that is not stored yet. Deletes come before
// inserts within each table so a pass code freed by pruning can be reused.
func diffSnapshots(before, after group.Snapshot) []statement {
	var out []statement
	gid := after.ID.String()

	switch {
	case before.ID.IsEmpty():
		out = append(out, statement{sqlInsertGroup, []any{gid, after.Code.String(), after.Name}})
	case before.Code != after.Code || before.Name != after.Name:
		out = append(out, statement{sqlUpdateGroup, []any{gid, after.Code.String(), after.Name}})
	}

	out = append(out, diffStudents(gid, before.StudentIDs, after.StudentIDs)...)
	out = append(out, diffSessions(gid, before.Sessions, after.Sessions)...)

	return out
}

func diffStudents(gid string, before, after []shared.UserID) []statement {
	var out []statement
	kept := make(map[shared.UserID]bool, len(after))
	for _, id := range after {
		kept[id] = true
	}
	was := make(map[shared.UserID]bool, len(before))
	for _, id := range before {
		was[id] = true
		if !kept[id] {
			out = append(out, statement{sqlDeleteStudent, []any{gid, id.String()}})
		}
	}
	for _, id := range after {
		if !was[id] {
			out = append(out, statement{sqlInsertStudent, []any{gid, id.String()}})
		}
	}
	return out
}

func diffSessions(gid string, before, after []group.SessionSnapshot) []statement {
	var out []statement

	old := make(map[shared.SessionID]group.SessionSnapshot, len(before))
	for _, s := range before {
		old[s.ID] = s
	}
	kept := make(map[shared.SessionID]bool, len(after))
	for _, s := range after {
		kept[s.ID] = true
	}

	oldPosition := make(map[shared.SessionID]int, len(before))
	for i, s := range before {
		oldPosition[s.ID] = i
		if !kept[s.ID] {
			out = append(out, statement{sqlDeleteSession, []any{s.ID.String()}})
		}
	}

	for i, s := range after {
		prev, existed := old[s.ID]
		switch {
		case !existed:
			out = append(out, statement{sqlInsertSession, []any{
				s.ID.String(), gid, i, string(s.Type), s.Location, s.Begins, s.Ends,
			}})
		case oldPosition[s.ID] != i || sessionChanged(prev, s):
			out = append(out, statement{sqlUpdateSession, []any{
				s.ID.String(), i, string(s.Type), s.Location, s.Begins, s.Ends,
			}})
		}

		out = append(out, diffPasses(s.ID, prev.Passes, s.Passes)...)
		out = append(out, diffAttendances(s.ID, prev.Attendances, s.Attendances)...)
	}

	return out
}

func sessionChanged(a, b group.SessionSnapshot) bool {
	return a.Type != b.Type ||
		a.Location != b.Location ||
		!a.Begins.Equal(b.Begins) ||
		!a.Ends.Equal(b.Ends)
}

func diffPasses(sid shared.SessionID, before, after []group.Pass) []statement {
	var out []statement
	kept := make(map[string]bool, len(after))
	for _, p := range after {
		kept[p.Code] = true
	}
	was := make(map[string]bool, len(before))
	for _, p := range before {
		was[p.Code] = true
		if !kept[p.Code] {
			out = append(out, statement{sqlDeletePass, []any{sid.String(), p.Code}})
		}
	}
	for _, p := range after {
		if !was[p.Code] {
			out = append(out, statement{sqlInsertPass, []any{
				sid.String(), p.Code, p.RequesterID.String(), p.RequesteeID.String(), p.IssuedAt, p.ExpiresAt,
			}})
		}
	}
	return out
}

func diffAttendances(sid shared.SessionID, before, after []group.Attendance) []statement {
	var out []statement
	kept := make(map[shared.UserID]bool, len(after))
	for _, a := range after {
		kept[a.UserID] = true
	}
	was := make(map[shared.UserID]bool, len(before))
	for _, a := range before {
		was[a.UserID] = true
		if !kept[a.UserID] {
			out = append(out, statement{sqlDeleteAttendance, []any{sid.String(), a.UserID.String()}})
		}
	}
	for _, a := range after {
		if !was[a.UserID] {
			out = append(out, statement{sqlInsertAttendance, []any{sid.String(), a.UserID.String(), a.RecordedAt}})
		}
	}
	return out
}
