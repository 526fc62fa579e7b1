package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
)

// Constraint names from the migrations, used to map unique violations back
// to domain errors.
const (
	constraintGroupCode      = "groups_code_key"
	constraintGroupPK        = "groups_pkey"
	constraintAttendanceOnce = "session_attendances_session_user_key"
)

// GroupRepository implements group.Repository using PostgreSQL.
type GroupRepository struct {
	conn *Connection
	opts []group.Option
}

// NewGroupRepository creates a new PostgreSQL group repository. The options
// are applied to every group it loads.
func NewGroupRepository(conn *Connection, opts ...group.Option) *GroupRepository {
	return &GroupRepository{conn: conn, opts: opts}
}

// Create implements group.Repository.
func (r *GroupRepository) Create(ctx context.Context, g *group.Group) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return r.apply(ctx, tx, diffSnapshots(group.Snapshot{}, g.Snapshot()))
	})
}

// GetByID implements group.Repository.
func (r *GroupRepository) GetByID(ctx context.Context, id shared.GroupID) (*group.Group, error) {
	var g *group.Group
	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		snap, err := loadSnapshot(ctx, tx, id, false)
		if err != nil {
			return err
		}
		g, err = group.FromSnapshot(snap, r.opts...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// GetByCode implements group.Repository.
func (r *GroupRepository) GetByCode(ctx context.Context, code group.GroupCode) (*group.Group, error) {
	var id string
	err := r.conn.Pool().QueryRow(ctx, `SELECT id FROM groups WHERE code = $1`, code.String()).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGroupNotFound
		}
		return nil, fmt.Errorf("postgres: find group by code: %w", err)
	}
	return r.GetByID(ctx, shared.GroupID(id))
}

// Update implements group.Repository. The group row is locked with
// SELECT ... FOR UPDATE for the whole callback.
func (r *GroupRepository) Update(ctx context.Context, id shared.GroupID, fn func(g *group.Group) error) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		before, err := loadSnapshot(ctx, tx, id, true)
		if err != nil {
			return err
		}

		g, err := group.FromSnapshot(before, r.opts...)
		if err != nil {
			return err
		}

		if err := fn(g); err != nil {
			return err
		}

		return r.apply(ctx, tx, diffSnapshots(before, g.Snapshot()))
	})
}

// Delete implements group.Repository. Sessions, passes and attendances go
// with the group through ON DELETE CASCADE.
func (r *GroupRepository) Delete(ctx context.Context, id shared.GroupID) error {
	tag, err := r.conn.Pool().Exec(ctx, `DELETE FROM groups WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("postgres: delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepository) apply(ctx context.Context, q Querier, stmts []statement) error {
	for _, s := range stmts {
		if _, err := q.Exec(ctx, s.sql, s.args...); err != nil {
			return mapWriteError(err)
		}
	}
	return nil
}

// mapWriteError turns constraint violations into the domain errors they
// stand for.
func mapWriteError(err error) error {
	if !IsUniqueViolation(err) {
		return fmt.Errorf("postgres: write group: %w", err)
	}
	switch ViolatedConstraint(err) {
	case constraintAttendanceOnce:
		return shared.ErrAlreadyAttended
	case constraintGroupCode, constraintGroupPK:
		return shared.ErrGroupAlreadyExists
	default:
		return shared.WrapError("postgres", "Write", shared.ErrAlreadyExists, "unique constraint violated", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

func loadSnapshot(ctx context.Context, q Querier, id shared.GroupID, forUpdate bool) (group.Snapshot, error) {
	query := `SELECT id, code, name FROM groups WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		snap group.Snapshot
		gid  string
		code string
	)
	err := q.QueryRow(ctx, query, id.String()).Scan(&gid, &code, &snap.Name)
	if err != nil {
		if IsNoRows(err) {
			return group.Snapshot{}, shared.ErrGroupNotFound
		}
		return group.Snapshot{}, fmt.Errorf("postgres: load group: %w", err)
	}
	snap.ID = shared.GroupID(gid)
	snap.Code = group.GroupCode(code)

	if snap.StudentIDs, err = loadStudents(ctx, q, id); err != nil {
		return group.Snapshot{}, err
	}
	if snap.Sessions, err = loadSessions(ctx, q, id); err != nil {
		return group.Snapshot{}, err
	}
	if err := loadPasses(ctx, q, id, snap.Sessions); err != nil {
		return group.Snapshot{}, err
	}
	if err := loadAttendances(ctx, q, id, snap.Sessions); err != nil {
		return group.Snapshot{}, err
	}

	return snap, nil
}

func loadStudents(ctx context.Context, q Querier, id shared.GroupID) ([]shared.UserID, error) {
	rows, err := q.Query(ctx, `SELECT user_id FROM group_students WHERE group_id = $1 ORDER BY user_id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: load students: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan students: %w", err)
	}

	out := make([]shared.UserID, 0, len(ids))
	for _, s := range ids {
		out = append(out, shared.UserID(s))
	}
	return out, nil
}

func loadSessions(ctx context.Context, q Querier, id shared.GroupID) ([]group.SessionSnapshot, error) {
	rows, err := q.Query(ctx, `
		SELECT id, type, location, begins_at, ends_at
		FROM sessions
		WHERE group_id = $1
		ORDER BY position, begins_at`, id.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: load sessions: %w", err)
	}
	defer rows.Close()

	out := make([]group.SessionSnapshot, 0)
	for rows.Next() {
		var (
			s   group.SessionSnapshot
			sid string
			typ string
		)
		if err := rows.Scan(&sid, &typ, &s.Location, &s.Begins, &s.Ends); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		s.ID = shared.SessionID(sid)
		s.Type = group.SessionType(typ)
		s.Begins = s.Begins.UTC()
		s.Ends = s.Ends.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func loadPasses(ctx context.Context, q Querier, id shared.GroupID, sessions []group.SessionSnapshot) error {
	rows, err := q.Query(ctx, `
		SELECT p.session_id, p.code, p.requester_id, p.requestee_id, p.issued_at, p.expires_at
		FROM session_passes p
		JOIN sessions s ON s.id = p.session_id
		WHERE s.group_id = $1
		ORDER BY p.issued_at, p.code`, id.String())
	if err != nil {
		return fmt.Errorf("postgres: load passes: %w", err)
	}
	defer rows.Close()

	index := sessionIndex(sessions)
	for rows.Next() {
		var (
			p                         group.Pass
			sid, requester, requestee string
		)
		if err := rows.Scan(&sid, &p.Code, &requester, &requestee, &p.IssuedAt, &p.ExpiresAt); err != nil {
			return fmt.Errorf("postgres: scan pass: %w", err)
		}
		p.SessionID = shared.SessionID(sid)
		p.RequesterID = shared.UserID(requester)
		p.RequesteeID = shared.UserID(requestee)
		p.IssuedAt = p.IssuedAt.UTC()
		p.ExpiresAt = p.ExpiresAt.UTC()

		if i, ok := index[p.SessionID]; ok {
			sessions[i].Passes = append(sessions[i].Passes, p)
		}
	}
	return rows.Err()
}

func loadAttendances(ctx context.Context, q Querier, id shared.GroupID, sessions []group.SessionSnapshot) error {
	rows, err := q.Query(ctx, `
		SELECT a.session_id, a.user_id, a.recorded_at
		FROM session_attendances a
		JOIN sessions s ON s.id = a.session_id
		WHERE s.group_id = $1
		ORDER BY a.recorded_at, a.user_id`, id.String())
	if err != nil {
		return fmt.Errorf("postgres: load attendances: %w", err)
	}
	defer rows.Close()

	index := sessionIndex(sessions)
	for rows.Next() {
		var (
			a        group.Attendance
			sid, uid string
		)
		if err := rows.Scan(&sid, &uid, &a.RecordedAt); err != nil {
			return fmt.Errorf("postgres: scan attendance: %w", err)
		}
		a.SessionID = shared.SessionID(sid)
		a.UserID = shared.UserID(uid)
		a.RecordedAt = a.RecordedAt.UTC()

		if i, ok := index[a.SessionID]; ok {
			sessions[i].Attendances = append(sessions[i].Attendances, a)
		}
	}
	return rows.Err()
}

func sessionIndex(sessions []group.SessionSnapshot) map[shared.SessionID]int {
	index := make(map[shared.SessionID]int, len(sessions))
	for i, s := range sessions {
		index[s.ID] = i
	}
	return index
}
