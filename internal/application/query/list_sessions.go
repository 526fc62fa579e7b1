package query

import (
	"context"
	"fmt"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
)

// ListSessionsQuery lists a group's sessions, optionally of one type.
type ListSessionsQuery struct {
	GroupID string
	Type    string
}

// GetSessionQuery loads one session.
type GetSessionQuery struct {
	GroupID   string
	SessionID string
}

// SessionsHandler serves session reads.
type SessionsHandler struct {
	repo  group.Repository
	clock shared.Clock
}

// NewSessionsHandler creates a SessionsHandler.
func NewSessionsHandler(repo group.Repository, clock shared.Clock) *SessionsHandler {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &SessionsHandler{repo: repo, clock: clock}
}

// HandleList executes ListSessionsQuery. Sessions keep scheduling order.
func (h *SessionsHandler) HandleList(ctx context.Context, q ListSessionsQuery) ([]SessionView, error) {
	id, err := shared.ParseGroupID(q.GroupID)
	if err != nil {
		return nil, err
	}

	var sessionType group.SessionType
	if q.Type != "" {
		sessionType = group.SessionType(q.Type)
		if !sessionType.IsValid() {
			return nil, shared.NewDomainError("query", "ListSessions", shared.ErrValidation, "unknown session type")
		}
	}

	g, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := g.Sessions()
	if sessionType != "" {
		sessions = g.SessionsOfType(sessionType)
	}

	now := h.clock.Now()
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionView(g, s, now))
	}
	return out, nil
}

// HandleGet executes GetSessionQuery.
func (h *SessionsHandler) HandleGet(ctx context.Context, q GetSessionQuery) (*SessionView, error) {
	gid, err := shared.ParseGroupID(q.GroupID)
	if err != nil {
		return nil, err
	}
	sid, err := shared.ParseSessionID(q.SessionID)
	if err != nil {
		return nil, err
	}

	g, err := h.repo.GetByID(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s, err := g.Session(sid)
	if err != nil {
		return nil, err
	}

	view := newSessionView(g, s, h.clock.Now())
	return &view, nil
}
