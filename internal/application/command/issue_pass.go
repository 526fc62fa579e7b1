package command

import (
	"context"
	"fmt"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ISSUE PASS COMMAND
// A requester (tutor) issues a time-limited pass for a registered student.
// Issuance is serialized per session so two concurrent requests for the same
// student cannot both see "no live pass".
// ══════════════════════════════════════════════════════════════════════════════

// Locker serializes work on a key, possibly across processes.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned function
	// releases the key.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// PassLockKey names the issuance lock of a session.
func PassLockKey(sessionID shared.SessionID) string {
	return "session:" + sessionID.String() + ":passes"
}

// IssuePassCommand requests a pass for RequesteeID.
type IssuePassCommand struct {
	GroupID     string
	SessionID   string
	RequesterID string
	RequesteeID string
}

// IssuePassResult carries the issued pass, code included. The code is shown
// to the requester only.
type IssuePassResult struct {
	GroupID shared.GroupID
	Pass    group.Pass
}

// IssuePassHandler handles IssuePassCommand.
type IssuePassHandler struct {
	repo   group.Repository
	locker Locker
	deps   Deps
}

// NewIssuePassHandler creates an IssuePassHandler. locker may be nil, in
// which case only the repository transaction serializes issuance.
func NewIssuePassHandler(repo group.Repository, locker Locker, deps Deps) *IssuePassHandler {
	return &IssuePassHandler{repo: repo, locker: locker, deps: deps.withDefaults()}
}

// Handle executes IssuePassCommand.
func (h *IssuePassHandler) Handle(ctx context.Context, cmd IssuePassCommand) (*IssuePassResult, error) {
	gid, err := parseGroupID("IssuePass", cmd.GroupID)
	if err != nil {
		return nil, err
	}
	sid, err := parseSessionID("IssuePass", cmd.SessionID)
	if err != nil {
		return nil, err
	}
	requester, err := parseUserID("IssuePass", "requester id", cmd.RequesterID)
	if err != nil {
		return nil, err
	}
	requestee, err := parseUserID("IssuePass", "requestee id", cmd.RequesteeID)
	if err != nil {
		return nil, err
	}

	if h.locker != nil {
		unlock, err := h.locker.Lock(ctx, PassLockKey(sid))
		if err != nil {
			return nil, fmt.Errorf("issue pass: acquire lock: %w", err)
		}
		defer unlock()
	}

	var pass group.Pass
	err = group.UpdateKeepingPrunes(ctx, h.repo, gid, func(g *group.Group) error {
		if !g.IsStudentRegistered(requestee) {
			return shared.ErrNotRegistered
		}
		s, err := g.Session(sid)
		if err != nil {
			return err
		}
		pass, err = s.AddPass(requester, requestee)
		return err
	})
	if err != nil {
		h.deps.Logger.Warn("pass rejected",
			logger.GroupID(gid.String()),
			logger.SessionID(sid.String()),
			logger.UserID(requestee.String()),
			logger.Err(err),
		)
		return nil, fmt.Errorf("issue pass: %w", err)
	}

	h.deps.Logger.Info("pass issued",
		logger.GroupID(gid.String()),
		logger.SessionID(sid.String()),
		logger.UserID(requestee.String()),
		logger.Time("expires_at", pass.ExpiresAt),
	)
	h.deps.publish(ctx, shared.NewPassIssuedEvent(gid, sid, requester, requestee, pass.ExpiresAt, pass.IssuedAt))

	return &IssuePassResult{GroupID: gid, Pass: pass}, nil
}
