package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kleo-app/kleo/internal/domain/group"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/internal/infrastructure/persistence/memory"
)

var t0 = time.Date(2024, time.April, 15, 10, 0, 0, 0, time.UTC)

const (
	tutor    = "00000000-0000-0000-0000-000000000009"
	student1 = "00000000-0000-0000-0000-000000000001"
	student2 = "00000000-0000-0000-0000-000000000002"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type counterCodes struct {
	mu sync.Mutex
	n  int
}

func (c *counterCodes) NewCode() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("CODE%04d", c.n), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type env struct {
	clock     *testClock
	repo      *memory.GroupRepository
	index     *memory.CodeIndex
	publisher *recordingPublisher

	groups     *GroupHandler
	roster     *RosterHandler
	sessions   *SessionHandler
	passes     *IssuePassHandler
	attendance *AttendanceHandler

	groupID   string
	sessionID string
}

// newEnv builds handlers over the memory repository with one group holding
// student1 and one tutorial session.
func newEnv(t *testing.T) *env {
	t.Helper()

	clock := &testClock{now: t0}
	opts := []group.Option{
		group.WithClock(clock),
		group.WithCodeGenerator(&counterCodes{}),
		group.WithPassValidity(5 * time.Minute),
	}
	e := &env{
		clock:     clock,
		repo:      memory.NewGroupRepository(opts...),
		index:     memory.NewCodeIndex(),
		publisher: &recordingPublisher{},
	}
	deps := Deps{Publisher: e.publisher, Clock: clock}

	e.groups = NewGroupHandler(e.repo, e.index, deps, opts...)
	e.roster = NewRosterHandler(e.repo, deps)
	e.sessions = NewSessionHandler(e.repo, deps)
	e.passes = NewIssuePassHandler(e.repo, memory.NewLocker(), deps)
	e.attendance = NewAttendanceHandler(e.repo, deps)

	ctx := context.Background()
	created, err := e.groups.HandleCreate(ctx, CreateGroupCommand{Name: "Algorithms A", StudentIDs: []string{student1}})
	require.NoError(t, err)
	e.groupID = created.GroupID.String()

	scheduled, err := e.sessions.HandleSchedule(ctx, ScheduleSessionCommand{
		GroupID:  e.groupID,
		Type:     "tutorial",
		Location: "Room 101",
		Begins:   t0,
		Ends:     t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	e.sessionID = scheduled.SessionID.String()

	return e
}

func (e *env) issue(t *testing.T, requestee string) group.Pass {
	t.Helper()
	res, err := e.passes.Handle(context.Background(), IssuePassCommand{
		GroupID:     e.groupID,
		SessionID:   e.sessionID,
		RequesterID: tutor,
		RequesteeID: requestee,
	})
	require.NoError(t, err)
	return res.Pass
}

func (e *env) load(t *testing.T) *group.Group {
	t.Helper()
	g, err := e.repo.GetByID(context.Background(), shared.GroupID(e.groupID))
	require.NoError(t, err)
	return g
}
