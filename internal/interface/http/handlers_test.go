package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleo-app/kleo/internal/application/command"
	"github.com/kleo-app/kleo/internal/application/query"
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
	return fmt.Sprintf("PASS%04d", c.n), nil
}

type api struct {
	t       *testing.T
	clock   *testClock
	handler http.Handler
}

func newAPI(t *testing.T, health HealthChecker) *api {
	t.Helper()

	clock := &testClock{now: t0}
	opts := []group.Option{
		group.WithClock(clock),
		group.WithCodeGenerator(&counterCodes{}),
		group.WithPassValidity(5 * time.Minute),
	}
	repo := memory.NewGroupRepository(opts...)
	index := memory.NewCodeIndex()
	deps := command.Deps{Clock: clock}

	srv := NewServer(DefaultConfig(), Dependencies{
		Groups:            command.NewGroupHandler(repo, index, deps, opts...),
		Roster:            command.NewRosterHandler(repo, deps),
		Sessions:          command.NewSessionHandler(repo, deps),
		Passes:            command.NewIssuePassHandler(repo, memory.NewLocker(), deps),
		Attendance:        command.NewAttendanceHandler(repo, deps),
		GroupQueries:      query.NewGetGroupHandler(repo, index, nil),
		SessionQueries:    query.NewSessionsHandler(repo, clock),
		AttendanceQueries: query.NewAttendancesHandler(repo),
		Health:            health,
	})

	return &api{t: t, clock: clock, handler: srv.Handler()}
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	Meta      *ResponseMeta   `json:"meta"`
	RequestID string          `json:"request_id"`
}

func (a *api) do(method, path string, body any, header ...string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// seed creates a group with student1 and one tutorial, returning their ids.
func (a *api) seed() (groupID, sessionID string) {
	a.t.Helper()

	rec, env := a.do(http.MethodPost, "/api/v1/groups", createGroupRequest{
		Name:       "Algorithms A",
		StudentIDs: []string{student1},
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decodeData[groupResponse](a.t, env)

	rec, env = a.do(http.MethodPost, "/api/v1/groups/"+g.ID+"/sessions", scheduleSessionRequest{
		Type:     "tutorial",
		Location: "Room 101",
		Begins:   t0.Add(time.Hour),
		Ends:     t0.Add(3 * time.Hour),
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	s := decodeData[sessionCreatedResponse](a.t, env)

	return g.ID, s.SessionID
}

func TestGroupLifecycle(t *testing.T) {
	a := newAPI(t, nil)

	rec, env := a.do(http.MethodPost, "/api/v1/groups", createGroupRequest{Name: "Algorithms A", StudentIDs: []string{student1}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	created := decodeData[groupResponse](t, env)
	assert.True(t, strings.HasPrefix(created.Code, "AA-"), created.Code)

	rec, env = a.do(http.MethodGet, "/api/v1/groups/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeData[query.GroupView](t, env)
	assert.Equal(t, []string{student1}, view.StudentIDs)

	rec, env = a.do(http.MethodGet, "/api/v1/groups/by-code/"+strings.ToLower(created.Code), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, created.ID, decodeData[query.GroupView](t, env).ID)

	rec, env = a.do(http.MethodPatch, "/api/v1/groups/"+created.ID, renameGroupRequest{Name: "Data Structures"})
	require.Equal(t, http.StatusOK, rec.Code)
	renamed := decodeData[groupResponse](t, env)
	assert.Equal(t, "Data Structures", renamed.Name)
	assert.Equal(t, created.Code, renamed.Code)

	rec, _ = a.do(http.MethodDelete, "/api/v1/groups/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = a.do(http.MethodGet, "/api/v1/groups/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestRoster(t *testing.T) {
	a := newAPI(t, nil)
	gid, _ := a.seed()

	rec, env := a.do(http.MethodPost, "/api/v1/groups/"+gid+"/students", addStudentRequest{StudentID: student2})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeData[rosterResponse](t, env)
	assert.True(t, res.Changed)
	assert.Equal(t, []string{student1, student2}, res.StudentIDs)

	rec, env = a.do(http.MethodDelete, "/api/v1/groups/"+gid+"/students/"+student1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{student2}, decodeData[rosterResponse](t, env).StudentIDs)

	rec, env = a.do(http.MethodPut, "/api/v1/groups/"+gid+"/students", setStudentsRequest{StudentIDs: []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

func TestSessions(t *testing.T) {
	a := newAPI(t, nil)
	gid, sid := a.seed()
	base := "/api/v1/groups/" + gid + "/sessions"

	rec, env := a.do(http.MethodPost, base, scheduleSessionRequest{
		Type: "lecture", Location: "Hall A", Begins: t0.Add(24 * time.Hour), Ends: t0.Add(26 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = a.do(http.MethodGet, base+"?type=lecture", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]query.SessionView](t, env), 1)
	assert.Equal(t, 1, env.Meta.TotalCount)

	location := "Room 202"
	rec, env = a.do(http.MethodPatch, base+"/"+sid, updateSessionRequest{Location: &location})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Room 202", decodeData[query.SessionView](t, env).Location)

	ends := t0
	rec, _ = a.do(http.MethodPatch, base+"/"+sid, updateSessionRequest{Ends: &ends})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.do(http.MethodDelete, base+"/"+sid, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = a.do(http.MethodGet, base+"/"+sid, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = a.do(http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = a.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]query.SessionView](t, env))
}

func TestPassAndAttendanceFlow(t *testing.T) {
	a := newAPI(t, nil)
	gid, sid := a.seed()
	passes := "/api/v1/groups/" + gid + "/sessions/" + sid + "/passes"
	redeem := "/api/v1/groups/" + gid + "/sessions/" + sid + "/attendances"

	rec, env := a.do(http.MethodPost, passes, issuePassRequest{RequesteeID: student1}, HeaderUserID, tutor)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pass := decodeData[passResponse](t, env)
	assert.Equal(t, "PASS0001", pass.Code)
	assert.Equal(t, tutor, pass.RequesterID)
	assert.Equal(t, t0.Add(5*time.Minute), pass.ExpiresAt.UTC())

	rec, env = a.do(http.MethodPost, passes, issuePassRequest{RequesteeID: student1}, HeaderUserID, tutor)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "live_pass_exists", env.Error.Code)

	rec, env = a.do(http.MethodPost, redeem, redeemPassRequest{Code: "pass0001"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	att := decodeData[attendanceResponse](t, env)
	assert.Equal(t, student1, att.UserID)
	assert.Equal(t, sid, att.SessionID)

	rec, env = a.do(http.MethodPost, redeem, redeemPassRequest{Code: "PASS0001"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_pass_code", env.Error.Code)

	rec, env = a.do(http.MethodGet, "/api/v1/groups/"+gid+"/attendances?student_id="+student1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]query.AttendanceView](t, env), 1)
}

func TestIssuePass_Rejections(t *testing.T) {
	a := newAPI(t, nil)
	gid, sid := a.seed()
	passes := "/api/v1/groups/" + gid + "/sessions/" + sid + "/passes"

	rec, env := a.do(http.MethodPost, passes, issuePassRequest{RequesteeID: student1})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing requester header")
	assert.Equal(t, "validation_error", env.Error.Code)

	rec, env = a.do(http.MethodPost, passes, issuePassRequest{RequesteeID: student2}, HeaderUserID, tutor)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_registered", env.Error.Code)

	rec, _ = a.do(http.MethodPost, "/api/v1/groups/"+gid+"/sessions/"+shared.NewSessionID().String()+"/passes",
		issuePassRequest{RequesteeID: student1}, HeaderUserID, tutor)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordAttendance_GroupLevel(t *testing.T) {
	a := newAPI(t, nil)
	gid, sid := a.seed()
	record := "/api/v1/groups/" + gid + "/attendances"

	rec, env := a.do(http.MethodPost, "/api/v1/groups/"+gid+"/sessions/"+sid+"/passes",
		issuePassRequest{RequesteeID: student1}, HeaderUserID, tutor)
	require.Equal(t, http.StatusCreated, rec.Code)
	code := decodeData[passResponse](t, env).Code

	a.clock.Advance(6 * time.Minute)
	rec, env = a.do(http.MethodPost, record, recordAttendanceRequest{SessionID: sid, Code: code})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "expired_pass", env.Error.Code)

	rec, env = a.do(http.MethodPost, "/api/v1/groups/"+gid+"/sessions/"+sid+"/passes",
		issuePassRequest{RequesteeID: student1}, HeaderUserID, tutor)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	code = decodeData[passResponse](t, env).Code

	rec, _ = a.do(http.MethodPost, record, recordAttendanceRequest{SessionID: sid, Code: code})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestBadRequests(t *testing.T) {
	a := newAPI(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/api/v1/groups", "{", http.StatusBadRequest, "invalid_body"},
		{"empty body", http.MethodPost, "/api/v1/groups", nil, http.StatusBadRequest, "invalid_body"},
		{"unknown field", http.MethodPost, "/api/v1/groups", `{"title":"x"}`, http.StatusBadRequest, "invalid_body"},
		{"blank name", http.MethodPost, "/api/v1/groups", createGroupRequest{Name: "  "}, http.StatusBadRequest, "validation_error"},
		{"bad group id", http.MethodGet, "/api/v1/groups/nope", nil, http.StatusBadRequest, "validation_error"},
		{"bad code", http.MethodGet, "/api/v1/groups/by-code/nope", nil, http.StatusBadRequest, "validation_error"},
		{"unknown route", http.MethodGet, "/api/v2/groups", nil, http.StatusNotFound, "not_found"},
		{"wrong method", http.MethodPut, "/api/v1/groups", nil, http.StatusMethodNotAllowed, "method_not_allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := a.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestBodyLimit(t *testing.T) {
	a := newAPI(t, nil)
	big := `{"name":"` + strings.Repeat("x", 2<<20) + `"}`

	rec, env := a.do(http.MethodPost, "/api/v1/groups", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "body_too_large", env.Error.Code)
}

func TestHealth(t *testing.T) {
	t.Run("no checker", func(t *testing.T) {
		a := newAPI(t, nil)
		rec, _ := a.do(http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		rec, _ = a.do(http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing check", func(t *testing.T) {
		checker := NewCompositeHealthChecker("test")
		checker.AddCheck("database", func(context.Context) error { return nil })
		checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
		a := newAPI(t, checker)

		rec, env := a.do(http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		status := decodeData[HealthStatus](t, env)
		assert.False(t, status.Healthy)
		assert.True(t, status.Checks["database"].Healthy)
		assert.Equal(t, "connection refused", status.Checks["redis"].Message)

		rec, env = a.do(http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Some checks failed: redis", env.Error.Message)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{shared.ErrGroupNotFound, http.StatusNotFound, "not_found"},
		{shared.ErrEmptyRoster, http.StatusBadRequest, "validation_error"},
		{shared.ErrGroupAlreadyExists, http.StatusConflict, "already_exists"},
		{shared.ErrExpiredPass, http.StatusConflict, "expired_pass"},
		{fmt.Errorf("wrapped: %w", shared.ErrDuplicateAttendance), http.StatusConflict, "already_attended"},
		{shared.ErrCodeExhausted, http.StatusConflict, "state_conflict"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
