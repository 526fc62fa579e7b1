package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kleo-app/kleo/internal/application/command"
	"github.com/kleo-app/kleo/internal/application/query"
	"github.com/kleo-app/kleo/internal/domain/shared"
	"github.com/kleo-app/kleo/pkg/logger"
)

// HeaderUserID carries the acting user. Authentication happens upstream.
const HeaderUserID = "X-User-ID"

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type createGroupRequest struct {
	Name       string   `json:"name"`
	StudentIDs []string `json:"student_ids"`
}

type renameGroupRequest struct {
	Name          string `json:"name"`
	RecomputeCode bool   `json:"recompute_code"`
}

type groupResponse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

type addStudentRequest struct {
	StudentID string `json:"student_id"`
}

type setStudentsRequest struct {
	StudentIDs []string `json:"student_ids"`
}

type rosterResponse struct {
	Changed    bool     `json:"changed"`
	StudentIDs []string `json:"student_ids"`
}

type scheduleSessionRequest struct {
	Type     string    `json:"type"`
	Location string    `json:"location"`
	Begins   time.Time `json:"begins"`
	Ends     time.Time `json:"ends"`
}

type updateSessionRequest struct {
	Type     *string    `json:"type"`
	Location *string    `json:"location"`
	Begins   *time.Time `json:"begins"`
	Ends     *time.Time `json:"ends"`
}

type sessionCreatedResponse struct {
	GroupID   string `json:"group_id"`
	SessionID string `json:"session_id"`
}

type issuePassRequest struct {
	RequesteeID string `json:"requestee_id"`
}

type passResponse struct {
	GroupID     string    `json:"group_id"`
	SessionID   string    `json:"session_id"`
	Code        string    `json:"code"`
	RequesterID string    `json:"requester_id"`
	RequesteeID string    `json:"requestee_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type redeemPassRequest struct {
	Code string `json:"code"`
}

type recordAttendanceRequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"code"`
}

type attendanceResponse struct {
	GroupID    string    `json:"group_id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

func newRosterResponse(res *command.RosterResult) rosterResponse {
	ids := make([]string, 0, len(res.StudentIDs))
	for _, id := range res.StudentIDs {
		ids = append(ids, id.String())
	}
	return rosterResponse{Changed: res.Changed, StudentIDs: ids}
}

func newAttendanceResponse(res *command.AttendanceResult) attendanceResponse {
	return attendanceResponse{
		GroupID:    res.GroupID.String(),
		SessionID:  res.Attendance.SessionID.String(),
		UserID:     res.Attendance.UserID.String(),
		RecordedAt: res.Attendance.RecordedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy", "version": s.config.Version})
		return
	}

	status := s.deps.Health.Check(r.Context())
	status.Version = s.config.Version
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if status := s.deps.Health.Check(r.Context()); !status.Healthy {
			writeJSONError(w, r, http.StatusServiceUnavailable, "not_ready", status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleCreateGroup handles POST /api/v1/groups
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Groups.HandleCreate(r.Context(), command.CreateGroupCommand{
		Name:       req.Name,
		StudentIDs: req.StudentIDs,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, groupResponse{ID: res.GroupID.String(), Code: res.Code.String(), Name: res.Name})
}

// handleGetGroup handles GET /api/v1/groups/{groupID}
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GroupQueries.Handle(r.Context(), query.GetGroupQuery{GroupID: chi.URLParam(r, "groupID")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleGetGroupByCode handles GET /api/v1/groups/by-code/{code}
func (s *Server) handleGetGroupByCode(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GroupQueries.HandleByCode(r.Context(), query.GetGroupByCodeQuery{Code: chi.URLParam(r, "code")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleRenameGroup handles PATCH /api/v1/groups/{groupID}
func (s *Server) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameGroupRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Groups.HandleRename(r.Context(), command.RenameGroupCommand{
		GroupID:       chi.URLParam(r, "groupID"),
		Name:          req.Name,
		RecomputeCode: req.RecomputeCode,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, groupResponse{ID: res.GroupID.String(), Code: res.Code.String(), Name: res.Name})
}

// handleDeleteGroup handles DELETE /api/v1/groups/{groupID}
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Groups.HandleDelete(r.Context(), command.DeleteGroupCommand{GroupID: chi.URLParam(r, "groupID")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAddStudent handles POST /api/v1/groups/{groupID}/students
func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var req addStudentRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Roster.HandleAdd(r.Context(), command.RosterCommand{
		GroupID:   chi.URLParam(r, "groupID"),
		StudentID: req.StudentID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newRosterResponse(res))
}

// handleSetStudents handles PUT /api/v1/groups/{groupID}/students
func (s *Server) handleSetStudents(w http.ResponseWriter, r *http.Request) {
	var req setStudentsRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Roster.HandleSet(r.Context(), command.SetStudentsCommand{
		GroupID:    chi.URLParam(r, "groupID"),
		StudentIDs: req.StudentIDs,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newRosterResponse(res))
}

// handleRemoveStudent handles DELETE /api/v1/groups/{groupID}/students/{studentID}
func (s *Server) handleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Roster.HandleRemove(r.Context(), command.RosterCommand{
		GroupID:   chi.URLParam(r, "groupID"),
		StudentID: chi.URLParam(r, "studentID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newRosterResponse(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListSessions handles GET /api/v1/groups/{groupID}/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.SessionQueries.HandleList(r.Context(), query.ListSessionsQuery{
		GroupID: chi.URLParam(r, "groupID"),
		Type:    r.URL.Query().Get("type"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, views, &ResponseMeta{TotalCount: len(views)})
}

// handleScheduleSession handles POST /api/v1/groups/{groupID}/sessions
func (s *Server) handleScheduleSession(w http.ResponseWriter, r *http.Request) {
	var req scheduleSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Sessions.HandleSchedule(r.Context(), command.ScheduleSessionCommand{
		GroupID:  chi.URLParam(r, "groupID"),
		Type:     req.Type,
		Location: req.Location,
		Begins:   req.Begins,
		Ends:     req.Ends,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, sessionCreatedResponse{
		GroupID:   res.GroupID.String(),
		SessionID: res.SessionID.String(),
	})
}

// handleUnschedule handles DELETE /api/v1/groups/{groupID}/sessions
func (s *Server) handleUnschedule(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.HandleUnschedule(r.Context(), command.UnscheduleCommand{GroupID: chi.URLParam(r, "groupID")}); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSession handles GET /api/v1/groups/{groupID}/sessions/{sessionID}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.SessionQueries.HandleGet(r.Context(), query.GetSessionQuery{
		GroupID:   chi.URLParam(r, "groupID"),
		SessionID: chi.URLParam(r, "sessionID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// handleUpdateSession handles PATCH /api/v1/groups/{groupID}/sessions/{sessionID}
func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if !s.decode(w, r, &req) {
		return
	}

	err := s.deps.Sessions.HandleUpdate(r.Context(), command.UpdateSessionCommand{
		GroupID:   chi.URLParam(r, "groupID"),
		SessionID: chi.URLParam(r, "sessionID"),
		Type:      req.Type,
		Location:  req.Location,
		Begins:    req.Begins,
		Ends:      req.Ends,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleGetSession(w, r)
}

// handleRemoveSession handles DELETE /api/v1/groups/{groupID}/sessions/{sessionID}
func (s *Server) handleRemoveSession(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Sessions.HandleRemove(r.Context(), command.RemoveSessionCommand{
		GroupID:   chi.URLParam(r, "groupID"),
		SessionID: chi.URLParam(r, "sessionID"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// PASS & ATTENDANCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleIssuePass handles POST /api/v1/groups/{groupID}/sessions/{sessionID}/passes
func (s *Server) handleIssuePass(w http.ResponseWriter, r *http.Request) {
	var req issuePassRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Passes.Handle(r.Context(), command.IssuePassCommand{
		GroupID:     chi.URLParam(r, "groupID"),
		SessionID:   chi.URLParam(r, "sessionID"),
		RequesterID: r.Header.Get(HeaderUserID),
		RequesteeID: req.RequesteeID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p := res.Pass
	writeJSON(w, r, http.StatusCreated, passResponse{
		GroupID:     res.GroupID.String(),
		SessionID:   p.SessionID.String(),
		Code:        p.Code,
		RequesterID: p.RequesterID.String(),
		RequesteeID: p.RequesteeID.String(),
		IssuedAt:    p.IssuedAt,
		ExpiresAt:   p.ExpiresAt,
	})
}

// handleRedeemPass handles POST /api/v1/groups/{groupID}/sessions/{sessionID}/attendances
func (s *Server) handleRedeemPass(w http.ResponseWriter, r *http.Request) {
	var req redeemPassRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Attendance.HandleRedeem(r.Context(), command.RedeemPassCommand{
		GroupID:   chi.URLParam(r, "groupID"),
		SessionID: chi.URLParam(r, "sessionID"),
		Code:      req.Code,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newAttendanceResponse(res))
}

// handleRecordAttendance handles POST /api/v1/groups/{groupID}/attendances
func (s *Server) handleRecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req recordAttendanceRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.deps.Attendance.HandleRecord(r.Context(), command.RecordAttendanceCommand{
		GroupID:   chi.URLParam(r, "groupID"),
		SessionID: req.SessionID,
		Code:      req.Code,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, newAttendanceResponse(res))
}

// handleListAttendances handles GET /api/v1/groups/{groupID}/attendances
func (s *Server) handleListAttendances(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.AttendanceQueries.Handle(r.Context(), query.ListAttendancesQuery{
		GroupID:   chi.URLParam(r, "groupID"),
		StudentID: r.URL.Query().Get("student_id"),
		SessionID: r.URL.Query().Get("session_id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, views, &ResponseMeta{TotalCount: len(views)})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decode reads a JSON body into dst, writing a 400 or 413 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "request body is empty")
	default:
		writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "malformed JSON: "+err.Error())
	}
	return false
}

// writeError maps an error to its HTTP status: validation 400, not found
// 404, conflicts 409, anything else 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.String("path", r.URL.Path), logger.Err(err))
		writeJSONError(w, r, status, code, http.StatusText(status))
		return
	}

	log.Debug("request rejected", logger.Int("status", status), logger.Err(err))
	writeJSONError(w, r, status, code, errorMessage(err))
}

func statusFor(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsStateConflict(err):
		return http.StatusConflict, conflictCode(err)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// conflictCode names the specific state conflict so clients can branch on it.
func conflictCode(err error) string {
	switch {
	case errors.Is(err, shared.ErrLivePassExists):
		return "live_pass_exists"
	case errors.Is(err, shared.ErrExpiredPass):
		return "expired_pass"
	case errors.Is(err, shared.ErrInvalidPassCode):
		return "invalid_pass_code"
	case errors.Is(err, shared.ErrAlreadyAttended), errors.Is(err, shared.ErrDuplicateAttendance):
		return "already_attended"
	case errors.Is(err, shared.ErrNotRegistered):
		return "not_registered"
	default:
		return "state_conflict"
	}
}

func errorMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
