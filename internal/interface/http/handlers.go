package http

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alem-hub/engagement-hub/internal/application/command"
	"github.com/alem-hub/engagement-hub/internal/application/query"
	"github.com/alem-hub/engagement-hub/internal/domain/engagement"
	"github.com/alem-hub/engagement-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type registerStudentRequest struct {
	StudentID   string `json:"student_id"`
	DisplayName string `json:"display_name"`
}

type dailyCheckInRequest struct {
	StudentID     string `json:"student_id"`
	QuizScore     any    `json:"quiz_score"`
	FocusMinutes  any    `json:"focus_minutes"`
	FocusDuration any    `json:"focus_duration"`
}

type reportCheatRequest struct {
	StudentID     string `json:"student_id"`
	FocusMinutes  any    `json:"focus_minutes"`
	FocusDuration any    `json:"focus_duration"`
	Reason        string `json:"reason"`
}

type assignInterventionRequest struct {
	StudentID       string `json:"student_id"`
	TaskDescription string `json:"task_description"`
}

type completeInterventionRequest struct {
	StudentID      string `json:"student_id"`
	InterventionID string `json:"intervention_id"`
	FocusDuration  any    `json:"focus_duration"`
}

// EngagementResponse answers check-ins and violation reports.
type EngagementResponse struct {
	Status  engagement.State `json:"status"`
	Warning string           `json:"warning,omitempty"`
}

// AssignResponse answers intervention assignment.
type AssignResponse struct {
	Success        bool   `json:"success"`
	InterventionID string `json:"intervention_id"`
}

// CompleteResponse answers intervention completion.
type CompleteResponse struct {
	Success bool `json:"success"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGAGEMENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStatus serves GET /student/{id}/status.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.GetStatus.Handle(r.Context(), query.GetStatusQuery{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleGetLogs serves GET /student/{id}/logs?limit=N.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.deps.GetLogs.Handle(r.Context(), query.GetLogsQuery{
		StudentID: r.PathValue("id"),
		Limit:     getQueryParamInt(r, "limit", 0),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerStudentRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	st, err := s.deps.RegisterStudent.Handle(r.Context(), command.RegisterStudentCommand{
		StudentID:   req.StudentID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleDailyCheckIn(w http.ResponseWriter, r *http.Request) {
	var req dailyCheckInRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	score, err := parseScore(req.QuizScore)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.DailyCheckIn.Handle(r.Context(), command.DailyCheckInCommand{
		StudentID:     req.StudentID,
		QuizScore:     score,
		FocusMinutes:  req.FocusMinutes,
		FocusDuration: req.FocusDuration,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EngagementResponse{Status: res.Status, Warning: res.Warning})
}

func (s *Server) handleReportCheat(w http.ResponseWriter, r *http.Request) {
	var req reportCheatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.deps.ReportViolation.Handle(r.Context(), command.ReportViolationCommand{
		StudentID:     req.StudentID,
		FocusMinutes:  req.FocusMinutes,
		FocusDuration: req.FocusDuration,
		Reason:        req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EngagementResponse{Status: res.Status, Warning: res.Warning})
}

func (s *Server) handleAssignIntervention(w http.ResponseWriter, r *http.Request) {
	var req assignInterventionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.deps.AssignIntervention.Handle(r.Context(), command.AssignInterventionCommand{
		StudentID:       req.StudentID,
		TaskDescription: req.TaskDescription,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{Success: true, InterventionID: res.InterventionID})
}

func (s *Server) handleCompleteIntervention(w http.ResponseWriter, r *http.Request) {
	var req completeInterventionRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if _, err := s.deps.CompleteIntervention.Handle(r.Context(), command.CompleteInterventionCommand{
		StudentID:      req.StudentID,
		InterventionID: req.InterventionID,
		FocusDuration:  req.FocusDuration,
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompleteResponse{Success: true})
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"healthy": true,
			"uptime":  s.Uptime().Round(time.Second).String(),
		})
		return
	}
	status := s.deps.Health.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if status := s.deps.Health.Check(r.Context()); !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusForError maps domain error kinds to HTTP status and error code.
func statusForError(err error) (int, string) {
	switch {
	case shared.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError writes the mapped error. Server errors get a generic message;
// the cause is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", getRequestID(r.Context()),
			"error", err,
		)
		writeJSONError(w, status, code, "An unexpected error occurred")
		return
	}

	msg := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	writeJSONError(w, status, code, msg)
}

// parseScore accepts a JSON number or a numeric string. nil means absent.
func parseScore(raw any) (*float64, error) {
	var v float64
	switch n := raw.(type) {
	case nil:
		return nil, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, shared.Validation("engagement", "Validate", "quiz_score must be a number")
		}
		v = f
	case float64:
		v = n
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, shared.Validation("engagement", "Validate", "quiz_score must be a number")
		}
		v = f
	default:
		return nil, shared.Validation("engagement", "Validate", "quiz_score must be a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, shared.Validation("engagement", "Validate", "quiz_score must be a finite number")
	}
	return &v, nil
}
