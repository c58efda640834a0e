package taskstore

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Router mounts the TaskStore HTTP API onto r.
func (s *Store) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/tasks/", s.handleList)
	r.Post("/tasks/", s.handleCreate)
	r.Get("/tasks/queue", s.handleQueue)
	r.Get("/tasks/stats", s.handleStats)
	r.Put("/tasks/{id}/accept", s.handleAccept)
	r.Put("/tasks/{id}/complete", s.handleComplete)
	r.Put("/tasks/{id}/reminded", s.handleReminded)
	r.Put("/tasks/{id}/dispatch", s.handleDispatch)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]string{"error": kind, "message": message})
}

func (s *Store) handleList(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	tasks, err := s.List(skip, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// createTaskRequest is the wire shape for POST /tasks/. task_type
// arrives as a CSV string at this boundary and is split into the
// ordered set of non-empty strings the store operates on.
type createTaskRequest struct {
	Title                string  `json:"title"`
	Description          string  `json:"description"`
	Location             string  `json:"location"`
	Zone                 string  `json:"zone"`
	TaskType             string  `json:"task_type"`
	BountyGold           int     `json:"bounty_gold"`
	BountyXP             int     `json:"bounty_xp"`
	Urgency              int     `json:"urgency"`
	MinPeopleRequired    int     `json:"min_people_required"`
	EstimatedDurationMin int     `json:"estimated_duration_min"`
	AnnouncementAudioURL *string `json:"announcement_audio_url"`
	AnnouncementText     *string `json:"announcement_text"`
	CompletionAudioURL   *string `json:"completion_audio_url"`
	CompletionText       *string `json:"completion_text"`
}

// parseTaskTypeCSV splits a comma-separated task_type string into an
// ordered set of non-empty, trimmed strings, rejecting empty elements.
func parseTaskTypeCSV(csv string) ([]string, error) {
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			return nil, errors.New("task_type contains an empty element")
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	taskTypes, err := parseTaskTypeCSV(req.TaskType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_task_type", err.Error())
		return
	}

	task, _, err := s.Create(CreateRequest{
		Title:                req.Title,
		Description:          req.Description,
		Location:             req.Location,
		Zone:                 req.Zone,
		TaskType:             taskTypes,
		BountyGold:           req.BountyGold,
		BountyXP:             req.BountyXP,
		Urgency:              req.Urgency,
		MinPeopleRequired:    req.MinPeopleRequired,
		EstimatedDurationMin: req.EstimatedDurationMin,
		AnnouncementAudioURL: req.AnnouncementAudioURL,
		AnnouncementText:     req.AnnouncementText,
		CompletionAudioURL:   req.CompletionAudioURL,
		CompletionText:       req.CompletionText,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Store) handleQueue(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Queue()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Store) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Store) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		UserID *string `json:"user_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	task, err := s.Accept(id, body.UserID)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Store) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		ReportStatus   string `json:"report_status"`
		CompletionNote string `json:"completion_note"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	task, err := s.Complete(id, CompleteRequest{ReportStatus: ReportStatus(body.ReportStatus), CompletionNote: body.CompletionNote})
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Store) handleReminded(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.Reminded(id)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Store) handleDispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := s.Dispatch(id)
	if err != nil {
		writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrAlreadyCompleted):
		writeError(w, http.StatusBadRequest, "already_completed", err.Error())
	case errors.Is(err, ErrAlreadyAccepted):
		writeError(w, http.StatusBadRequest, "already_accepted", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
