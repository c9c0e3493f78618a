package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskwise/internal/analytics"
	"taskwise/internal/model"
	"taskwise/internal/service"
	"taskwise/internal/tasklist"
)

type taskJSON struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	DueDate      time.Time      `json:"dueDate"`
	Priority     model.Priority `json:"priority"`
	Category     model.Category `json:"category"`
	Completed    bool           `json:"completed"`
	ReminderSent bool           `json:"reminderSent"`
	PastDue      bool           `json:"pastDue"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func toJSON(t model.Task, now time.Time) taskJSON {
	return taskJSON{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		DueDate:      t.DueDate,
		Priority:     t.Priority,
		Category:     t.Category,
		Completed:    t.Completed,
		ReminderSent: t.ReminderSent,
		PastDue:      tasklist.IsPastDue(t, now),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toJSONList(tasks []model.Task, now time.Time) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toJSON(t, now))
	}
	return out
}

type taskRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	DueDate     time.Time      `json:"dueDate"`
	Priority    model.Priority `json:"priority"`
	Category    model.Category `json:"category"`
}

func (r taskRequest) input() service.TaskInput {
	return service.TaskInput{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
		Priority:    r.Priority,
		Category:    r.Category,
	}
}

type patchRequest struct {
	Title       *string         `json:"title"`
	Description *string         `json:"description"`
	DueDate     *time.Time      `json:"dueDate"`
	Priority    *model.Priority `json:"priority"`
	Category    *model.Category `json:"category"`
}

// clock returns now in the zone calendar-day filters are evaluated in.
func (s *Server) clock() time.Time { return s.now().In(s.loc) }

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var view tasklist.View
	var err error
	if view.Status, err = tasklist.ParseStatus(q.Get("status")); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if raw := q.Get("priority"); raw != "" && raw != "all" {
		if view.Priority, err = model.ParsePriority(raw); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if raw := q.Get("category"); raw != "" && raw != "all" {
		if view.Category, err = model.ParseCategory(raw); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	now := s.clock()
	tasks, err := s.tasks.View(r.Context(), userID(r.Context()), view, now)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"items": toJSONList(tasks, now)})
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := s.tasks.CreateTask(r.Context(), userID(r.Context()), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeStatus(w, http.StatusCreated, toJSON(*task, s.clock()))
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tasks []taskRequest `json:"tasks"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	inputs := make([]service.TaskInput, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		inputs = append(inputs, t.input())
	}
	tasks, err := s.tasks.CreateBatch(r.Context(), userID(r.Context()), inputs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeStatus(w, http.StatusCreated, map[string]any{"items": toJSONList(tasks, s.clock())})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.tasks.GetTask(r.Context(), userID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, toJSON(*task, s.clock()))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var req patchRequest
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	patch := service.TaskPatch{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Priority:    req.Priority,
		Category:    req.Category,
	}
	task, err := s.tasks.UpdateTask(r.Context(), userID(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, toJSON(*task, s.clock()))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.tasks.DeleteTask(r.Context(), userID(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setCompletion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Completed bool `json:"completed"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	task, err := s.tasks.SetCompleted(r.Context(), userID(r.Context()), chi.URLParam(r, "id"), req.Completed)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, toJSON(*task, s.clock()))
}

func (s *Server) analytics(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(r.Context(), userID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, analytics.Compute(tasks, s.clock()))
}

type candidateJSON struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Priority    model.Priority `json:"priority"`
	Category    model.Category `json:"category"`
	Duration    int            `json:"duration"`
	DueDate     time.Time      `json:"dueDate"`
}

// parseRoutine previews the tasks; nothing is stored until the client posts
// the accepted ones to /tasks/batch.
func (s *Server) parseRoutine(w http.ResponseWriter, r *http.Request) {
	if s.converter == nil {
		writeErr(w, http.StatusServiceUnavailable, "AI features are not configured")
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.converter.Convert(r.Context(), req.Description, s.clock())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]candidateJSON, 0, len(res.Tasks))
	for _, c := range res.Tasks {
		items = append(items, candidateJSON{
			Title:       c.Title,
			Description: c.Description,
			Priority:    c.Priority,
			Category:    c.Category,
			Duration:    int(c.Duration / time.Minute),
			DueDate:     c.DueDate,
		})
	}
	writeJSON(w, map[string]any{"tasks": items, "discarded": res.Discarded})
}

func (s *Server) suggestPriority(w http.ResponseWriter, r *http.Request) {
	if s.converter == nil {
		writeErr(w, http.StatusServiceUnavailable, "AI features are not configured")
		return
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	sug, err := s.converter.SuggestPriority(r.Context(), req.Description)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"suggestedPriority": sug.Priority, "explanation": sug.Explanation})
}

func (s *Server) setNotifications(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeStatus(w, http.StatusBadRequest, map[string]string{"error": "enabled is required", "field": "enabled"})
		return
	}
	if err := s.notif.SetEnabled(r.Context(), userID(r.Context()), *req.Enabled); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, map[string]bool{"enabled": *req.Enabled})
}

func (s *Server) sendTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.notif.SendTest(r.Context(), userID(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registerAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.notif.RegisterAddress(r.Context(), userID(r.Context()), req.Address); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
