// internal/api/handlers/task_handler.go
package handlers

import (
	"net/http"

	"github.com/fawad-mazhar/jobcards/internal/jobcard"
	"github.com/fawad-mazhar/jobcards/internal/lifecycle"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type TaskHandler struct {
	svc *jobcard.Service
	log *logrus.Entry
}

func NewTaskHandler(svc *jobcard.Service, log *logrus.Entry) *TaskHandler {
	return &TaskHandler{
		svc: svc,
		log: log,
	}
}

type statusRequest struct {
	Status models.TaskStatus `json:"status"`
}

type assignRequest struct {
	AssignedTo string `json:"assignedTo"`
}

type transitionsResponse struct {
	Current models.TaskStatus   `json:"current"`
	Role    models.Role         `json:"role"`
	Allowed []models.TaskStatus `json:"allowed"`
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.CreateTask"
	log := h.log.WithField("operation", op)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var in models.NewTask
	if err := decode(r, &in); err != nil {
		badRequest(w, err.Error())
		return
	}

	task, err := h.svc.CreateTask(r.Context(), chi.URLParam(r, "id"), in, actor)
	if err != nil {
		writeError(w, log, op, err)
		return
	}

	setETag(w, task.Version)
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.ChangeStatus"

	var req statusRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	h.mutate(w, r, op, func(jobCardID, taskID string, version int64, actor models.Actor) (models.Task, error) {
		return h.svc.ChangeStatus(r.Context(), jobCardID, taskID, req.Status, version, actor)
	})
}

func (h *TaskHandler) EditTask(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.EditTask"

	var update models.TaskUpdate
	if err := decode(r, &update); err != nil {
		badRequest(w, err.Error())
		return
	}

	h.mutate(w, r, op, func(jobCardID, taskID string, version int64, actor models.Actor) (models.Task, error) {
		return h.svc.EditTask(r.Context(), jobCardID, taskID, update, version, actor)
	})
}

func (h *TaskHandler) AssignTask(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.AssignTask"

	var req assignRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	h.mutate(w, r, op, func(jobCardID, taskID string, version int64, actor models.Actor) (models.Task, error) {
		return h.svc.AssignTask(r.Context(), jobCardID, taskID, req.AssignedTo, version, actor)
	})
}

func (h *TaskHandler) VerifyTask(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.VerifyTask"

	h.mutate(w, r, op, func(jobCardID, taskID string, version int64, actor models.Actor) (models.Task, error) {
		return h.svc.VerifyTask(r.Context(), jobCardID, taskID, version, actor)
	})
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.DeleteTask"
	log := h.log.WithField("operation", op)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	version, err := expectedVersion(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.svc.DeleteTask(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "taskId"), version, actor); err != nil {
		writeError(w, log, op, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.GetHistory"

	entries, err := h.svc.TaskHistory(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "taskId"))
	if err != nil {
		writeError(w, h.log.WithField("operation", op), op, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// GetTransitions lists the statuses the calling actor may move the task to
func (h *TaskHandler) GetTransitions(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Task.GetTransitions"

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetJobCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log.WithField("operation", op), op, err)
		return
	}
	idx := lifecycle.FindTask(view.Tasks, chi.URLParam(r, "taskId"))
	if idx < 0 {
		writeError(w, h.log.WithField("operation", op), op, lifecycle.ErrTaskNotFound)
		return
	}

	task := view.Tasks[idx]
	setETag(w, task.Version)
	writeJSON(w, http.StatusOK, transitionsResponse{
		Current: task.Status,
		Role:    actor.Role,
		Allowed: lifecycle.AllowedTransitions(task.Status, actor.Role),
	})
}

type taskAction func(jobCardID, taskID string, version int64, actor models.Actor) (models.Task, error)

func (h *TaskHandler) mutate(w http.ResponseWriter, r *http.Request, op string, action taskAction) {
	log := h.log.WithField("operation", op)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	version, err := expectedVersion(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	task, err := action(chi.URLParam(r, "id"), chi.URLParam(r, "taskId"), version, actor)
	if err != nil {
		writeError(w, log, op, err)
		return
	}

	setETag(w, task.Version)
	writeJSON(w, http.StatusOK, task)
}
