// internal/api/handlers/jobcard_handler.go
package handlers

import (
	"net/http"

	"github.com/fawad-mazhar/jobcards/internal/jobcard"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type JobCardHandler struct {
	svc *jobcard.Service
	log *logrus.Entry
}

func NewJobCardHandler(svc *jobcard.Service, log *logrus.Entry) *JobCardHandler {
	return &JobCardHandler{
		svc: svc,
		log: log,
	}
}

func (h *JobCardHandler) CreateJobCard(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.JobCard.CreateJobCard"
	log := h.log.WithField("operation", op)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var in models.NewJobCard
	if err := decode(r, &in); err != nil {
		badRequest(w, err.Error())
		return
	}

	view, err := h.svc.CreateJobCard(r.Context(), in, actor)
	if err != nil {
		writeError(w, log, op, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

func (h *JobCardHandler) ListJobCards(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.JobCard.ListJobCards"

	cards, err := h.svc.ListJobCards(r.Context())
	if err != nil {
		writeError(w, h.log.WithField("operation", op), op, err)
		return
	}

	writeJSON(w, http.StatusOK, cards)
}

func (h *JobCardHandler) GetJobCard(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.JobCard.GetJobCard"

	view, err := h.svc.GetJobCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log.WithField("operation", op), op, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *JobCardHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.JobCard.GetHistory"

	entries, err := h.svc.JobCardHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log.WithField("operation", op), op, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *JobCardHandler) VerifyAll(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.JobCard.VerifyAll"
	log := h.log.WithField("operation", op)

	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	verified, err := h.svc.VerifyAll(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, log, op, err)
		return
	}

	log.WithField("count", len(verified)).Info("tasks verified in batch")
	writeJSON(w, http.StatusOK, map[string]any{
		"verified": verified,
		"count":    len(verified),
	})
}
