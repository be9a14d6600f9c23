// internal/api/handlers/template_handler.go
package handlers

import (
	"net/http"

	"github.com/fawad-mazhar/jobcards/internal/jobcard"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type TemplateHandler struct {
	svc *jobcard.Service
	log *logrus.Entry
}

func NewTemplateHandler(svc *jobcard.Service, log *logrus.Entry) *TemplateHandler {
	return &TemplateHandler{
		svc: svc,
		log: log,
	}
}

type templateResponse struct {
	template.Template
	TotalHours float64 `json:"totalHours"`
}

func (h *TemplateHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates := h.svc.Templates()

	resp := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		resp = append(resp, templateResponse{Template: t, TotalHours: template.TotalHours(t)})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *TemplateHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Template.GetTemplate"

	t, err := h.svc.Template(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log.WithField("operation", op), op, err)
		return
	}

	writeJSON(w, http.StatusOK, templateResponse{Template: t, TotalHours: template.TotalHours(t)})
}
