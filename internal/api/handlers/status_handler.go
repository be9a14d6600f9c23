// internal/api/handlers/status_handler.go
package handlers

import (
	"net/http"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/jobcard"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/sirupsen/logrus"
)

// OutboxStats reports how many events are waiting to be published
type OutboxStats interface {
	Pending() int
}

type StatusHandler struct {
	svc       *jobcard.Service
	outbox    OutboxStats
	serviceID string
	storage   string
	startedAt time.Time
	log       *logrus.Entry
}

type systemStatus struct {
	models.ServiceStatus
	Uptime        string `json:"uptime"`
	JobCards      int    `json:"jobCards"`
	PendingEvents int    `json:"pendingEvents"`
}

// NewStatusHandler creates the system status handler. outbox may be nil when publishing is disabled.
func NewStatusHandler(svc *jobcard.Service, outbox OutboxStats, serviceID, storage string, log *logrus.Entry) *StatusHandler {
	return &StatusHandler{
		svc:       svc,
		outbox:    outbox,
		serviceID: serviceID,
		storage:   storage,
		startedAt: time.Now().UTC(),
		log:       log,
	}
}

func (h *StatusHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.Status.GetSystemStatus"

	cards, err := h.svc.ListJobCards(r.Context())
	if err != nil {
		writeError(w, h.log.WithField("operation", op), op, err)
		return
	}

	status := systemStatus{
		ServiceStatus: models.ServiceStatus{
			ID:        h.serviceID,
			Event:     models.ServiceStarted,
			Timestamp: h.startedAt,
			Storage:   h.storage,
		},
		Uptime:   time.Since(h.startedAt).Round(time.Second).String(),
		JobCards: len(cards),
	}
	if h.outbox != nil {
		status.PendingEvents = h.outbox.Pending()
	}

	writeJSON(w, http.StatusOK, status)
}
