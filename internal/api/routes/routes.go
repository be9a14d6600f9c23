// internal/api/routes/routes.go
package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/api/auth"
	"github.com/fawad-mazhar/jobcards/internal/api/handlers"
	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/jobcard"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func SetupRouter(cfg *config.Config, svc *jobcard.Service, status *handlers.StatusHandler, log *logrus.Entry) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	timeout := cfg.Server.WriteTimeout
	if timeout <= 0 {
		timeout = config.DefaultServerWriteTimeout
	}
	r.Use(middleware.Timeout(time.Duration(timeout) * time.Second))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	})

	// Initialize handlers
	resolver := auth.NewResolver(cfg.Actors)
	jobCardHandler := handlers.NewJobCardHandler(svc, log)
	taskHandler := handlers.NewTaskHandler(svc, log)
	templateHandler := handlers.NewTemplateHandler(svc, log)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(resolver.Middleware)

		// Template endpoints
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", templateHandler.ListTemplates)
			r.Get("/{id}", templateHandler.GetTemplate)
		})

		// Job card endpoints
		r.Route("/job-cards", func(r chi.Router) {
			r.Post("/", jobCardHandler.CreateJobCard)
			r.Get("/", jobCardHandler.ListJobCards)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", jobCardHandler.GetJobCard)
				r.Get("/history", jobCardHandler.GetHistory)
				r.Post("/verify-all", jobCardHandler.VerifyAll)

				// Task endpoints
				r.Post("/tasks", taskHandler.CreateTask)
				r.Route("/tasks/{taskId}", func(r chi.Router) {
					r.Patch("/", taskHandler.EditTask)
					r.Delete("/", taskHandler.DeleteTask)
					r.Put("/status", taskHandler.ChangeStatus)
					r.Put("/assignee", taskHandler.AssignTask)
					r.Post("/verify", taskHandler.VerifyTask)
					r.Get("/history", taskHandler.GetHistory)
					r.Get("/transitions", taskHandler.GetTransitions)
				})
			})
		})

		// System Status endpoint
		if status != nil {
			r.Get("/system/status", status.GetSystemStatus)
		}
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	return r
}
