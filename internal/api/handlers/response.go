// internal/api/handlers/response.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fawad-mazhar/jobcards/internal/api/auth"
	"github.com/fawad-mazhar/jobcards/internal/jobcard"
	"github.com/fawad-mazhar/jobcards/internal/lifecycle"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/fawad-mazhar/jobcards/internal/storage"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrValidation), errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lifecycle.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrTaskNotFound),
		errors.Is(err, storage.ErrJobCardNotFound),
		errors.Is(err, template.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobcard.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *logrus.Entry, op string, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error()}

	var verr *lifecycle.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).Errorf("%s: request failed", op)
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// decode reads a JSON body, rejecting unknown fields
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func actorFrom(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing actor"})
	}
	return actor, ok
}

// setETag exposes the task version
func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}

// expectedVersion parses If-Match. A missing header means no version check.
// Weak entity tags are refused since If-Match uses strong comparison.
func expectedVersion(r *http.Request) (int64, error) {
	value := strings.TrimSpace(r.Header.Get("If-Match"))
	if value == "" || value == "*" {
		return 0, nil
	}
	if strings.HasPrefix(value, "W/") {
		return 0, fmt.Errorf("weak entity tag %q cannot be used with If-Match", value)
	}
	if unquoted, err := strconv.Unquote(value); err == nil {
		value = unquoted
	}
	version, err := strconv.ParseInt(value, 10, 64)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("invalid If-Match header %q", r.Header.Get("If-Match"))
	}
	return version, nil
}
