package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ansoraGROUP/dupaboard/internal/middleware"
	"github.com/ansoraGROUP/dupaboard/internal/models"
	"github.com/ansoraGROUP/dupaboard/internal/repository"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a JSON request body into v, answering 400 itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// storeError turns a repository error into a response. Platform messages
// are logged, never returned: callers only see the stable text below.
func storeError(w http.ResponseWriter, r *http.Request, verb, noun string, err error) {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		writeError(w, http.StatusBadRequest, validation.Message)
		return
	}

	status, message := http.StatusInternalServerError, "failed to "+verb+" "+noun
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status, message = http.StatusNotFound, singular(noun)+" not found"
	case errors.Is(err, repository.ErrForbidden):
		status, message = http.StatusForbidden, "not allowed to "+verb+" "+noun
	case errors.Is(err, repository.ErrConflict):
		status, message = http.StatusConflict, singular(noun)+" conflicts with existing data"
	case errors.Is(err, repository.ErrInvalid), errors.Is(err, models.ErrInvalidInput):
		status, message = http.StatusBadRequest, "invalid "+singular(noun)+" data"
	}

	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelInfo
	}
	slog.Log(r.Context(), level, "Request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"user_id", middleware.GetUserID(r),
		"status", status,
		"error", err,
	)
	writeError(w, status, message)
}

func singular(noun string) string {
	if n := len(noun); n > 1 && noun[n-1] == 's' {
		return noun[:n-1]
	}
	return noun
}
