package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"db_changelog_migrator/internal/migerr"
)

// errorBody echoes the request id so operators can find the matching log line.
type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	body := errorBody{}
	body.Error.Code = code
	body.Error.Message = message
	body.Error.RequestID = middleware.GetReqID(r.Context())
	writeJSON(w, status, body)
}

// writeEngineError maps engine failures onto status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		dirErr    *migerr.DirectoryNotFoundError
		nameErr   *migerr.FilenameParseError
		cfgErr    *migerr.ConfigurationError
		readErr   *migerr.ChangelogReadError
		driverErr *migerr.DriverLoadError
	)
	switch {
	case errors.As(err, &dirErr), errors.As(err, &nameErr), errors.As(err, &cfgErr):
		writeError(w, r, http.StatusInternalServerError, "scripts_invalid", err.Error())
	case errors.As(err, &readErr), errors.As(err, &driverErr):
		writeError(w, r, http.StatusBadGateway, "changelog_unavailable", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
