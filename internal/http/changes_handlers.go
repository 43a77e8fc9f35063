package httpserver

import (
	"net/http"

	"db_changelog_migrator/internal/migrate"
)

type ChangesHandler struct {
	engine Engine
	logger requestLogger
}

type changesResponse struct {
	Changes []migrate.Change `json:"changes"`
}

// List returns every known change, applied or not, ordered by id.
func (h *ChangesHandler) List(w http.ResponseWriter, r *http.Request) {
	changes, err := h.engine.Status(r.Context())
	if err != nil {
		h.logger.Error("status failed", "error", err)
		writeEngineError(w, r, err)
		return
	}
	if changes == nil {
		changes = []migrate.Change{}
	}
	writeJSON(w, http.StatusOK, changesResponse{Changes: changes})
}

// Pending returns the scripts an up run would apply, in order.
func (h *ChangesHandler) Pending(w http.ResponseWriter, r *http.Request) {
	scripts, err := h.engine.Pending(r.Context())
	if err != nil {
		h.logger.Error("pending failed", "error", err)
		writeEngineError(w, r, err)
		return
	}
	changes := make([]migrate.Change, 0, len(scripts))
	for _, sc := range scripts {
		changes = append(changes, migrate.Change{ID: sc.ID, Description: sc.Description, Filename: sc.Filename})
	}
	writeJSON(w, http.StatusOK, changesResponse{Changes: changes})
}
