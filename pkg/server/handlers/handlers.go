// Package handlers implements the HTTP handlers mounted by pkg/server:
// table and row CRUD, range-sum, index management, and the
// merge-completion event stream.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/lstore-db/lstore/pkg/database"
	"github.com/lstore-db/lstore/pkg/metrics"
	"github.com/lstore-db/lstore/pkg/table"
)

// Handlers holds the database instance and query counters shared by
// every route.
type Handlers struct {
	db       *database.Database
	counters *metrics.Counters

	// OnTableCreated, if set, is invoked after a table is created over
	// HTTP so the server can apply merge configuration (threshold,
	// event-stream hook) the way it does for tables loaded at Open.
	OnTableCreated func(*table.Table)
}

// New creates a Handlers wrapping db.
func New(db *database.Database, counters *metrics.Counters) *Handlers {
	return &Handlers{db: db, counters: counters}
}

func parseJSONBody(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errBadRequest("failed to read request body")
	}
	defer r.Body.Close()
	if len(body) == 0 {
		return errBadRequest("request body is empty")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errBadRequest("invalid JSON: " + err.Error())
	}
	return nil
}

type badRequestError struct{ message string }

func (e *badRequestError) Error() string { return e.message }
func errBadRequest(msg string) error     { return &badRequestError{message: msg} }

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]interface{}{"ok": false, "error": message})
}

func writeSuccess(w http.ResponseWriter, result interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "result": result})
}
