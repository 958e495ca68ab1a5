package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lstore-db/lstore/pkg/query"
)

type createTableRequest struct {
	NumColumns int `json:"num_columns"`
	KeyCol     int `json:"key_col"`
}

// CreateTable handles POST /tables/{table}.
func (h *Handlers) CreateTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	var req createTableRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	eng, err := h.db.CreateTable(name, req.NumColumns, req.KeyCol)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if h.OnTableCreated != nil {
		h.OnTableCreated(eng.Table())
	}
	writeSuccess(w, map[string]string{"table": name})
}

// DropTable handles DELETE /tables/{table}.
func (h *Handlers) DropTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	if err := h.db.DropTable(name); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeSuccess(w, map[string]string{"table": name})
}

// ListTables handles GET /tables.
func (h *Handlers) ListTables(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.db.TableNames())
}

func (h *Handlers) engine(w http.ResponseWriter, r *http.Request) (*query.Engine, bool) {
	name := chi.URLParam(r, "table")
	eng, found := h.db.GetTable(name)
	if !found {
		writeError(w, http.StatusNotFound, "unknown table: "+name)
		return nil, false
	}
	return eng, true
}

func parseIntQuery(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
