package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// CreateIndex handles POST /tables/{table}/index/{col}.
func (h *Handlers) CreateIndex(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	col, err := strconv.Atoi(chi.URLParam(r, "col"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid column")
		return
	}
	if err := eng.CreateIndex(col); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeSuccess(w, map[string]int{"column": col})
}

// DropIndex handles DELETE /tables/{table}/index/{col}.
func (h *Handlers) DropIndex(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	col, err := strconv.Atoi(chi.URLParam(r, "col"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid column")
		return
	}
	if err := eng.DropIndex(col); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, map[string]int{"column": col})
}

// Health handles GET /_health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]interface{}{"tables": h.db.TableNames()})
}
