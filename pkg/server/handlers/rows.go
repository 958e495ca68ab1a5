package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lstore-db/lstore/pkg/query"
)

type insertRequest struct {
	Columns []int64 `json:"columns"`
}

// InsertRow handles POST /tables/{table}/rows.
func (h *Handlers) InsertRow(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	var req insertRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !eng.Insert(req.Columns) {
		h.counters.InsertsFailed.Add(1)
		writeError(w, http.StatusConflict, "insert rejected: arity mismatch or duplicate key")
		return
	}
	h.counters.InsertsExecuted.Add(1)
	writeSuccess(w, map[string]interface{}{"columns": req.Columns})
}

// optionalColumnsRequest represents an update body where a null entry
// means "leave this column unchanged".
type optionalColumnsRequest struct {
	Columns []*int64 `json:"columns"`
}

func toOptionalInts(cols []*int64) []query.OptionalInt {
	out := make([]query.OptionalInt, len(cols))
	for i, c := range cols {
		if c != nil {
			out[i] = query.Some(*c)
		}
	}
	return out
}

// GetRow handles GET /tables/{table}/rows/{key}?version=N.
func (h *Handlers) GetRow(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	key, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}
	keyCol := eng.Table().KeyCol
	projection := make([]bool, eng.Table().NumColumns)
	for i := range projection {
		projection[i] = true
	}

	version := parseIntQuery(r, "version", 0)
	recs, _ := eng.SelectVersion(key, keyCol, projection, version)

	h.counters.QueriesExecuted.Add(1)
	out := make([]map[string]interface{}, len(recs))
	for i, rec := range recs {
		cols := make([]int64, len(rec.Columns))
		for j, c := range rec.Columns {
			cols[j] = c.Value
		}
		out[i] = map[string]interface{}{"rid": rec.RID, "key": rec.Key, "columns": cols}
	}
	writeSuccess(w, out)
}

// UpdateRow handles PUT /tables/{table}/rows/{key}.
func (h *Handlers) UpdateRow(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	key, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}
	var req optionalColumnsRequest
	if err := parseJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !eng.Update(key, toOptionalInts(req.Columns)) {
		h.counters.UpdatesFailed.Add(1)
		writeError(w, http.StatusConflict, "update rejected: unknown key or primary-key change")
		return
	}
	h.counters.UpdatesExecuted.Add(1)
	writeSuccess(w, map[string]int64{"key": key})
}

// DeleteRow handles DELETE /tables/{table}/rows/{key}.
func (h *Handlers) DeleteRow(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	key, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}
	if !eng.Delete(key) {
		h.counters.DeletesFailed.Add(1)
		writeError(w, http.StatusNotFound, "delete rejected: unknown key")
		return
	}
	h.counters.DeletesExecuted.Add(1)
	writeSuccess(w, map[string]int64{"key": key})
}

// Sum handles GET /tables/{table}/sum?lo=&hi=&col=&version=.
func (h *Handlers) Sum(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	lo := parseIntQuery(r, "lo", 0)
	hi := parseIntQuery(r, "hi", 0)
	col := int(parseIntQuery(r, "col", 0))
	version := parseIntQuery(r, "version", 0)

	value, found := eng.SumVersion(lo, hi, col, version)
	if !found {
		h.counters.SumsFailed.Add(1)
		writeError(w, http.StatusNotFound, "no keys in range")
		return
	}
	h.counters.SumsExecuted.Add(1)
	writeSuccess(w, map[string]int64{"value": value})
}

// Increment handles POST /tables/{table}/rows/{key}/increment?col=.
func (h *Handlers) Increment(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	key, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid key")
		return
	}
	col := int(parseIntQuery(r, "col", -1))
	if col < 0 {
		writeError(w, http.StatusBadRequest, "missing col query parameter")
		return
	}
	if !eng.Increment(key, col) {
		h.counters.UpdatesFailed.Add(1)
		writeError(w, http.StatusNotFound, "increment rejected: unknown key")
		return
	}
	h.counters.UpdatesExecuted.Add(1)
	writeSuccess(w, map[string]int64{"key": key})
}
