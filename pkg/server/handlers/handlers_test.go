package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/lstore-db/lstore/pkg/database"
	"github.com/lstore-db/lstore/pkg/metrics"
	"github.com/lstore-db/lstore/pkg/table"
)

func setupTestHandlers(t *testing.T) (*Handlers, *database.Database, func()) {
	config := &database.Config{DataDir: t.TempDir(), BufferPoolSize: 100}
	db, err := database.Open(config)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	h := New(db, metrics.NewCounters())
	cleanup := func() { db.Close() }
	return h, db, cleanup
}

func withTableParam(req *http.Request, table string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("table", table)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateTableHandler(t *testing.T) {
	h, db, cleanup := setupTestHandlers(t)
	defer cleanup()

	body, _ := json.Marshal(createTableRequest{NumColumns: 3, KeyCol: 0})
	req := httptest.NewRequest("POST", "/tables/grades", bytes.NewBuffer(body))
	req = withTableParam(req, "grades")

	w := httptest.NewRecorder()
	h.CreateTable(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := db.GetTable("grades"); !ok {
		t.Error("expected table 'grades' to exist after CreateTable")
	}
}

func TestCreateTableHandlerInvokesOnTableCreated(t *testing.T) {
	h, _, cleanup := setupTestHandlers(t)
	defer cleanup()

	var wired bool
	h.OnTableCreated = func(tbl *table.Table) { wired = true }

	body, _ := json.Marshal(createTableRequest{NumColumns: 2, KeyCol: 0})
	req := httptest.NewRequest("POST", "/tables/grades", bytes.NewBuffer(body))
	req = withTableParam(req, "grades")

	w := httptest.NewRecorder()
	h.CreateTable(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !wired {
		t.Error("expected OnTableCreated to be invoked for a table created over HTTP")
	}
}

func TestInsertRowHandler(t *testing.T) {
	h, db, cleanup := setupTestHandlers(t)
	defer cleanup()

	if _, err := db.CreateTable("grades", 3, 0); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	body, _ := json.Marshal(insertRequest{Columns: []int64{10, 20, 30}})
	req := httptest.NewRequest("POST", "/tables/grades/rows", bytes.NewBuffer(body))
	req = withTableParam(req, "grades")

	w := httptest.NewRecorder()
	h.InsertRow(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestInsertRowHandlerUnknownTable(t *testing.T) {
	h, _, cleanup := setupTestHandlers(t)
	defer cleanup()

	body, _ := json.Marshal(insertRequest{Columns: []int64{10, 20, 30}})
	req := httptest.NewRequest("POST", "/tables/missing/rows", bytes.NewBuffer(body))
	req = withTableParam(req, "missing")

	w := httptest.NewRecorder()
	h.InsertRow(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown table, got %d", w.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h, db, cleanup := setupTestHandlers(t)
	defer cleanup()

	if _, err := db.CreateTable("grades", 3, 0); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	req := httptest.NewRequest("GET", "/_health", nil)
	w := httptest.NewRecorder()
	h.Health(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	result := resp["result"].(map[string]interface{})
	tables := result["tables"].([]interface{})
	if len(tables) != 1 || tables[0] != "grades" {
		t.Errorf("Expected [grades], got %v", tables)
	}
}
