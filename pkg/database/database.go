// Package database ties storage, page ranges, indexes, and the query
// engine together into an openable, closeable unit with JSON metadata
// persistence, per spec.md §4.8 and §6.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/lstore-db/lstore/pkg/audit"
	"github.com/lstore-db/lstore/pkg/pagerange"
	"github.com/lstore-db/lstore/pkg/query"
	"github.com/lstore-db/lstore/pkg/storage"
	"github.com/lstore-db/lstore/pkg/table"
)

// Config holds database configuration.
type Config struct {
	DataDir        string
	BufferPoolSize int
	AuditConfig    *audit.Config // optional; nil disables audit logging
}

// DefaultConfig returns the spec's default buffer pool capacity
// (10,000 pages) rooted at dataDir.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir:        dataDir,
		BufferPoolSize: 10000,
	}
}

// Database is an open L-Store database: a shared buffer pool plus a set
// of tables, each with its own page-range sequence, page directory, and
// indexes.
type Database struct {
	mu          sync.RWMutex
	path        string
	pool        *storage.BufferPool
	diskMgr     *storage.DiskManager
	tables      map[string]*table.Table
	engines     map[string]*query.Engine
	auditLogger *audit.Logger
	isOpen      bool
}

// dbMeta mirrors db_meta.json's shape from spec.md §6.
type dbMeta struct {
	Tables map[string]tableMetaEntry `json:"tables"`
}

type tableMetaEntry struct {
	Name       string `json:"name"`
	NumColumns int    `json:"num_columns"`
	Key        int    `json:"key"`
}

// tableFileMeta mirrors <table>/table_meta.json's shape.
type tableFileMeta struct {
	NextRID       int64                `json:"next_rid"`
	PageDirectory map[string][4]int64  `json:"page_directory"`
	PageRanges    []pageRangeMetaEntry `json:"page_ranges"`
}

type pageRangeMetaEntry struct {
	NumBaseRecords int              `json:"num_base_records"`
	NumTailRecords int              `json:"num_tail_records"`
	TPS            map[string]int64 `json:"tps"`
}

// Open creates path if missing and, if a prior db_meta.json is present,
// reconstructs every table's page ranges, page directory, and primary
// key index from persisted counters (spec.md §4.8).
func Open(config *Config) (*Database, error) {
	if config.BufferPoolSize <= 0 {
		config.BufferPoolSize = 10000
	}
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("database: create data dir: %w", err)
	}

	diskMgr, err := storage.NewDiskManager(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("database: new disk manager: %w", err)
	}
	pool := storage.NewBufferPool(config.BufferPoolSize, diskMgr)

	db := &Database{
		path:    config.DataDir,
		pool:    pool,
		diskMgr: diskMgr,
		tables:  make(map[string]*table.Table),
		engines: make(map[string]*query.Engine),
		isOpen:  true,
	}

	if config.AuditConfig != nil {
		logger, err := audit.NewLogger(config.AuditConfig)
		if err != nil {
			return nil, fmt.Errorf("database: new audit logger: %w", err)
		}
		db.auditLogger = logger
	}

	metaPath := filepath.Join(config.DataDir, "db_meta.json")
	data, err := os.ReadFile(metaPath)
	if errors.Is(err, os.ErrNotExist) {
		return db, nil // empty database
	}
	if err != nil {
		return nil, fmt.Errorf("database: read db_meta.json: %w", err)
	}

	var meta dbMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("database: parse db_meta.json: %w", err)
	}
	for _, entry := range meta.Tables {
		if err := db.loadTable(entry); err != nil {
			return nil, err
		}
	}
	return db, nil
}

func (db *Database) loadTable(entry tableMetaEntry) error {
	tbl := table.New(entry.Name, entry.Key, entry.NumColumns, db.pool)

	metaPath := filepath.Join(db.path, entry.Name, "table_meta.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("database: read table_meta.json for %s: %w", entry.Name, err)
	}
	var fm tableFileMeta
	if err := json.Unmarshal(data, &fm); err != nil {
		return fmt.Errorf("database: parse table_meta.json for %s: %w", entry.Name, err)
	}

	tbl.RestoreNextRID(fm.NextRID)
	for _, rm := range fm.PageRanges {
		tps := make(map[int]int64, len(rm.TPS))
		for k, v := range rm.TPS {
			pg, err := strconv.Atoi(k)
			if err != nil {
				continue
			}
			tps[pg] = v
		}
		tbl.AppendRestoredRange(rm.NumBaseRecords, rm.NumTailRecords, tps)
	}

	dir := make(map[int64]table.Location, len(fm.PageDirectory))
	for ridStr, quad := range fm.PageDirectory {
		rid, err := strconv.ParseInt(ridStr, 10, 64)
		if err != nil {
			continue
		}
		dir[rid] = table.Location{
			RangeIndex: int(quad[0]),
			IsTail:     quad[1] != 0,
			PageIndex:  int(quad[2]),
			Slot:       int(quad[3]),
		}
	}
	tbl.RestoreDirectory(dir)

	// Rebuild the primary index by reading the key column directly from
	// base (not via the version walk), per spec.md §4.8 step 4.
	for rid, loc := range dir {
		if loc.IsTail {
			continue
		}
		pr := tbl.RangeAt(loc.RangeIndex)
		v, err := pr.GetBaseVal(pagerange.Location{PageIndex: loc.PageIndex, Slot: loc.Slot}, table.NumMetaCols+entry.Key)
		if err != nil {
			continue
		}
		tbl.KeyIndex().InsertEntry(v, rid)
	}

	db.tables[entry.Name] = tbl
	db.engines[entry.Name] = query.New(tbl, db.auditLogger)
	return nil
}

// CreateTable creates an empty table with numColumns user columns and
// primary key column keyCol.
func (db *Database) CreateTable(name string, numColumns, keyCol int) (*query.Engine, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.tables[name]; exists {
		return nil, fmt.Errorf("database: table %q already exists", name)
	}
	if keyCol < 0 || keyCol >= numColumns {
		return nil, fmt.Errorf("database: key column %d out of range for %d columns", keyCol, numColumns)
	}

	tbl := table.New(name, keyCol, numColumns, db.pool)
	eng := query.New(tbl, db.auditLogger)
	db.tables[name] = tbl
	db.engines[name] = eng
	return eng, nil
}

// DropTable removes a table and its on-disk files.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tbl, ok := db.tables[name]
	if !ok {
		return fmt.Errorf("database: table %q does not exist", name)
	}
	tbl.Close()
	delete(db.tables, name)
	delete(db.engines, name)
	return os.RemoveAll(filepath.Join(db.path, name))
}

// GetTable returns the query engine for name, if it exists.
func (db *Database) GetTable(name string) (*query.Engine, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	eng, ok := db.engines[name]
	return eng, ok
}

// TableNames lists every table currently open.
func (db *Database) TableNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	return names
}

// Pool exposes the shared buffer pool, for metrics collection.
func (db *Database) Pool() *storage.BufferPool { return db.pool }

// AuditLogger exposes the configured audit logger, if any.
func (db *Database) AuditLogger() *audit.Logger { return db.auditLogger }

// Close joins every table's merge thread, flushes all dirty pages, and
// serializes db_meta.json plus each table's table_meta.json.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.isOpen {
		return nil
	}

	for _, tbl := range db.tables {
		tbl.Close()
	}
	if err := db.pool.FlushAll(); err != nil {
		return fmt.Errorf("database: flush all: %w", err)
	}

	meta := dbMeta{Tables: make(map[string]tableMetaEntry, len(db.tables))}
	for name, tbl := range db.tables {
		meta.Tables[name] = tableMetaEntry{Name: tbl.Name, NumColumns: tbl.NumColumns, Key: tbl.KeyCol}
		if err := db.saveTableMeta(tbl); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("database: marshal db_meta.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(db.path, "db_meta.json"), data, 0o644); err != nil {
		return fmt.Errorf("database: write db_meta.json: %w", err)
	}

	if db.auditLogger != nil {
		if err := db.auditLogger.Close(); err != nil {
			return fmt.Errorf("database: close audit logger: %w", err)
		}
	}
	db.isOpen = false
	return nil
}

func (db *Database) saveTableMeta(tbl *table.Table) error {
	fm := tableFileMeta{
		NextRID:       tbl.NextRIDValue(),
		PageDirectory: make(map[string][4]int64),
	}
	for rid, loc := range tbl.DirectorySnapshot() {
		isTail := int64(0)
		if loc.IsTail {
			isTail = 1
		}
		fm.PageDirectory[strconv.FormatInt(rid, 10)] = [4]int64{int64(loc.RangeIndex), isTail, int64(loc.PageIndex), int64(loc.Slot)}
	}
	for i := 0; i < tbl.RangeCount(); i++ {
		pr := tbl.RangeAt(i)
		tpsSnapshot := pr.TPSSnapshot()
		tpsJSON := make(map[string]int64, len(tpsSnapshot))
		for pg, v := range tpsSnapshot {
			tpsJSON[strconv.Itoa(pg)] = v
		}
		fm.PageRanges = append(fm.PageRanges, pageRangeMetaEntry{
			NumBaseRecords: pr.NumBaseRecords(),
			NumTailRecords: pr.NumTailRecords(),
			TPS:            tpsJSON,
		})
	}

	data, err := json.MarshalIndent(fm, "", "  ")
	if err != nil {
		return fmt.Errorf("database: marshal table_meta.json for %s: %w", tbl.Name, err)
	}
	dir := filepath.Join(db.path, tbl.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("database: create table dir for %s: %w", tbl.Name, err)
	}
	return os.WriteFile(filepath.Join(dir, "table_meta.json"), data, 0o644)
}
