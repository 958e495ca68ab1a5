package query

import (
	"time"

	"github.com/lstore-db/lstore/pkg/audit"
	"github.com/lstore-db/lstore/pkg/pagerange"
	"github.com/lstore-db/lstore/pkg/table"
)

// Engine is the query surface over a single table, implementing the
// mutating and read operations of spec.md §4.6. All mutating operations
// report success or failure by returning bool/ (value, bool) rather
// than raising, per spec.md §7.
type Engine struct {
	tbl    *table.Table
	logger *audit.Logger // optional; nil disables audit logging
}

// New wraps tbl in a query engine. logger may be nil, in which case
// mutations go unaudited.
func New(tbl *table.Table, logger *audit.Logger) *Engine {
	return &Engine{tbl: tbl, logger: logger}
}

// audit writes an audit event for a mutating operation or a range sum,
// if a logger is configured. schema is the update schema-encoding bitmap and is zero
// for every operation but update.
func (e *Engine) audit(op audit.OperationType, success bool, start time.Time, rid, key, schema int64) {
	if e.logger == nil {
		return
	}
	severity := audit.SeverityInfo
	if !success {
		severity = audit.SeverityError
	}
	_ = e.logger.Log(audit.Event{
		Operation: op,
		Table:     e.tbl.Name,
		Success:   success,
		Duration:  time.Since(start),
		Severity:  severity,
		RID:       rid,
		Key:       key,
		Schema:    schema,
	})
}

// Table returns the underlying table, for callers (e.g. the HTTP
// server) that need direct access for indexing or metrics.
func (e *Engine) Table() *table.Table { return e.tbl }

func nowSeconds() int64 { return time.Now().Unix() }

// locate resolves key_col = key to a RID list, using that column's
// index if one is active, falling back to a page-directory scan
// otherwise (spec.md §4.5, §4.6).
func (e *Engine) locate(keyCol int, key int64) []int64 {
	if ix, ok := e.tbl.Index(keyCol); ok {
		return ix.Locate(key)
	}
	var out []int64
	for rid, loc := range e.tbl.DirectorySnapshot() {
		if loc.IsTail {
			continue
		}
		readLoc, _, err := e.tbl.ResolveRead(rid, 0)
		if err != nil {
			continue
		}
		vals, err := e.tbl.ReadAt(readLoc, table.NumMetaCols+keyCol, 1)
		if err != nil || vals[0] != key {
			continue
		}
		out = append(out, rid)
	}
	return out
}

// Insert implements spec.md §4.6 insert.
func (e *Engine) Insert(cols []int64) bool {
	start := time.Now()
	if len(cols) != e.tbl.NumColumns {
		e.audit(audit.OperationInsert, false, start, table.NullRID, 0, 0)
		return false
	}
	key := cols[e.tbl.KeyCol]
	if rids := e.tbl.KeyIndex().Locate(key); len(rids) > 0 {
		e.audit(audit.OperationInsert, false, start, table.NullRID, key, 0)
		return false
	}

	rid := e.tbl.NewRID()
	pr := e.tbl.CurrentRange()
	row := make([]int64, 0, e.tbl.TotalCols)
	row = append(row, table.NullRID, rid, nowSeconds(), 0)
	row = append(row, cols...)

	prLoc, err := pr.AddBaseRecord(row)
	if err != nil {
		e.audit(audit.OperationInsert, false, start, rid, key, 0)
		return false
	}
	loc := table.Location{RangeIndex: pr.Index(), PageIndex: prLoc.PageIndex, Slot: prLoc.Slot}
	e.tbl.SetLocation(rid, loc)

	for col, ix := range e.tbl.ActiveIndexes() {
		ix.InsertEntry(cols[col], rid)
	}
	e.audit(audit.OperationInsert, true, start, rid, key, 0)
	return true
}

// Select implements spec.md §4.6 select (relative version 0).
func (e *Engine) Select(key int64, keyCol int, projection []bool) ([]Record, bool) {
	return e.selectVersion(key, keyCol, projection, 0)
}

// SelectVersion implements spec.md §4.6 select_version.
func (e *Engine) SelectVersion(key int64, keyCol int, projection []bool, version int64) ([]Record, bool) {
	return e.selectVersion(key, keyCol, projection, version)
}

func (e *Engine) selectVersion(key int64, keyCol int, projection []bool, version int64) ([]Record, bool) {
	var out []Record
	for _, rid := range e.locate(keyCol, key) {
		if _, ok := e.tbl.Locate(rid); !ok {
			continue // deleted
		}
		loc, _, err := e.tbl.ResolveRead(rid, version)
		if err != nil {
			continue
		}
		vals, err := e.tbl.ReadAt(loc, table.NumMetaCols, e.tbl.NumColumns)
		if err != nil {
			continue
		}
		cols := make([]OptionalInt, len(vals))
		for i, v := range vals {
			if i < len(projection) && projection[i] {
				cols[i] = Some(v)
			}
		}
		out = append(out, Record{RID: rid, Key: key, Columns: cols})
	}
	return out, true
}

// Update implements spec.md §4.6 update. A nil/absent entry in cols
// (OptionalInt{Valid:false}) means "unchanged", matching the source
// API's use of None.
func (e *Engine) Update(pk int64, cols []OptionalInt) bool {
	start := time.Now()
	if len(cols) != e.tbl.NumColumns {
		e.audit(audit.OperationUpdate, false, start, table.NullRID, pk, 0)
		return false
	}
	rids := e.tbl.KeyIndex().Locate(pk)
	if len(rids) == 0 {
		e.audit(audit.OperationUpdate, false, start, table.NullRID, pk, 0)
		return false
	}
	rid := rids[0]
	baseLoc, ok := e.tbl.Locate(rid)
	if !ok || baseLoc.IsTail {
		e.audit(audit.OperationUpdate, false, start, rid, pk, 0)
		return false
	}
	if kc := cols[e.tbl.KeyCol]; kc.Valid && kc.Value != pk {
		e.audit(audit.OperationUpdate, false, start, rid, pk, 0) // primary-key change is rejected outright
		return false
	}

	curLoc, _, err := e.tbl.ResolveRead(rid, 0)
	if err != nil {
		e.audit(audit.OperationUpdate, false, start, rid, pk, 0)
		return false
	}
	curVals, err := e.tbl.ReadAt(curLoc, table.NumMetaCols, e.tbl.NumColumns)
	if err != nil {
		e.audit(audit.OperationUpdate, false, start, rid, pk, 0)
		return false
	}

	newVals := make([]int64, e.tbl.NumColumns)
	var schema int64
	for i := 0; i < e.tbl.NumColumns; i++ {
		if cols[i].Valid {
			newVals[i] = cols[i].Value
			schema |= 1 << uint(i)
		} else {
			newVals[i] = curVals[i]
		}
	}

	pr := e.tbl.RangeAt(baseLoc.RangeIndex)
	prBaseLoc := pagerange.Location{PageIndex: baseLoc.PageIndex, Slot: baseLoc.Slot}
	oldIndir, err := pr.GetBaseVal(prBaseLoc, table.ColIndirection)
	if err != nil {
		e.audit(audit.OperationUpdate, false, start, rid, pk, schema)
		return false
	}

	tailRID := e.tbl.NewRID()
	row := make([]int64, 0, e.tbl.TotalCols)
	row = append(row, oldIndir, tailRID, nowSeconds(), schema)
	row = append(row, newVals...)
	tailPRLoc, err := pr.AddTailRecord(row)
	if err != nil {
		e.audit(audit.OperationUpdate, false, start, rid, pk, schema)
		return false
	}
	e.tbl.SetLocation(tailRID, table.Location{RangeIndex: baseLoc.RangeIndex, IsTail: true, PageIndex: tailPRLoc.PageIndex, Slot: tailPRLoc.Slot})

	// The tail row is fully written before the base's indirection is
	// updated (spec.md §5): a concurrent reader sees either the old or
	// the new head, never a dangling pointer.
	e.tbl.LockBasePage(baseLoc.RangeIndex, baseLoc.PageIndex)
	_ = pr.SetBaseVal(prBaseLoc, table.ColIndirection, tailRID)
	oldSchema, _ := pr.GetBaseVal(prBaseLoc, table.ColSchemaEncoding)
	_ = pr.SetBaseVal(prBaseLoc, table.ColSchemaEncoding, oldSchema|schema)
	e.tbl.UnlockBasePage(baseLoc.RangeIndex, baseLoc.PageIndex)

	for col, ix := range e.tbl.ActiveIndexes() {
		if cols[col].Valid && newVals[col] != curVals[col] {
			ix.UpdateEntry(curVals[col], newVals[col], rid)
		}
	}

	e.tbl.MaybeTriggerMerge(baseLoc.RangeIndex)
	e.audit(audit.OperationUpdate, true, start, rid, pk, schema)
	return true
}

// Delete implements spec.md §4.6 delete: removes the row from every
// active index and from the page directory. Tail records are left in
// place; they become unreachable and are ignored by later walks.
func (e *Engine) Delete(pk int64) bool {
	start := time.Now()
	rids := e.tbl.KeyIndex().Locate(pk)
	if len(rids) == 0 {
		e.audit(audit.OperationDelete, false, start, table.NullRID, pk, 0)
		return false
	}
	rid := rids[0]
	if _, ok := e.tbl.Locate(rid); !ok {
		e.audit(audit.OperationDelete, false, start, rid, pk, 0)
		return false
	}

	for col, ix := range e.tbl.ActiveIndexes() {
		loc, _, err := e.tbl.ResolveRead(rid, 0)
		if err != nil {
			continue
		}
		vals, err := e.tbl.ReadAt(loc, table.NumMetaCols+col, 1)
		if err != nil {
			continue
		}
		ix.DeleteEntry(vals[0], rid)
	}
	e.tbl.DeleteLocation(rid)
	e.audit(audit.OperationDelete, true, start, rid, pk, 0)
	return true
}

// Sum implements spec.md §4.6 sum (relative version 0).
func (e *Engine) Sum(lo, hi int64, aggCol int) (int64, bool) {
	return e.sumVersion(lo, hi, aggCol, 0)
}

// SumVersion implements spec.md §4.6 sum_version.
func (e *Engine) SumVersion(lo, hi int64, aggCol int, version int64) (int64, bool) {
	return e.sumVersion(lo, hi, aggCol, version)
}

func (e *Engine) sumVersion(lo, hi int64, aggCol int, version int64) (int64, bool) {
	start := time.Now()
	var total int64
	found := false
	for _, rid := range e.tbl.KeyIndex().LocateRange(lo, hi) {
		if _, ok := e.tbl.Locate(rid); !ok {
			continue
		}
		loc, _, err := e.tbl.ResolveRead(rid, version)
		if err != nil {
			continue
		}
		vals, err := e.tbl.ReadAt(loc, table.NumMetaCols+aggCol, 1)
		if err != nil {
			continue
		}
		total += vals[0]
		found = true
	}
	e.audit(audit.OperationSum, found, start, table.NullRID, lo, 0)
	return total, found
}

// CreateIndex builds a new index over col, per spec.md §4.5.
func (e *Engine) CreateIndex(col int) error {
	return e.tbl.CreateIndex(col, func(rid int64, col int) (int64, bool, error) {
		loc, _, err := e.tbl.ResolveRead(rid, 0)
		if err != nil {
			return 0, false, err
		}
		vals, err := e.tbl.ReadAt(loc, table.NumMetaCols+col, 1)
		if err != nil {
			return 0, false, err
		}
		return vals[0], true, nil
	})
}

// DropIndex removes col's index.
func (e *Engine) DropIndex(col int) error {
	return e.tbl.DropIndex(col)
}

// Increment implements spec.md §4.6 increment: read the current value
// of col and update it to value+1, leaving every other column
// unchanged.
func (e *Engine) Increment(pk int64, col int) bool {
	rids := e.tbl.KeyIndex().Locate(pk)
	if len(rids) == 0 {
		return false
	}
	rid := rids[0]
	loc, _, err := e.tbl.ResolveRead(rid, 0)
	if err != nil {
		return false
	}
	vals, err := e.tbl.ReadAt(loc, table.NumMetaCols+col, 1)
	if err != nil {
		return false
	}
	cols := make([]OptionalInt, e.tbl.NumColumns)
	cols[col] = Some(vals[0] + 1)
	return e.Update(pk, cols)
}
