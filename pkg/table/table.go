// Package table implements the L-Store Table: the page-range sequence,
// RID allocator, table-wide page directory, column indexes, and the
// version-walk read path that ties them together. It is the component
// the query engine and the merge worker both operate against.
package table

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lstore-db/lstore/pkg/index"
	"github.com/lstore-db/lstore/pkg/pagerange"
	"github.com/lstore-db/lstore/pkg/storage"
)

// Metadata column layout, fixed at M = 4 columns per spec.md §3.
const (
	ColIndirection    = 0
	ColRID            = 1
	ColTimestamp      = 2
	ColSchemaEncoding = 3
	NumMetaCols       = 4

	// NullRID is the sentinel meaning "no RID" (end of an indirection
	// chain, or "no update has touched this row yet").
	NullRID int64 = 0

	// DefaultMergeThreshold is the per-range tail-record count that
	// triggers an asynchronous merge.
	DefaultMergeThreshold = 100000
)

// Location is a RID's physical address: which range, whether it is a
// base or tail record, and its (page, slot) within that range.
type Location struct {
	RangeIndex int
	IsTail     bool
	PageIndex  int
	Slot       int
}

// Table owns a sequence of page ranges, the RID allocator, the
// table-wide page directory, and the column indexes.
type Table struct {
	Name       string
	KeyCol     int
	NumColumns int // K, user columns only
	TotalCols  int // K + NumMetaCols

	pool           *storage.BufferPool
	mergeThreshold int

	mu        sync.RWMutex
	ranges    []*pagerange.PageRange
	directory map[int64]Location
	nextRID   int64
	indexes   map[int]*index.Index

	latchMu sync.Mutex
	latches map[[2]int]*sync.Mutex

	mergeMu     sync.Mutex
	merging     map[int]bool
	mergeWG     sync.WaitGroup
	onMergeDone func(Event)
}

// Event describes a completed merge pass, used to drive the HTTP
// server's merge-progress notifications.
type Event struct {
	Table      string
	RangeIndex int
	PagesTouched int
}

// New creates an empty table with an index already present on keyCol,
// per spec.md §4.5 ("the key column is always indexed at table
// creation").
func New(name string, keyCol, numColumns int, pool *storage.BufferPool) *Table {
	t := &Table{
		Name:           name,
		KeyCol:         keyCol,
		NumColumns:     numColumns,
		TotalCols:      numColumns + NumMetaCols,
		pool:           pool,
		mergeThreshold: DefaultMergeThreshold,
		directory:      make(map[int64]Location),
		nextRID:        1,
		indexes:        make(map[int]*index.Index),
		latches:        make(map[[2]int]*sync.Mutex),
		merging:        make(map[int]bool),
	}
	t.indexes[keyCol] = index.New(keyCol)
	return t
}

// SetMergeThreshold overrides the default tail-count trigger, used by
// tests and by server configuration.
func (t *Table) SetMergeThreshold(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mergeThreshold = n
}

// SetMergeHook registers a callback invoked after every merge pass.
func (t *Table) SetMergeHook(fn func(Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMergeDone = fn
}

// NewRID allocates the next monotonic RID. RIDs are never reused.
func (t *Table) NewRID() int64 {
	return atomic.AddInt64(&t.nextRID, 1) - 1
}

// NextRIDValue peeks the counter without allocating, used by Database
// metadata persistence.
func (t *Table) NextRIDValue() int64 {
	return atomic.LoadInt64(&t.nextRID)
}

// RestoreNextRID is used by Database.Open to resume RID allocation where
// a prior process left off.
func (t *Table) RestoreNextRID(v int64) {
	atomic.StoreInt64(&t.nextRID, v)
}

// CurrentRange returns the trailing page range, appending a fresh one if
// none exists yet or the trailing one is full.
func (t *Table) CurrentRange() *pagerange.PageRange {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentRangeLocked()
}

func (t *Table) currentRangeLocked() *pagerange.PageRange {
	if len(t.ranges) == 0 || !t.ranges[len(t.ranges)-1].HasCapacity() {
		pr := pagerange.New(t.Name, len(t.ranges), t.TotalCols, t.pool)
		t.ranges = append(t.ranges, pr)
	}
	return t.ranges[len(t.ranges)-1]
}

// RangeAt returns the page range at index i.
func (t *Table) RangeAt(i int) *pagerange.PageRange {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ranges[i]
}

// RangeCount returns how many page ranges this table has.
func (t *Table) RangeCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ranges)
}

// AppendRestoredRange is used by Database.Open to rebuild the range list
// from persisted counters without replaying writes.
func (t *Table) AppendRestoredRange(numBase, numTail int, tps map[int]int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pr := pagerange.New(t.Name, len(t.ranges), t.TotalCols, t.pool)
	pr.RestoreCounts(numBase, numTail, tps)
	t.ranges = append(t.ranges, pr)
}

// Locate returns the directory entry for rid, if present.
func (t *Table) Locate(rid int64) (Location, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	loc, ok := t.directory[rid]
	return loc, ok
}

// SetLocation registers rid's physical location in the page directory.
func (t *Table) SetLocation(rid int64, loc Location) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.directory[rid] = loc
}

// DeleteLocation removes rid from the page directory (used by delete;
// the underlying bytes are left in place).
func (t *Table) DeleteLocation(rid int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.directory, rid)
}

// DirectorySnapshot returns a copy of the full page directory, used by
// Database metadata persistence.
func (t *Table) DirectorySnapshot() map[int64]Location {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]Location, len(t.directory))
	for k, v := range t.directory {
		out[k] = v
	}
	return out
}

// RestoreDirectory rehydrates the page directory from persisted
// metadata.
func (t *Table) RestoreDirectory(dir map[int64]Location) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.directory = make(map[int64]Location, len(dir))
	for k, v := range dir {
		t.directory[k] = v
	}
}

// Index returns the index over col, if one is active.
func (t *Table) Index(col int) (*index.Index, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ix, ok := t.indexes[col]
	return ix, ok
}

// KeyIndex returns the (always-present) index over the primary key
// column.
func (t *Table) KeyIndex() *index.Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.indexes[t.KeyCol]
}

// ActiveIndexes returns every currently active column index.
func (t *Table) ActiveIndexes() map[int]*index.Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]*index.Index, len(t.indexes))
	for k, v := range t.indexes {
		out[k] = v
	}
	return out
}

// CreateIndex builds an index over col by scanning the page directory
// for every non-tail (base) RID and reading col's current value through
// the version walk, per spec.md §4.5.
func (t *Table) CreateIndex(col int, readCurrentCol func(rid int64, col int) (int64, bool, error)) error {
	t.mu.Lock()
	if _, exists := t.indexes[col]; exists {
		t.mu.Unlock()
		return fmt.Errorf("table: index on column %d already exists", col)
	}
	dirSnapshot := make(map[int64]Location, len(t.directory))
	for k, v := range t.directory {
		dirSnapshot[k] = v
	}
	t.mu.Unlock()

	ix := index.New(col)
	for rid, loc := range dirSnapshot {
		if loc.IsTail {
			continue
		}
		v, ok, err := readCurrentCol(rid, col)
		if err != nil {
			return fmt.Errorf("table: create index on column %d: %w", col, err)
		}
		if !ok {
			continue
		}
		ix.InsertEntry(v, rid)
	}

	t.mu.Lock()
	t.indexes[col] = ix
	t.mu.Unlock()
	return nil
}

// DropIndex removes col's index, if any (never the key column's).
func (t *Table) DropIndex(col int) error {
	if col == t.KeyCol {
		return fmt.Errorf("table: cannot drop the primary key index")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.indexes, col)
	return nil
}

// pageLatch returns the mutex guarding concurrent base-metadata writes
// and merge rewrites for one (range, base page) pair. See spec.md §5 and
// SPEC_FULL.md's Open Question decision #3.
func (t *Table) pageLatch(rangeIdx, pageIdx int) *sync.Mutex {
	key := [2]int{rangeIdx, pageIdx}
	t.latchMu.Lock()
	defer t.latchMu.Unlock()
	m, ok := t.latches[key]
	if !ok {
		m = &sync.Mutex{}
		t.latches[key] = m
	}
	return m
}

// LockBasePage acquires the per-base-page latch, blocking a concurrent
// merge pass over the same base page until the caller unlocks.
func (t *Table) LockBasePage(rangeIdx, pageIdx int) {
	t.pageLatch(rangeIdx, pageIdx).Lock()
}

// UnlockBasePage releases the latch acquired by LockBasePage.
func (t *Table) UnlockBasePage(rangeIdx, pageIdx int) {
	t.pageLatch(rangeIdx, pageIdx).Unlock()
}

// Close joins any in-flight merge goroutine. Called from
// Database.Close.
func (t *Table) Close() {
	t.mergeWG.Wait()
}

// ResolveRead implements the version walk of spec.md §4.6.1: given a
// row's base RID and a relative version, it returns the Location to
// read user columns from (base or some tail) and whether that location
// is a tail record.
func (t *Table) ResolveRead(baseRID int64, version int64) (loc Location, isTail bool, err error) {
	baseLoc, ok := t.Locate(baseRID)
	if !ok {
		return Location{}, false, fmt.Errorf("table: RID %d not in page directory", baseRID)
	}
	if baseLoc.IsTail {
		return Location{}, false, fmt.Errorf("table: RID %d is not a base record", baseRID)
	}

	pr := t.RangeAt(baseLoc.RangeIndex)
	prLoc := pagerange.Location{PageIndex: baseLoc.PageIndex, Slot: baseLoc.Slot}
	indirCols, err := pr.GetBaseVals(prLoc, ColIndirection, 1)
	if err != nil {
		return Location{}, false, err
	}
	indirection := indirCols[0]

	if indirection == NullRID {
		return baseLoc, false, nil
	}

	if version == 0 {
		tps := pr.TPS(baseLoc.PageIndex)
		if indirection <= tps {
			return baseLoc, false, nil
		}
	}

	hops := version
	if hops < 0 {
		hops = -hops
	}

	cur := indirection
	for h := int64(0); h < hops; h++ {
		curLoc, ok := t.Locate(cur)
		if !ok {
			return baseLoc, false, nil
		}
		curPR := t.RangeAt(curLoc.RangeIndex)
		nextCols, err := curPR.GetTailVals(pagerange.Location{PageIndex: curLoc.PageIndex, Slot: curLoc.Slot}, ColIndirection, 1)
		if err != nil {
			return Location{}, false, err
		}
		next := nextCols[0]
		if next == NullRID {
			return baseLoc, false, nil
		}
		cur = next
	}

	curLoc, ok := t.Locate(cur)
	if !ok {
		return baseLoc, false, nil
	}
	return curLoc, true, nil
}

// ReadAt reads n contiguous columns starting at startCol from loc
// (dispatching to the base or tail area as appropriate).
func (t *Table) ReadAt(loc Location, startCol, n int) ([]int64, error) {
	pr := t.RangeAt(loc.RangeIndex)
	prLoc := pagerange.Location{PageIndex: loc.PageIndex, Slot: loc.Slot}
	if loc.IsTail {
		return pr.GetTailVals(prLoc, startCol, n)
	}
	return pr.GetBaseVals(prLoc, startCol, n)
}
