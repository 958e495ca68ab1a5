// Package pagerange implements the columnar page-range layer: a
// contiguous block of up to 65,536 base records and an unbounded tail
// area, both routed through the shared buffer pool column by column.
package pagerange

import (
	"fmt"
	"sync"

	"github.com/lstore-db/lstore/pkg/storage"
)

const (
	// RecordsPerPageRange is the maximum number of base records a single
	// range may hold (512 records/page * 128 pages).
	RecordsPerPageRange = storage.RecordsPerPage * 128
)

// Location identifies a physical record within a range: which page and
// which slot on that page.
type Location struct {
	PageIndex int
	Slot      int
}

// PageRange groups the base and tail pages for one contiguous span of
// base records. It does not own the buffer pool; it references it and
// routes every column read/write through it, so pages may be evicted at
// any time their pin count is zero.
type PageRange struct {
	table      string
	index      int
	numColumns int // M + K, including metadata columns
	pool       *storage.BufferPool

	mu              sync.Mutex
	numBaseRecords  int
	numTailRecords  int
	tps             map[int]int64 // base page index -> last merged tail RID
}

// New creates an empty page range. numColumns is the total column count
// (metadata + user columns).
func New(table string, index int, numColumns int, pool *storage.BufferPool) *PageRange {
	return &PageRange{
		table:      table,
		index:      index,
		numColumns: numColumns,
		pool:       pool,
		tps:        make(map[int]int64),
	}
}

// Index returns this range's ordinal within its table.
func (pr *PageRange) Index() int { return pr.index }

// HasCapacity reports whether another base record fits.
func (pr *PageRange) HasCapacity() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.numBaseRecords < RecordsPerPageRange
}

// NumBaseRecords returns the current base record count.
func (pr *PageRange) NumBaseRecords() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.numBaseRecords
}

// NumTailRecords returns the current tail record count.
func (pr *PageRange) NumTailRecords() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.numTailRecords
}

func pageAndSlot(ordinal int) (pageIdx, slot int) {
	return ordinal / storage.RecordsPerPage, ordinal % storage.RecordsPerPage
}

func (pr *PageRange) pageID(isTail bool, pageIdx, col int) storage.PageID {
	return storage.PageID{
		Table:      pr.table,
		RangeIndex: pr.index,
		IsTail:     isTail,
		PageIndex:  pageIdx,
		Column:     col,
	}
}

// AddBaseRecord appends one physical record's columns to the base area
// and returns its (page, slot) location. Capacity must be checked by the
// caller (via HasCapacity) before calling this.
func (pr *PageRange) AddBaseRecord(values []int64) (Location, error) {
	return pr.addRecord(false, values)
}

// AddTailRecord appends one physical record's columns to the tail area.
// The tail area is never capacity-limited.
func (pr *PageRange) AddTailRecord(values []int64) (Location, error) {
	return pr.addRecord(true, values)
}

func (pr *PageRange) addRecord(isTail bool, values []int64) (Location, error) {
	if len(values) != pr.numColumns {
		return Location{}, fmt.Errorf("pagerange: expected %d columns, got %d", pr.numColumns, len(values))
	}

	pr.mu.Lock()
	var ordinal int
	if isTail {
		ordinal = pr.numTailRecords
	} else {
		ordinal = pr.numBaseRecords
	}
	pr.mu.Unlock()

	pageIdx, slot := pageAndSlot(ordinal)

	for col, v := range values {
		id := pr.pageID(isTail, pageIdx, col)
		page, err := pr.pool.GetPage(id)
		if err != nil {
			return Location{}, fmt.Errorf("pagerange: fetch page for column %d: %w", col, err)
		}
		page.WriteAt(slot, v)
		pr.pool.MarkDirty(id)
		pr.pool.Unpin(id)
	}

	pr.mu.Lock()
	if isTail {
		pr.numTailRecords++
	} else {
		pr.numBaseRecords++
	}
	pr.mu.Unlock()

	return Location{PageIndex: pageIdx, Slot: slot}, nil
}

// GetBaseVal reads one column of one base record.
func (pr *PageRange) GetBaseVal(loc Location, col int) (int64, error) {
	return pr.getVal(false, loc, col)
}

// GetTailVal reads one column of one tail record.
func (pr *PageRange) GetTailVal(loc Location, col int) (int64, error) {
	return pr.getVal(true, loc, col)
}

func (pr *PageRange) getVal(isTail bool, loc Location, col int) (int64, error) {
	id := pr.pageID(isTail, loc.PageIndex, col)
	return pr.pool.ReadValue(id, loc.Slot)
}

// GetBaseVals reads n contiguous columns of one base record in one pass
// per column, amortizing buffer-pool overhead on the hot read path.
func (pr *PageRange) GetBaseVals(loc Location, startCol, n int) ([]int64, error) {
	return pr.getVals(false, loc, startCol, n)
}

// GetTailVals reads n contiguous columns of one tail record.
func (pr *PageRange) GetTailVals(loc Location, startCol, n int) ([]int64, error) {
	return pr.getVals(true, loc, startCol, n)
}

func (pr *PageRange) getVals(isTail bool, loc Location, startCol, n int) ([]int64, error) {
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := pr.getVal(isTail, loc, startCol+i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SetBaseVal mutates one column of one base record and marks the holding
// page dirty. Safe to race with the merge worker on a different column
// of the same page: Page serializes individual WriteAt calls.
func (pr *PageRange) SetBaseVal(loc Location, col int, val int64) error {
	id := pr.pageID(false, loc.PageIndex, col)
	page, err := pr.pool.GetPage(id)
	if err != nil {
		return fmt.Errorf("pagerange: fetch base page for column %d: %w", col, err)
	}
	page.WriteAt(loc.Slot, val)
	pr.pool.MarkDirty(id)
	pr.pool.Unpin(id)
	return nil
}

// TPS returns the last-merged-tail-RID watermark for a base page
// (default 0 if the page has never been merged).
func (pr *PageRange) TPS(pageIdx int) int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.tps[pageIdx]
}

// SetTPS advances a base page's watermark. Callers (the merge worker)
// must only ever move it forward; this is enforced here defensively.
func (pr *PageRange) SetTPS(pageIdx int, tailRID int64) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if tailRID > pr.tps[pageIdx] {
		pr.tps[pageIdx] = tailRID
	}
}

// TPSSnapshot returns a copy of the full TPS map, used by table/database
// metadata persistence.
func (pr *PageRange) TPSSnapshot() map[int]int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	out := make(map[int]int64, len(pr.tps))
	for k, v := range pr.tps {
		out[k] = v
	}
	return out
}

// RestoreCounts is used by Database.Open to rehydrate a range's counters
// from persisted metadata without replaying every write.
func (pr *PageRange) RestoreCounts(numBase, numTail int, tps map[int]int64) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.numBaseRecords = numBase
	pr.numTailRecords = numTail
	pr.tps = make(map[int]int64, len(tps))
	for k, v := range tps {
		pr.tps[k] = v
	}
}

// NumBasePages returns how many base pages currently hold at least one
// record, used to iterate merge targets.
func (pr *PageRange) NumBasePages() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.numBaseRecords == 0 {
		return 0
	}
	last, _ := pageAndSlot(pr.numBaseRecords - 1)
	return last + 1
}

// RecordsOnBasePage returns how many of a base page's slots are valid.
func (pr *PageRange) RecordsOnBasePage(pageIdx int) int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pageStart := pageIdx * storage.RecordsPerPage
	if pageStart >= pr.numBaseRecords {
		return 0
	}
	remaining := pr.numBaseRecords - pageStart
	if remaining > storage.RecordsPerPage {
		return storage.RecordsPerPage
	}
	return remaining
}
