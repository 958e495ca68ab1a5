// Package index implements per-column value indexes: a hash map from
// value to the RIDs holding it, plus a sorted sidecar of live keys that
// turns range scans into an O(log n + k) lookup instead of a full scan.
package index

import (
	"sort"
	"sync"
)

// Index is a single column's index.
type Index struct {
	mu      sync.RWMutex
	col     int
	entries map[int64][]int64 // value -> RIDs, insertion order preserved
	sorted  []int64           // distinct live values, ascending
	stats   Stats
}

// New creates an empty index over column col.
func New(col int) *Index {
	return &Index{
		col:     col,
		entries: make(map[int64][]int64),
	}
}

// Column returns the indexed column number.
func (ix *Index) Column() int { return ix.col }

// Locate returns a copy of the RIDs currently holding value v.
func (ix *Index) Locate(v int64) []int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rids := ix.entries[v]
	out := make([]int64, len(rids))
	copy(out, rids)
	return out
}

// LocateRange returns the RIDs of every value in [lo, hi], using the
// sorted sidecar to skip directly to the first qualifying value.
func (ix *Index) LocateRange(lo, hi int64) []int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	start := sort.Search(len(ix.sorted), func(i int) bool { return ix.sorted[i] >= lo })
	var out []int64
	for i := start; i < len(ix.sorted) && ix.sorted[i] <= hi; i++ {
		out = append(out, ix.entries[ix.sorted[i]]...)
	}
	return out
}

// InsertEntry registers rid under value v.
func (ix *Index) InsertEntry(v int64, rid int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.entries[v]; !exists {
		ix.insertSortedLocked(v)
	}
	ix.entries[v] = append(ix.entries[v], rid)
	ix.stats.EntryCount++
}

// DeleteEntry removes rid from value v's RID list. If that was the last
// RID for v, the value is dropped from both the hash map and the sorted
// sidecar.
func (ix *Index) DeleteEntry(v int64, rid int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	rids, ok := ix.entries[v]
	if !ok {
		return
	}
	for i, r := range rids {
		if r == rid {
			rids = append(rids[:i], rids[i+1:]...)
			break
		}
	}
	if len(rids) == 0 {
		delete(ix.entries, v)
		ix.deleteSortedLocked(v)
	} else {
		ix.entries[v] = rids
	}
	if ix.stats.EntryCount > 0 {
		ix.stats.EntryCount--
	}
}

// UpdateEntry moves rid from oldV to newV. A no-op when oldV == newV.
func (ix *Index) UpdateEntry(oldV, newV int64, rid int64) {
	if oldV == newV {
		return
	}
	ix.DeleteEntry(oldV, rid)
	ix.InsertEntry(newV, rid)
}

// insertSortedLocked inserts v into the sorted sidecar; caller holds mu.
func (ix *Index) insertSortedLocked(v int64) {
	i := sort.Search(len(ix.sorted), func(i int) bool { return ix.sorted[i] >= v })
	ix.sorted = append(ix.sorted, 0)
	copy(ix.sorted[i+1:], ix.sorted[i:])
	ix.sorted[i] = v
}

// deleteSortedLocked removes v from the sorted sidecar; caller holds mu.
func (ix *Index) deleteSortedLocked(v int64) {
	i := sort.Search(len(ix.sorted), func(i int) bool { return ix.sorted[i] >= v })
	if i < len(ix.sorted) && ix.sorted[i] == v {
		ix.sorted = append(ix.sorted[:i], ix.sorted[i+1:]...)
	}
}

// Stats returns a snapshot of this index's bookkeeping counters.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.stats
}

// DistinctValues returns how many distinct values are currently indexed.
func (ix *Index) DistinctValues() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.sorted)
}
