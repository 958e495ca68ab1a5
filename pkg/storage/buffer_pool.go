package storage

import (
	"container/list"
	"errors"
	"fmt"
	"os"
	"sync"
)

// errAllPinned is returned by evictLocked when no resident page is
// unpinned.
var errAllPinned = errors.New("storage: no unpinned pages available for eviction")

// BufferPool caches pages in memory with classic LRU eviction and
// pinning. Capacity is soft: if every resident page is pinned when a new
// one must be admitted, the pool grows by one rather than fail, which
// guarantees forward progress at the cost of admitting pathological
// growth under sustained all-pinned workloads (spec.md §4.2).
type BufferPool struct {
	mu       sync.Mutex
	capacity int
	diskMgr  *DiskManager
	frames   map[PageID]*frame
	lru      *list.List // front = most recently used

	hits          int64
	misses        int64
	evictions     int64
	softGrowths   int64
}

type frame struct {
	id   PageID
	page *Page
	elem *list.Element
}

// NewBufferPool creates a pool with the given soft capacity (in pages),
// reading through to diskMgr on a miss.
func NewBufferPool(capacity int, diskMgr *DiskManager) *BufferPool {
	return &BufferPool{
		capacity: capacity,
		diskMgr:  diskMgr,
		frames:   make(map[PageID]*frame),
		lru:      list.New(),
	}
}

// GetPage returns the page for id, pinned. The caller must call Unpin
// exactly once when done. On a miss it loads from disk (or materializes
// an empty page) and evicts, if necessary, to stay within capacity.
func (bp *BufferPool) GetPage(id PageID) (*Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if f, ok := bp.frames[id]; ok {
		bp.lru.MoveToFront(f.elem)
		f.page.Pin()
		bp.hits++
		return f.page, nil
	}
	bp.misses++

	if len(bp.frames) >= bp.capacity {
		if err := bp.evictLocked(); err != nil {
			if !errors.Is(err, errAllPinned) {
				return nil, err
			}
			bp.capacity++
			bp.softGrowths++
			fmt.Fprintf(os.Stderr, "storage: buffer pool grew to %d pages (all resident pages pinned)\n", bp.capacity)
		}
	}

	page, err := bp.diskMgr.ReadPage(id)
	if err != nil {
		return nil, err
	}

	f := &frame{id: id, page: page}
	f.elem = bp.lru.PushFront(id)
	bp.frames[id] = f
	page.Pin()
	return page, nil
}

// ReadValue is a read-only hint for hot paths: if the page is already
// resident it reads the slot directly without touching pin state or LRU
// order. Otherwise it falls back to GetPage/Unpin.
func (bp *BufferPool) ReadValue(id PageID, slot int) (int64, error) {
	bp.mu.Lock()
	if f, ok := bp.frames[id]; ok {
		v := f.page.Read(slot)
		bp.mu.Unlock()
		return v, nil
	}
	bp.mu.Unlock()

	page, err := bp.GetPage(id)
	if err != nil {
		return 0, err
	}
	v := page.Read(slot)
	bp.Unpin(id)
	return v, nil
}

// MarkDirty flags a resident page dirty.
func (bp *BufferPool) MarkDirty(id PageID) {
	bp.mu.Lock()
	f, ok := bp.frames[id]
	bp.mu.Unlock()
	if ok {
		f.page.MarkDirty()
	}
}

// Unpin decrements a resident page's pin count, making it evictable once
// it reaches zero.
func (bp *BufferPool) Unpin(id PageID) {
	bp.mu.Lock()
	f, ok := bp.frames[id]
	bp.mu.Unlock()
	if ok {
		f.page.Unpin()
	}
}

// FlushAll writes every dirty resident page to disk and clears their
// dirty flags. Pin state is irrelevant to flushing.
func (bp *BufferPool) FlushAll() error {
	bp.mu.Lock()
	ids := make([]PageID, 0, len(bp.frames))
	for id := range bp.frames {
		ids = append(ids, id)
	}
	bp.mu.Unlock()

	for _, id := range ids {
		bp.mu.Lock()
		f, ok := bp.frames[id]
		bp.mu.Unlock()
		if !ok || !f.page.IsDirty() {
			continue
		}
		if err := bp.diskMgr.WritePage(id, f.page); err != nil {
			return fmt.Errorf("storage: flush %s: %w", id, err)
		}
		f.page.clearDirty()
	}
	return nil
}

// evictLocked scans from the LRU back for the first unpinned page,
// flushing it if dirty before removing it. Must be called with bp.mu
// held. Returns an error if every resident page is pinned.
func (bp *BufferPool) evictLocked() error {
	for e := bp.lru.Back(); e != nil; e = e.Prev() {
		id := e.Value.(PageID)
		f := bp.frames[id]
		if f.page.IsPinned() {
			continue
		}

		if f.page.IsDirty() {
			if err := bp.diskMgr.WritePage(id, f.page); err != nil {
				return fmt.Errorf("storage: flush during eviction %s: %w", id, err)
			}
			f.page.clearDirty()
		}

		bp.lru.Remove(e)
		delete(bp.frames, id)
		bp.evictions++
		return nil
	}
	return errAllPinned
}

// ResidentCount returns the number of pages currently cached.
func (bp *BufferPool) ResidentCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.frames)
}

// Capacity returns the pool's current soft capacity.
func (bp *BufferPool) Capacity() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.capacity
}

// Stats reports buffer pool counters, used by pkg/metrics.
type Stats struct {
	Capacity    int
	Resident    int
	Hits        int64
	Misses      int64
	Evictions   int64
	SoftGrowths int64
}

// Stats returns a snapshot of the pool's counters.
func (bp *BufferPool) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return Stats{
		Capacity:    bp.capacity,
		Resident:    len(bp.frames),
		Hits:        bp.hits,
		Misses:      bp.misses,
		Evictions:   bp.evictions,
		SoftGrowths: bp.softGrowths,
	}
}
