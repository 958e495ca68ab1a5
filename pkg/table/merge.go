package table

import (
	"github.com/lstore-db/lstore/pkg/pagerange"
)

// MaybeTriggerMerge spawns a background merge of rangeIdx if its tail
// count has crossed the configured threshold and no merge is already
// running for that range, per spec.md §4.4/§4.7.
func (t *Table) MaybeTriggerMerge(rangeIdx int) {
	t.mu.RLock()
	threshold := t.mergeThreshold
	pr := t.ranges[rangeIdx]
	t.mu.RUnlock()

	if pr.NumTailRecords() < threshold {
		return
	}

	t.mergeMu.Lock()
	if t.merging[rangeIdx] {
		t.mergeMu.Unlock()
		return
	}
	t.merging[rangeIdx] = true
	t.mergeMu.Unlock()

	t.mergeWG.Add(1)
	go func() {
		defer t.mergeWG.Done()
		defer func() {
			t.mergeMu.Lock()
			delete(t.merging, rangeIdx)
			t.mergeMu.Unlock()
		}()
		t.merge(rangeIdx)
	}()
}

// merge runs one full pass over rangeIdx's base pages. It is safe to
// call synchronously (tests do, to avoid racing on completion).
func (t *Table) merge(rangeIdx int) {
	pr := t.RangeAt(rangeIdx)
	numBasePages := pr.NumBasePages()
	touched := 0
	for pageIdx := 0; pageIdx < numBasePages; pageIdx++ {
		if t.mergeBasePage(pr, rangeIdx, pageIdx) {
			touched++
		}
	}

	t.mu.RLock()
	hook := t.onMergeDone
	t.mu.RUnlock()
	if hook != nil {
		hook(Event{Table: t.Name, RangeIndex: rangeIdx, PagesTouched: touched})
	}
}

// mergeBasePage implements the per-page algorithm of spec.md §4.7. It
// holds the page's latch for its whole duration, so a concurrent
// update() touching this base page's metadata columns waits for the
// merge pass (and vice versa) — see Table.LockBasePage.
//
// Errors during an individual slot are swallowed: merge is best-effort
// and idempotent, and a failed slot simply gets picked up again on the
// next pass since a pass with any failed slot leaves the page's TPS
// where it was.
func (t *Table) mergeBasePage(pr *pagerange.PageRange, rangeIdx, pageIdx int) bool {
	t.LockBasePage(rangeIdx, pageIdx)
	defer t.UnlockBasePage(rangeIdx, pageIdx)

	n := pr.RecordsOnBasePage(pageIdx)
	maxTail := pr.TPS(pageIdx)
	touchedAny := false
	failed := false

	for slot := 0; slot < n; slot++ {
		loc := pagerange.Location{PageIndex: pageIdx, Slot: slot}

		meta, err := pr.GetBaseVals(loc, ColIndirection, NumMetaCols)
		if err != nil {
			failed = true
			continue
		}
		indirection, rid := meta[ColIndirection], meta[ColRID]

		if _, ok := t.Locate(rid); !ok {
			continue // deleted
		}
		if indirection == NullRID || indirection <= maxTail {
			continue // no update since last merge
		}

		tailLoc, ok := t.Locate(indirection)
		if !ok {
			continue // chain head no longer resolvable; skip, retry later
		}
		tailPR := t.RangeAt(tailLoc.RangeIndex)
		vals, err := tailPR.GetTailVals(pagerange.Location{PageIndex: tailLoc.PageIndex, Slot: tailLoc.Slot}, NumMetaCols, t.NumColumns)
		if err != nil {
			failed = true
			continue
		}

		ok = true
		for i, v := range vals {
			if err := pr.SetBaseVal(loc, NumMetaCols+i, v); err != nil {
				ok = false
				break
			}
		}
		if !ok {
			failed = true
			continue
		}

		touchedAny = true
		if indirection > maxTail {
			maxTail = indirection
		}
	}

	if touchedAny && !failed {
		pr.SetTPS(pageIdx, maxTail)
	}
	return touchedAny
}
