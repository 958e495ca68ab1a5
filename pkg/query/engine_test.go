package query

import (
	"bytes"
	"testing"

	"github.com/lstore-db/lstore/pkg/audit"
	"github.com/lstore-db/lstore/pkg/pagerange"
	"github.com/lstore-db/lstore/pkg/storage"
	"github.com/lstore-db/lstore/pkg/table"
)

func newTestEngine(t *testing.T, numColumns, keyCol int) *Engine {
	t.Helper()
	dm, err := storage.NewDiskManager(t.TempDir())
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	pool := storage.NewBufferPool(1000, dm)
	tbl := table.New("T", keyCol, numColumns, pool)
	return New(tbl, nil)
}

func fullProjection(n int) []bool {
	p := make([]bool, n)
	for i := range p {
		p[i] = true
	}
	return p
}

func TestBasicRoundTrip(t *testing.T) {
	e := newTestEngine(t, 3, 0)
	if !e.Insert([]int64{10, 20, 30}) {
		t.Fatal("expected insert to succeed")
	}
	if !e.Insert([]int64{11, 21, 31}) {
		t.Fatal("expected second insert to succeed")
	}

	recs, ok := e.Select(10, 0, fullProjection(3))
	if !ok || len(recs) != 1 {
		t.Fatalf("expected exactly one record for key 10, got %v ok=%v", recs, ok)
	}
	want := []int64{10, 20, 30}
	for i, w := range want {
		v, valid := recs[0].At(i)
		if !valid || v != w {
			t.Fatalf("col %d: expected %d, got %d (valid=%v)", i, w, v, valid)
		}
	}
	if recs[0].RID != 1 {
		t.Fatalf("expected RID 1, got %d", recs[0].RID)
	}
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	e := newTestEngine(t, 2, 0)
	if !e.Insert([]int64{1, 100}) {
		t.Fatal("expected first insert to succeed")
	}
	if e.Insert([]int64{1, 200}) {
		t.Fatal("expected duplicate-key insert to fail")
	}
	recs, _ := e.Select(1, 0, fullProjection(2))
	if len(recs) != 1 {
		t.Fatalf("expected state unchanged after rejected insert, got %v", recs)
	}
}

func TestUpdateAndVersionWalk(t *testing.T) {
	e := newTestEngine(t, 3, 0)
	e.Insert([]int64{10, 20, 30})

	if !e.Update(10, []OptionalInt{None, Some(22), None}) {
		t.Fatal("expected first update to succeed")
	}
	if !e.Update(10, []OptionalInt{None, Some(23), None}) {
		t.Fatal("expected second update to succeed")
	}

	recs, _ := e.Select(10, 0, fullProjection(3))
	if v, _ := recs[0].At(1); v != 23 {
		t.Fatalf("expected latest value 23, got %d", v)
	}

	recs, _ = e.SelectVersion(10, 0, fullProjection(3), -1)
	if v, _ := recs[0].At(1); v != 22 {
		t.Fatalf("expected version -1 value 22, got %d", v)
	}

	recs, _ = e.SelectVersion(10, 0, fullProjection(3), -2)
	if v, _ := recs[0].At(1); v != 20 {
		t.Fatalf("expected version -2 to fall back to base 20, got %d", v)
	}

	recs, _ = e.SelectVersion(10, 0, fullProjection(3), -9)
	if v, _ := recs[0].At(1); v != 20 {
		t.Fatalf("expected version -9 to fall back to base 20, got %d", v)
	}
}

func TestUpdateRejectsPrimaryKeyChange(t *testing.T) {
	e := newTestEngine(t, 2, 0)
	e.Insert([]int64{1, 100})
	if e.Update(1, []OptionalInt{Some(2), None}) {
		t.Fatal("expected primary-key change to be rejected")
	}
}

func TestDeleteThenSelect(t *testing.T) {
	e := newTestEngine(t, 3, 0)
	e.Insert([]int64{10, 20, 30})

	if !e.Delete(10) {
		t.Fatal("expected delete to succeed")
	}
	recs, ok := e.Select(10, 0, fullProjection(3))
	if !ok || len(recs) != 0 {
		t.Fatalf("expected empty result after delete, got %v", recs)
	}
	if e.Delete(10) {
		t.Fatal("expected second delete of the same key to fail")
	}
}

func TestRangeSum(t *testing.T) {
	e := newTestEngine(t, 2, 0)
	for k := int64(1); k <= 100; k++ {
		e.Insert([]int64{k, k * 2})
	}
	total, ok := e.Sum(25, 50, 1)
	if !ok {
		t.Fatal("expected sum to find matches")
	}
	want := int64(0)
	for k := int64(25); k <= 50; k++ {
		want += k * 2
	}
	if total != want {
		t.Fatalf("expected sum %d, got %d", want, total)
	}
}

func TestSumEmptyRangeReturnsFalse(t *testing.T) {
	e := newTestEngine(t, 2, 0)
	e.Insert([]int64{1, 10})
	if _, ok := e.Sum(100, 200, 1); ok {
		t.Fatal("expected sum over an empty range to report false")
	}
}

func TestMergeStabilization(t *testing.T) {
	e := newTestEngine(t, 2, 0)
	e.Table().SetMergeThreshold(4)
	e.Insert([]int64{1, 0})

	var lastTail int64
	for i := 0; i < 5; i++ {
		e.Update(1, []OptionalInt{None, Some(int64(i + 1))})
		if i == 3 {
			lastTail = e.Table().NextRIDValue() - 1 // tail RID written by the 4th update
		}
	}
	e.Table().Close() // joins the merge goroutine MaybeTriggerMerge spawned

	loc, _ := e.Table().Locate(1)
	pr := e.Table().RangeAt(loc.RangeIndex)
	if tps := pr.TPS(loc.PageIndex); tps < lastTail {
		t.Fatalf("expected TPS to have advanced past the 4th update, got %d (last tail %d)", tps, lastTail)
	}
}

func TestIncrement(t *testing.T) {
	e := newTestEngine(t, 2, 0)
	e.Insert([]int64{1, 5})
	if !e.Increment(1, 1) {
		t.Fatal("expected increment to succeed")
	}
	recs, _ := e.Select(1, 0, fullProjection(2))
	if v, _ := recs[0].At(1); v != 6 {
		t.Fatalf("expected incremented value 6, got %d", v)
	}
}

// TestUpdateSchemaEncodingReflectsSuppliedColumns covers spec.md §4.6's
// schema = OR_i (c'_i != None) << i formula: bit i is set whenever the
// caller supplies column i, even if the supplied value equals the
// column's current value.
func TestUpdateSchemaEncodingReflectsSuppliedColumns(t *testing.T) {
	e := newTestEngine(t, 3, 0)
	e.Insert([]int64{10, 20, 30})

	if !e.Update(10, []OptionalInt{None, Some(20), Some(99)}) {
		t.Fatal("expected update to succeed")
	}

	rid := e.Table().KeyIndex().Locate(10)[0]
	baseLoc, _ := e.Table().Locate(rid)
	pr := e.Table().RangeAt(baseLoc.RangeIndex)
	schema, err := pr.GetBaseVal(pagerange.Location{PageIndex: baseLoc.PageIndex, Slot: baseLoc.Slot}, table.ColSchemaEncoding)
	if err != nil {
		t.Fatalf("read schema encoding: %v", err)
	}
	want := int64(1<<1 | 1<<2)
	if schema != want {
		t.Fatalf("expected schema encoding %b (cols 1 and 2 supplied), got %b", want, schema)
	}
}

func newTestEngineWithLogger(t *testing.T, numColumns, keyCol int, logger *audit.Logger) *Engine {
	t.Helper()
	dm, err := storage.NewDiskManager(t.TempDir())
	if err != nil {
		t.Fatalf("new disk manager: %v", err)
	}
	pool := storage.NewBufferPool(1000, dm)
	tbl := table.New("T", keyCol, numColumns, pool)
	return New(tbl, logger)
}

func TestMutationsAreAudited(t *testing.T) {
	var buf bytes.Buffer
	logger, err := audit.NewLogger(&audit.Config{Enabled: true, OutputWriter: &buf, MinSeverity: audit.SeverityInfo})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	e := newTestEngineWithLogger(t, 2, 0, logger)

	e.Insert([]int64{1, 10})
	e.Update(1, []OptionalInt{None, Some(20)})
	e.Delete(1)

	n := bytes.Count(buf.Bytes(), []byte("\n"))
	if n != 3 {
		t.Fatalf("expected 3 audit events (insert, update, delete), got %d: %s", n, buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"operation":"insert"`)) {
		t.Errorf("missing insert audit event: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"operation":"update"`)) {
		t.Errorf("missing update audit event: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"operation":"delete"`)) {
		t.Errorf("missing delete audit event: %s", buf.String())
	}
}
