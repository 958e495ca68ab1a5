package index

import "testing"

func TestInsertLocateDelete(t *testing.T) {
	ix := New(1)
	ix.InsertEntry(10, 100)
	ix.InsertEntry(10, 101)
	ix.InsertEntry(20, 200)

	rids := ix.Locate(10)
	if len(rids) != 2 || rids[0] != 100 || rids[1] != 101 {
		t.Fatalf("unexpected RIDs for 10: %v", rids)
	}

	ix.DeleteEntry(10, 100)
	rids = ix.Locate(10)
	if len(rids) != 1 || rids[0] != 101 {
		t.Fatalf("expected only RID 101 left, got %v", rids)
	}

	ix.DeleteEntry(10, 101)
	if rids := ix.Locate(10); len(rids) != 0 {
		t.Fatalf("expected no RIDs left for 10, got %v", rids)
	}
	if ix.DistinctValues() != 1 {
		t.Fatalf("expected only value 20 to remain indexed, got %d distinct values", ix.DistinctValues())
	}
}

func TestLocateRangeUsesSortedSidecar(t *testing.T) {
	ix := New(0)
	for i := int64(1); i <= 100; i++ {
		ix.InsertEntry(i, i*1000)
	}

	rids := ix.LocateRange(25, 30)
	if len(rids) != 6 {
		t.Fatalf("expected 6 RIDs, got %d", len(rids))
	}
	for i, want := range []int64{25000, 26000, 27000, 28000, 29000, 30000} {
		if rids[i] != want {
			t.Fatalf("index %d: expected %d, got %d", i, want, rids[i])
		}
	}
}

func TestLocateRangeEmptyWhenNoMatch(t *testing.T) {
	ix := New(0)
	ix.InsertEntry(5, 1)
	ix.InsertEntry(50, 2)
	if rids := ix.LocateRange(10, 20); len(rids) != 0 {
		t.Fatalf("expected empty range result, got %v", rids)
	}
}

func TestUpdateEntryMovesValue(t *testing.T) {
	ix := New(0)
	ix.InsertEntry(1, 42)
	ix.UpdateEntry(1, 2, 42)

	if rids := ix.Locate(1); len(rids) != 0 {
		t.Fatalf("expected old value to have no RIDs, got %v", rids)
	}
	if rids := ix.Locate(2); len(rids) != 1 || rids[0] != 42 {
		t.Fatalf("expected RID 42 under new value, got %v", rids)
	}
}
