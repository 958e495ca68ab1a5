package database

import (
	"testing"

	"github.com/lstore-db/lstore/pkg/query"
)

func TestCreateTableAndGetTable(t *testing.T) {
	db, err := Open(DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.CreateTable("orders", 3, 0); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.CreateTable("orders", 3, 0); err == nil {
		t.Fatal("expected duplicate table creation to fail")
	}

	eng, ok := db.GetTable("orders")
	if !ok {
		t.Fatal("expected to find the created table")
	}
	if !eng.Insert([]int64{1, 2, 3}) {
		t.Fatal("expected insert to succeed")
	}
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	eng, err := db.CreateTable("orders", 3, 0)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	for k := int64(1); k <= 20; k++ {
		if !eng.Insert([]int64{k, k * 10, k * 100}) {
			t.Fatalf("insert %d failed", k)
		}
	}
	eng.Update(5, []query.OptionalInt{query.None, query.Some(999), query.None})

	wantRID := eng.Table().NextRIDValue()

	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	eng2, ok := db2.GetTable("orders")
	if !ok {
		t.Fatal("expected table to survive reopen")
	}

	recs, ok := eng2.Select(5, 0, []bool{true, true, true})
	if !ok || len(recs) != 1 {
		t.Fatalf("expected one record for key 5, got %v", recs)
	}
	if v, _ := recs[0].At(1); v != 999 {
		t.Fatalf("expected updated value 999 to survive reopen, got %d", v)
	}

	recs, ok = eng2.Select(10, 0, []bool{true, true, true})
	if !ok || len(recs) != 1 {
		t.Fatalf("expected one record for key 10, got %v", recs)
	}
	if v, _ := recs[0].At(1); v != 100 {
		t.Fatalf("expected untouched value 100 to survive reopen, got %d", v)
	}

	if got := eng2.Table().NextRIDValue(); got != wantRID {
		t.Fatalf("expected next_rid to continue from %d, got %d", wantRID, got)
	}
}

func TestDropTableRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(DefaultConfig(dir))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.CreateTable("orders", 2, 0); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := db.DropTable("orders"); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if _, ok := db.GetTable("orders"); ok {
		t.Fatal("expected table to be gone after drop")
	}
}
